package signal

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Safe runs ex and never fails. Errors and panics degrade to a fallback
// extraction with zero confidence that still carries the normalized text.
func Safe(ctx context.Context, ex Extractor, logger *zap.Logger, text string, history []string, audio *AudioFeatures) (out Extraction) {
	if logger == nil {
		logger = zap.NewNop()
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("signal extractor panicked", zap.Any("panic", r))
			out = Fallback(text, audio)
		}
	}()

	if ex == nil {
		return Fallback(text, audio)
	}
	ext, err := ex.Extract(ctx, text, history, audio)
	if err != nil {
		logger.Warn("signal extraction failed, using fallback", zap.Error(fmt.Errorf("extract: %w", err)))
		return Fallback(text, audio)
	}
	if ext.Normalized == "" && text != "" {
		ext.Normalized = Normalize(text)
		ext.Tokens = Tokenize(ext.Normalized)
	}
	ext.Sentiment = clampSigned(ext.Sentiment)
	ext.Intensity = clamp01(ext.Intensity)
	ext.Confidence = clamp01(ext.Confidence)
	return ext
}

// Fallback builds the low-confidence extraction used when extraction fails.
func Fallback(text string, audio *AudioFeatures) Extraction {
	norm := Normalize(text)
	return Extraction{
		Text:       text,
		Normalized: norm,
		Tokens:     Tokenize(norm),
		Audio:      audio,
	}
}

func clampSigned(v float64) float64 {
	if v != v {
		return 0
	}
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
