package signal

import (
	"context"

	"github.com/fyrsmithlabs/dialogd/internal/element"
)

// AudioFeatures are optional prosody features, each normalized to [0,1].
type AudioFeatures struct {
	Energy     float64 `json:"energy"`
	Pitch      float64 `json:"pitch"`
	SpeechRate float64 `json:"speech_rate"`
	PauseRatio float64 `json:"pause_ratio"`
}

// Extraction is the feature bundle for a single utterance.
type Extraction struct {
	Text       string              `json:"text"`
	Normalized string              `json:"normalized"`
	Tokens     []string            `json:"tokens"`
	Sentiment  float64             `json:"sentiment"`
	Intensity  float64             `json:"intensity"`
	Keywords   map[string][]string `json:"keywords,omitempty"`
	Topics     []string            `json:"topics,omitempty"`
	Elements   element.Scores      `json:"elements,omitempty"`
	Audio      *AudioFeatures      `json:"audio,omitempty"`
	Confidence float64             `json:"confidence"`
}

// Extractor produces an Extraction from an utterance and short text history.
type Extractor interface {
	Extract(ctx context.Context, text string, history []string, audio *AudioFeatures) (Extraction, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, text string, history []string, audio *AudioFeatures) (Extraction, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, text string, history []string, audio *AudioFeatures) (Extraction, error) {
	return f(ctx, text, history, audio)
}
