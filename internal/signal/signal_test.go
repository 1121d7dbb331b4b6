package signal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/dialogd/internal/element"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "i can't go on", Normalize("  I  can’t\tgo ON "))
}

func TestTokenizeKeepsContractions(t *testing.T) {
	assert.Equal(t, []string{"i", "can't", "go", "on"}, Tokenize("i can't, go on!"))
}

func TestContainsAny(t *testing.T) {
	norm := "please slow down, i love this"
	hits := ContainsAny(norm, Tokenize(norm), []string{"slow down", "love", "lo", "stop"})
	assert.Equal(t, []string{"slow down", "love"}, hits)
}

func TestValence(t *testing.T) {
	assert.Zero(t, Valence(0, 0))
	assert.Equal(t, 1.0, Valence(2, 0))
	assert.Equal(t, -1.0, Valence(0, 3))
	assert.InDelta(t, 1.0/3.0, Valence(2, 1), 1e-9)
}

func TestLexicalExtract(t *testing.T) {
	ext, err := NewLexical().Extract(context.Background(), "I feel so sad and alone about my family!!", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, -1.0, ext.Sentiment)
	assert.Greater(t, ext.Intensity, 0.4)
	assert.Contains(t, ext.Topics, "relationships")
	assert.ElementsMatch(t, []string{"sad", "alone"}, ext.Keywords["negative"])
	dominant, _ := ext.Elements.Dominant()
	assert.Equal(t, element.Water, dominant)
	assert.Greater(t, ext.Confidence, 0.0)
}

func TestLexicalAudioRaisesIntensity(t *testing.T) {
	ctx := context.Background()
	quiet, err := NewLexical().Extract(ctx, "it is fine", nil, &AudioFeatures{Energy: 0})
	require.NoError(t, err)
	loud, err := NewLexical().Extract(ctx, "it is fine", nil, &AudioFeatures{Energy: 1})
	require.NoError(t, err)
	assert.Greater(t, loud.Intensity, quiet.Intensity)
}

func TestLexicalCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLexical().Extract(ctx, "hello", nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSafeFallsBackOnError(t *testing.T) {
	failing := ExtractorFunc(func(context.Context, string, []string, *AudioFeatures) (Extraction, error) {
		return Extraction{}, errors.New("classifier offline")
	})
	ext := Safe(context.Background(), failing, nil, "I Can't Go On", nil, nil)
	assert.Equal(t, "i can't go on", ext.Normalized)
	assert.Zero(t, ext.Confidence)
}

func TestSafeRecoversPanic(t *testing.T) {
	panicking := ExtractorFunc(func(context.Context, string, []string, *AudioFeatures) (Extraction, error) {
		panic("boom")
	})
	ext := Safe(context.Background(), panicking, nil, "hello there", nil, nil)
	assert.Equal(t, []string{"hello", "there"}, ext.Tokens)
}

func TestSafeClampsValues(t *testing.T) {
	wild := ExtractorFunc(func(_ context.Context, text string, _ []string, _ *AudioFeatures) (Extraction, error) {
		return Extraction{Text: text, Sentiment: -4, Intensity: 7, Confidence: 2}, nil
	})
	ext := Safe(context.Background(), wild, nil, "Hi", nil, nil)
	assert.Equal(t, -1.0, ext.Sentiment)
	assert.Equal(t, 1.0, ext.Intensity)
	assert.Equal(t, 1.0, ext.Confidence)
	assert.Equal(t, "hi", ext.Normalized)
}
