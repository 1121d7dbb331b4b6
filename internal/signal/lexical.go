package signal

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/dialogd/internal/element"
)

var (
	positiveWords = []string{
		"happy", "excited", "grateful", "love", "peace", "joy",
		"calm", "hopeful", "relieved",
	}
	negativeWords = []string{
		"sad", "angry", "frustrated", "scared", "worried", "stuck",
		"hopeless", "alone", "tired", "hurt",
	}
	intensifiers = []string{
		"so", "really", "very", "extremely", "totally", "completely",
		"never", "always",
	}
)

// topicLexicon tags coarse life domains mentioned in the utterance.
var topicLexicon = map[string][]string{
	"relationships": {"partner", "friend", "family", "mother", "father", "wife", "husband", "relationship"},
	"work":          {"job", "boss", "work", "career", "office", "deadline", "project"},
	"health":        {"sleep", "sick", "pain", "doctor", "tired", "body"},
	"identity":      {"myself", "who i am", "purpose", "meaning"},
	"loss":          {"grief", "loss", "died", "passed away", "miss"},
}

var topicOrder = []string{"relationships", "work", "health", "identity", "loss"}

// Lexical is a dictionary-based Extractor. It never fails.
type Lexical struct{}

// NewLexical creates a lexical extractor.
func NewLexical() *Lexical {
	return &Lexical{}
}

// Extract implements Extractor.
func (l *Lexical) Extract(ctx context.Context, text string, _ []string, audio *AudioFeatures) (Extraction, error) {
	if err := ctx.Err(); err != nil {
		return Extraction{}, err
	}

	norm := Normalize(text)
	tokens := Tokenize(norm)

	pos := ContainsAny(norm, tokens, positiveWords)
	neg := ContainsAny(norm, tokens, negativeWords)
	boost := ContainsAny(norm, tokens, intensifiers)

	keywords := make(map[string][]string)
	if len(pos) > 0 {
		keywords["positive"] = pos
	}
	if len(neg) > 0 {
		keywords["negative"] = neg
	}
	if len(boost) > 0 {
		keywords["intensifier"] = boost
	}

	var topics []string
	for _, topic := range topicOrder {
		if hits := ContainsAny(norm, tokens, topicLexicon[topic]); len(hits) > 0 {
			topics = append(topics, topic)
			keywords["topic:"+topic] = hits
		}
	}

	sentiment := Valence(len(pos), len(neg))

	return Extraction{
		Text:       text,
		Normalized: norm,
		Tokens:     tokens,
		Sentiment:  sentiment,
		Intensity:  intensity(text, len(tokens), len(boost), sentiment, audio),
		Keywords:   keywords,
		Topics:     topics,
		Elements:   element.Score(tokens),
		Audio:      audio,
		Confidence: confidence(len(tokens)),
	}, nil
}

// Valence returns (pos-neg)/(pos+neg), or 0 when neither lexicon matched.
func Valence(pos, neg int) float64 {
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

func intensity(raw string, tokenCount, boosts int, sentiment float64, audio *AudioFeatures) float64 {
	if tokenCount == 0 {
		return 0
	}
	var letters, upper int
	for _, r := range raw {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	capsRatio := 0.0
	if letters >= 4 {
		capsRatio = float64(upper) / float64(letters)
	}
	exclaim := math.Min(float64(strings.Count(raw, "!"))/3, 1)
	boost := math.Min(float64(boosts)/2, 1)
	distress := math.Max(-sentiment, 0)

	score := 0.25*exclaim + 0.2*capsRatio + 0.25*boost + 0.3*distress
	if audio != nil {
		score = 0.7*score + 0.3*clamp01(audio.Energy)
	}
	return clamp01(score)
}

// confidence grows with utterance length; very short inputs carry little
// lexical evidence.
func confidence(tokenCount int) float64 {
	if tokenCount == 0 {
		return 0
	}
	return clamp01(0.4 + float64(tokenCount)/20)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
