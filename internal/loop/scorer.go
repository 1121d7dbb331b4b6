package loop

import (
	"math"
	"regexp"

	"github.com/fyrsmithlabs/dialogd/internal/element"
	"github.com/fyrsmithlabs/dialogd/internal/signal"
)

// Scorer computes convergence sub-scores for a reply.
type Scorer interface {
	Score(s State, in Input, r Response) SubScores
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(s State, in Input, r Response) SubScores

// Score calls f.
func (f ScorerFunc) Score(s State, in Input, r Response) SubScores { return f(s, in, r) }

var hedgeRe = regexp.MustCompile(`\b(maybe|sort of|kind of|i guess|not sure|i don't know|somehow|perhaps)\b`)

var stopwords = map[string]bool{
	"i": true, "a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"it": true, "it's": true, "is": true, "was": true, "to": true, "of": true, "in": true,
	"that": true, "that's": true, "this": true, "me": true, "my": true, "you": true,
	"yes": true, "yeah": true, "no": true, "so": true, "just": true, "like": true,
	"am": true, "i'm": true, "be": true, "do": true, "what": true, "about": true,
	"exactly": true, "really": true, "more": true, "not": true, "with": true, "for": true,
	"at": true, "on": true, "we": true, "he": true, "she": true, "they": true, "are": true,
	"have": true, "has": true, "had": true, "been": true, "can": true, "if": true, "as": true,
}

// ContentWords returns the distinct non-stopword tokens of normalized text,
// in first-occurrence order.
func ContentWords(normalized string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range signal.Tokenize(normalized) {
		if stopwords[tok] || seen[tok] || len(tok) < 2 {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// LexicalScorer scores replies from token overlap, sentiment and tone.
type LexicalScorer struct{}

// Score implements Scorer.
func (LexicalScorer) Score(s State, in Input, r Response) SubScores {
	ext := in.Extraction
	return SubScores{
		Semantic:      semantic(s, ext.Normalized),
		Emotional:     emotional(s, ext),
		Archetypal:    archetypal(ext.Normalized),
		Elemental:     elemental(s.Element, in.Element),
		UserConfirmed: confirmed(r),
	}
}

func semantic(s State, reply string) float64 {
	words := ContentWords(reply)
	if len(words) == 0 {
		return 0.5
	}
	ref := make(map[string]bool)
	for _, w := range ContentWords(s.Target) {
		ref[w] = true
	}
	if s.LastParaphrase != nil {
		for _, w := range ContentWords(*s.LastParaphrase) {
			ref[w] = true
		}
	}
	var shared int
	for _, w := range words {
		if ref[w] {
			shared++
		}
	}
	return float64(shared) / float64(len(words))
}

func emotional(s State, ext signal.Extraction) float64 {
	proximity := 1 - math.Abs(ext.Sentiment-s.TargetSentiment)/2
	settling := 1 - math.Max(0, ext.Intensity-s.TargetIntensity)
	return clamp01(0.5*proximity + 0.5*settling)
}

func archetypal(reply string) float64 {
	hedges := len(hedgeRe.FindAllString(reply, -1))
	return clamp01(1 - float64(hedges)/3)
}

func elemental(loopTone, replyTone element.Element) float64 {
	switch {
	case loopTone == element.Unknown || replyTone == element.Unknown:
		return 0.5
	case loopTone == replyTone:
		return 1
	}
	return 0
}

func confirmed(r Response) float64 {
	switch r {
	case Confirmation:
		return 1
	case Affirmative:
		return 0.75
	case Negative, Correction:
		return 0
	}
	return 0.5
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
