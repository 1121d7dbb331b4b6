package detector

import (
	"context"
	"strings"
)

var urgencyPhrases = family("urgency",
	`\bright (now|away)\b`,
	`\basap\b`,
	`\burgent(ly)?\b`,
	`\bimmediately\b`,
	`\bi need (an|the|your) answer\b`,
	`\b(need|want) (it|this|an answer|help) (now|today|fast)\b`,
	`\bhurry\b`,
	`\bno time\b`,
	`\bdeadline\b`,
	`\bjust tell me\b`,
	`\bquickly\b`,
)

// Urgency detects time pressure and demands for an immediate answer.
type Urgency struct{}

// NewUrgency creates the urgency detector.
func NewUrgency() *Urgency { return &Urgency{} }

func (u *Urgency) ID() ID     { return UrgencyID }
func (u *Urgency) Tier() Tier { return P1 }

// Detect implements Detector.
func (u *Urgency) Detect(ctx context.Context, in Input) (*Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hits := urgencyPhrases.matches(in.Extraction.Normalized)
	if len(hits) == 0 {
		return nil, nil
	}
	conf := 0.6 + 0.15*float64(len(hits)) + 0.1*in.Extraction.Intensity
	return &Claim{
		Source:     UrgencyID,
		Tier:       P1,
		Confidence: min(conf, 0.95),
		Hint:       UrgencyHint{Phrases: hits},
		Rationale:  "time pressure: " + strings.Join(hits, ", "),
	}, nil
}
