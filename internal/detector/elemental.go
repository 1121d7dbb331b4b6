package detector

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/dialogd/internal/element"
)

// minElementDensity is the keyword density needed to claim a tone.
const minElementDensity = 0.1

// ElementalResonance classifies the tone register. It only ever colors the
// response and never fires above P3.
type ElementalResonance struct{}

// NewElementalResonance creates the tone detector.
func NewElementalResonance() *ElementalResonance { return &ElementalResonance{} }

func (e *ElementalResonance) ID() ID     { return ElementalResonanceID }
func (e *ElementalResonance) Tier() Tier { return P3 }

// Detect implements Detector.
func (e *ElementalResonance) Detect(ctx context.Context, in Input) (*Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scores := in.Extraction.Elements
	if scores == nil {
		scores = element.Score(in.Extraction.Tokens)
	}
	dominant, density := scores.Dominant()
	if dominant == element.Unknown || density < minElementDensity {
		return nil, nil
	}
	return &Claim{
		Source:     ElementalResonanceID,
		Tier:       P3,
		Confidence: clamp01(0.5*scores.Clarity() + density),
		Hint:       ElementHint{Element: dominant, Scores: scores},
		Rationale:  fmt.Sprintf("dominant tone %s (density %.2f)", dominant, density),
	}, nil
}
