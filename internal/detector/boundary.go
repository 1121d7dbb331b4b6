package detector

import (
	"context"
	"fmt"
	"strings"
)

var boundaryFamilies = []phraseFamily{
	family(string(BoundaryStop),
		`^(please )?stop\b`,
		`\b(please|just) stop\b`,
		`\bstop (asking|it|this|talking|pushing|prying)\b`,
		`\bthat's enough\b`,
		`\benough (already|for now|of this)\b`,
		`\b(don't|do not) want to (talk|discuss|go into|get into|think) about\b`,
		`\b(drop|leave) it\b`,
		`\bleave me alone\b`,
	),
	family(string(BoundarySwitch),
		`\b(change|switch)( the)? (subject|topic)s?\b`,
		`\bcan we (switch|change|move on|talk about something else)\b`,
		`\b(talk|think) about something else\b`,
		`\b(different|another|new) (topic|subject)\b`,
		`\blet's move on\b`,
	),
	family(string(BoundarySlow),
		`\bslow (down|it down)\b`,
		`\btoo (fast|quick|quickly)\b`,
		`\bone (thing|step|question) at a time\b`,
		`\b(can|could) we (pause|take a break)\b`,
		`\bease up\b`,
	),
}

// Boundary detects explicit requests to stop, slow down or change subject.
type Boundary struct{}

// NewBoundary creates the boundary detector.
func NewBoundary() *Boundary { return &Boundary{} }

func (b *Boundary) ID() ID     { return BoundaryID }
func (b *Boundary) Tier() Tier { return P1 }

// Detect implements Detector. When several families match, the one with the
// most hits wins; ties prefer stop over switch over slow.
func (b *Boundary) Detect(ctx context.Context, in Input) (*Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := in.Extraction.Normalized
	var (
		best     phraseFamily
		bestHits []string
	)
	for _, f := range boundaryFamilies {
		if hits := f.matches(text); len(hits) > len(bestHits) {
			best, bestHits = f, hits
		}
	}
	if len(bestHits) == 0 {
		return nil, nil
	}
	return &Claim{
		Source:     BoundaryID,
		Tier:       P1,
		Confidence: clamp01(0.85 + 0.05*float64(len(bestHits)-1)),
		Hint:       BoundaryHint{Request: BoundaryRequest(best.name), Phrases: bestHits},
		Rationale:  fmt.Sprintf("boundary request (%s): %s", best.name, strings.Join(bestHits, ", ")),
	}, nil
}
