package detector

import (
	"context"

	"github.com/fyrsmithlabs/dialogd/internal/element"
	"github.com/fyrsmithlabs/dialogd/internal/signal"
)

// Detector proposes at most one claim per turn. Implementations must be
// safe for concurrent use and must not mutate Input.
type Detector interface {
	ID() ID
	Tier() Tier
	Detect(ctx context.Context, in Input) (*Claim, error)
}

// State is the read-only session snapshot detectors see.
type State struct {
	LoopActive      bool
	LoopPhase       string
	CycleCount      int
	DominantElement element.Element
	TrustLevel      float64
}

// Input is everything a detector may consult for one turn.
type Input struct {
	Extraction signal.Extraction
	State      State
	// Recent holds prior user utterances, oldest first.
	Recent []string
}

func clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
