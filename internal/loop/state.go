package loop

import (
	"errors"
	"fmt"
	"math"

	"github.com/fyrsmithlabs/dialogd/internal/element"
)

// ErrStateCorruption is reported when a State fails its invariant checks.
var ErrStateCorruption = errors.New("loop state corruption")

// HardMaxCycles bounds every loop regardless of configuration.
const HardMaxCycles = 5

// Phase is a clarification loop state.
type Phase int

const (
	Idle Phase = iota
	Listening
	Paraphrasing
	AwaitingCheck
	Correcting
	Converged
)

var phaseNames = [...]string{"idle", "listening", "paraphrasing", "awaiting_check", "correcting", "converged"}

func (p Phase) String() string {
	if p >= Idle && p <= Converged {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(b []byte) error {
	for i, n := range phaseNames {
		if n == string(b) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown loop phase %q", string(b))
}

// ValidTransitions defines allowed phase transitions.
var ValidTransitions = map[Phase][]Phase{
	Idle:          {Listening},
	Listening:     {Paraphrasing},
	Paraphrasing:  {AwaitingCheck},
	AwaitingCheck: {AwaitingCheck, Correcting, Converged, Idle},
	Correcting:    {Paraphrasing},
	Converged:     {Idle},
}

// CanTransitionTo checks if a transition from p to target is valid.
func (p Phase) CanTransitionTo(target Phase) bool {
	for _, t := range ValidTransitions[p] {
		if t == target {
			return true
		}
	}
	return false
}

// SubScores are the five convergence components, each in [0,1].
type SubScores struct {
	Semantic      float64 `json:"semantic"`
	Emotional     float64 `json:"emotional"`
	Archetypal    float64 `json:"archetypal"`
	Elemental     float64 `json:"elemental"`
	UserConfirmed float64 `json:"user_confirmed"`
}

func (s SubScores) values() [5]float64 {
	return [5]float64{s.Semantic, s.Emotional, s.Archetypal, s.Elemental, s.UserConfirmed}
}

// State is the per-session loop state. The zero value is Idle.
type State struct {
	Active           bool      `json:"active"`
	Phase            Phase     `json:"phase"`
	CycleCount       int       `json:"cycle_count"`
	MaxCycles        int       `json:"max_cycles"`
	ConvergenceScore float64   `json:"convergence_score"`
	SubScores        SubScores `json:"sub_scores"`
	LastParaphrase   *string   `json:"last_paraphrase"`

	// Target is the normalized utterance being clarified.
	Target          string          `json:"target,omitempty"`
	TargetSentiment float64         `json:"target_sentiment,omitempty"`
	TargetIntensity float64         `json:"target_intensity,omitempty"`
	Element         element.Element `json:"element,omitempty"`
	// Reprompted is set after one side-stepped check.
	Reprompted bool `json:"reprompted,omitempty"`
}

// Validate checks the state invariants.
func Validate(s State) error {
	if s.Phase < Idle || s.Phase > Converged {
		return fmt.Errorf("%w: unknown phase %d", ErrStateCorruption, int(s.Phase))
	}
	if s.CycleCount < 0 || s.MaxCycles < 0 {
		return fmt.Errorf("%w: negative cycle counters", ErrStateCorruption)
	}
	if s.CycleCount > s.MaxCycles {
		return fmt.Errorf("%w: cycle %d exceeds max %d", ErrStateCorruption, s.CycleCount, s.MaxCycles)
	}
	if s.MaxCycles > HardMaxCycles {
		return fmt.Errorf("%w: max cycles %d above hard cap %d", ErrStateCorruption, s.MaxCycles, HardMaxCycles)
	}
	if !unit(s.ConvergenceScore) {
		return fmt.Errorf("%w: convergence score %v out of range", ErrStateCorruption, s.ConvergenceScore)
	}
	for _, v := range s.SubScores.values() {
		if !unit(v) {
			return fmt.Errorf("%w: sub-score %v out of range", ErrStateCorruption, v)
		}
	}
	if s.Active {
		if s.Phase != AwaitingCheck {
			return fmt.Errorf("%w: active loop resting in %s", ErrStateCorruption, s.Phase)
		}
		if s.CycleCount < 1 {
			return fmt.Errorf("%w: active loop without a cycle", ErrStateCorruption)
		}
	} else if s.Phase != Idle || s.CycleCount != 0 {
		return fmt.Errorf("%w: inactive loop in %s with cycle %d", ErrStateCorruption, s.Phase, s.CycleCount)
	}
	return nil
}

func unit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// Clone returns a copy that shares no memory with s.
func (s State) Clone() State {
	if s.LastParaphrase != nil {
		p := *s.LastParaphrase
		s.LastParaphrase = &p
	}
	return s
}
