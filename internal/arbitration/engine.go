package arbitration

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialogd/internal/detector"
)

// Engine resolves claims to directives. It holds no per-turn state.
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates an arbitration engine.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Resolve selects the winning claim and builds the directive. The input
// slice is not modified.
func (e *Engine) Resolve(claims []detector.Claim) (Directive, error) {
	if len(claims) == 0 {
		return PassThrough(), nil
	}

	ordered := slices.Clone(claims)
	detector.SortClaims(ordered)
	winner := ordered[0]

	kind, payload, err := directiveFor(winner)
	if err != nil {
		return PassThrough(), err
	}

	d := Directive{
		Tier:    winner.Tier,
		Kind:    kind,
		Payload: payload,
		Winner:  &winner,
		Audit:   ordered,
	}
	if winner.Tier == detector.P0 {
		d.Kind = KindBypass
	} else {
		for _, c := range ordered[1:] {
			if winner.Tier.Outranks(c.Tier) {
				d.SecondaryModulations = append(d.SecondaryModulations, c)
			}
		}
	}

	if err := Check(d, claims); err != nil {
		e.logger.Error("arbitration invariant violated", zap.Error(err))
		return PassThrough(), err
	}
	return d, nil
}

// directiveFor maps each hint variant to a directive kind and payload.
func directiveFor(c detector.Claim) (Kind, Payload, error) {
	switch h := c.Hint.(type) {
	case detector.CrisisHint:
		return KindBypass, Payload{Crisis: &h}, nil
	case detector.AmbiguousSafetyHint:
		return KindModulateTone, Payload{SafetyCheckIn: true, SafetyReason: h.Reason}, nil
	case detector.BoundaryHint:
		return KindModulateTone, Payload{Boundary: h.Request}, nil
	case detector.UrgencyHint:
		return KindPassThrough, Payload{Urgent: true}, nil
	case detector.LoopHint:
		return KindEngageLoop, Payload{Loop: &h}, nil
	case detector.ElementHint:
		return KindModulateTone, Payload{Element: h.Element}, nil
	case detector.ContemplativeHint:
		return KindModulateTone, Payload{Pause: true, Cues: h.Cues}, nil
	default:
		return "", Payload{}, fmt.Errorf("%w: unhandled hint %T from %s", ErrInvariantViolation, c.Hint, c.Source)
	}
}

// Check verifies a directive against the claims it was resolved from.
func Check(d Directive, claims []detector.Claim) error {
	minTier := detector.TierNone
	for _, c := range claims {
		if c.Tier.Outranks(minTier) {
			minTier = c.Tier
		}
	}
	if d.Tier != minTier {
		return fmt.Errorf("%w: directive tier %s, minimum claim tier %s", ErrInvariantViolation, d.Tier, minTier)
	}
	if d.Tier == detector.P0 {
		if d.Kind != KindBypass {
			return fmt.Errorf("%w: P0 directive has kind %s", ErrInvariantViolation, d.Kind)
		}
		if len(d.SecondaryModulations) > 0 {
			return fmt.Errorf("%w: P0 directive carries modulations", ErrInvariantViolation)
		}
	}
	for _, m := range d.SecondaryModulations {
		if !d.Tier.Outranks(m.Tier) {
			return fmt.Errorf("%w: modulation %s at %s does not rank below %s", ErrInvariantViolation, m.Source, m.Tier, d.Tier)
		}
	}
	return nil
}
