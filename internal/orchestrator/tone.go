package orchestrator

import (
	"github.com/fyrsmithlabs/dialogd/internal/arbitration"
	"github.com/fyrsmithlabs/dialogd/internal/conversation"
	"github.com/fyrsmithlabs/dialogd/internal/detector"
	"github.com/fyrsmithlabs/dialogd/internal/element"
	"github.com/fyrsmithlabs/dialogd/internal/loop"
	"github.com/fyrsmithlabs/dialogd/internal/signal"
)

// turnElement picks the turn's tone: the elemental claim, then the
// extraction's dominant element, then the session's.
func turnElement(d arbitration.Directive, ext signal.Extraction, current element.Element) element.Element {
	for _, c := range d.Audit {
		if h, ok := c.Hint.(detector.ElementHint); ok && h.Element != element.Unknown {
			return h.Element
		}
	}
	if e, _ := ext.Elements.Dominant(); e != element.Unknown {
		return e
	}
	return current
}

// freezesLoop reports whether the directive suspends an active loop.
func freezesLoop(d arbitration.Directive) bool {
	return d.Tier == detector.P0 || d.Payload.SafetyCheckIn
}

// exitsLoop reports whether the user asked to leave the loop this turn.
func exitsLoop(d arbitration.Directive) bool {
	for _, c := range d.Audit {
		switch h := c.Hint.(type) {
		case detector.BoundaryHint:
			if h.Request == detector.BoundaryStop || h.Request == detector.BoundarySwitch {
				return true
			}
		case detector.UrgencyHint:
			return true
		}
	}
	return false
}

// trustSignal maps a turn's outcome to a trust update signal.
func trustSignal(d arbitration.Directive, out loop.Outcome) float64 {
	switch {
	case out.Action == loop.ActionConverged && (out.Reason == loop.ReasonConfirmed || out.Reason == loop.ReasonThreshold):
		return conversation.SignalConverged
	case out.Action != loop.ActionNone && (out.Response == loop.Affirmative || out.Response == loop.Confirmation):
		return conversation.SignalConfirmation
	case d.Payload.Boundary != "":
		return conversation.SignalBoundary
	case out.Action != loop.ActionNone && (out.Response == loop.Correction || out.Response == loop.Negative):
		return conversation.SignalCorrection
	}
	return conversation.SignalNone
}

// toneFor folds the directive and its secondary modulations into the tone
// handed to the responder. A bypass gets a plain slow tone with no
// element, archetype or symbol.
func toneFor(d arbitration.Directive, e element.Element, trust float64) conversation.ToneModulation {
	if d.Kind == arbitration.KindBypass {
		return conversation.ToneModulation{
			Element: element.Unknown,
			Pace:    conversation.PaceSlow,
			Trust:   trust,
		}
	}
	t := conversation.ToneModulation{
		Element:       e,
		Archetype:     element.Archetype(e),
		Symbol:        element.Symbols[e],
		Pause:         d.Payload.Pause,
		SafetyCheckIn: d.Payload.SafetyCheckIn,
		Urgent:        d.Payload.Urgent,
		Trust:         trust,
		Cues:          append([]string(nil), d.Payload.Cues...),
	}
	for _, c := range d.SecondaryModulations {
		if h, ok := c.Hint.(detector.ContemplativeHint); ok {
			t.Pause = true
			t.Cues = append(t.Cues, h.Cues...)
		}
	}

	switch {
	case t.SafetyCheckIn, t.Pause, d.Payload.Boundary == detector.BoundarySlow:
		t.Pace = conversation.PaceSlow
	case t.Urgent:
		t.Pace = conversation.PaceBrisk
	default:
		t.Pace = conversation.PaceSteady
	}
	return t
}
