package arbitration

import (
	"errors"

	"github.com/fyrsmithlabs/dialogd/internal/detector"
	"github.com/fyrsmithlabs/dialogd/internal/element"
)

// ErrInvariantViolation is returned when a resolved directive breaks an
// arbitration invariant. It indicates a programming error.
var ErrInvariantViolation = errors.New("arbitration invariant violated")

// Kind is what the turn's response should do.
type Kind string

const (
	KindBypass       Kind = "bypass-to-resource"
	KindEngageLoop   Kind = "engage-loop"
	KindModulateTone Kind = "modulate-tone"
	KindPassThrough  Kind = "pass-through"
)

// Resource is a crisis resource attached to a bypass directive.
type Resource struct {
	Name    string `json:"name"`
	Contact string `json:"contact,omitempty"`
	URL     string `json:"url,omitempty"`
	Note    string `json:"note,omitempty"`
}

// Payload holds the winner's instruction details. Only the fields relevant
// to the winning hint are set.
type Payload struct {
	Crisis        *detector.CrisisHint     `json:"crisis,omitempty"`
	Resources     []Resource               `json:"resources,omitempty"`
	SafetyCheckIn bool                     `json:"safety_check_in,omitempty"`
	SafetyReason  string                   `json:"safety_reason,omitempty"`
	Boundary      detector.BoundaryRequest `json:"boundary,omitempty"`
	Urgent        bool                     `json:"urgent,omitempty"`
	Loop          *detector.LoopHint       `json:"loop,omitempty"`
	Element       element.Element          `json:"element,omitempty"`
	Pause         bool                     `json:"pause,omitempty"`
	Cues          []string                 `json:"cues,omitempty"`
}

// Directive is the single arbitrated instruction for a turn.
type Directive struct {
	Tier    detector.Tier `json:"tier"`
	Kind    Kind          `json:"kind"`
	Payload Payload       `json:"payload"`
	// Winner is nil for a pass-through with no claims.
	Winner               *detector.Claim  `json:"winner,omitempty"`
	SecondaryModulations []detector.Claim `json:"secondary_modulations,omitempty"`
	// Audit lists every claim considered this turn, in arbitration order.
	Audit []detector.Claim `json:"audit,omitempty"`
}

// IsSafety reports whether the directive was driven by the safety detector,
// either a crisis bypass or a fail-closed check-in.
func (d Directive) IsSafety() bool {
	return d.Kind == KindBypass || d.Payload.SafetyCheckIn
}

// PassThrough returns the directive for a turn with no claims.
func PassThrough() Directive {
	return Directive{Tier: detector.TierNone, Kind: KindPassThrough}
}
