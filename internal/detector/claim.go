package detector

import (
	"encoding/json"

	"github.com/fyrsmithlabs/dialogd/internal/element"
)

// ID names a detector.
type ID string

const (
	CatastrophicGuardID  ID = "catastrophic_guard"
	BoundaryID           ID = "boundary"
	UrgencyID            ID = "urgency"
	LoopingTriggerID     ID = "looping_trigger"
	ElementalResonanceID ID = "elemental_resonance"
	ContemplativeID      ID = "contemplative_space"
)

// precedence breaks exact ties within a tier.
var precedence = map[ID]int{
	CatastrophicGuardID:  0,
	BoundaryID:           1,
	UrgencyID:            2,
	LoopingTriggerID:     3,
	ElementalResonanceID: 4,
	ContemplativeID:      5,
}

// Precedence returns the fixed tie-break rank of a detector. Unknown
// detectors rank after all known ones.
func Precedence(id ID) int {
	if p, ok := precedence[id]; ok {
		return p
	}
	return len(precedence)
}

// Claim is one detector's proposal for the current turn.
type Claim struct {
	Source            ID      `json:"source"`
	Tier              Tier    `json:"tier"`
	Confidence        float64 `json:"confidence"`
	Hint              Hint    `json:"-"`
	Rationale         string  `json:"rationale"`
	ExpiresAfterTurns int     `json:"expires_after_turns"`
}

// MarshalJSON includes the hint variant name alongside its fields.
func (c Claim) MarshalJSON() ([]byte, error) {
	type plain Claim
	var hintType string
	if c.Hint != nil {
		hintType = c.Hint.HintType()
	}
	return json.Marshal(struct {
		plain
		HintType string `json:"hint_type"`
		Hint     Hint   `json:"hint,omitempty"`
	}{plain(c), hintType, c.Hint})
}

// Hint is the closed set of claim payloads. Each detector emits exactly one
// variant; arbitration switches over them exhaustively.
type Hint interface {
	HintType() string
	sealed()
}

// CrisisCategory classifies an acute safety signal.
type CrisisCategory string

const (
	CategorySuicidal    CrisisCategory = "suicidal"
	CategorySelfHarm    CrisisCategory = "self_harm"
	CategoryAcuteDanger CrisisCategory = "acute_danger"
	CategoryAmbiguous   CrisisCategory = "ambiguous"
)

// CrisisHint asks for a bypass to crisis resources.
type CrisisHint struct {
	Category CrisisCategory `json:"category"`
	Phrases  []string       `json:"phrases"`
}

// AmbiguousSafetyHint is synthesized by the bank when the guard could not run.
type AmbiguousSafetyHint struct {
	Reason string `json:"reason"`
}

// BoundaryRequest is the kind of boundary the user set.
type BoundaryRequest string

const (
	BoundaryStop   BoundaryRequest = "stop"
	BoundarySlow   BoundaryRequest = "slow"
	BoundarySwitch BoundaryRequest = "switch"
)

// BoundaryHint asks the response to honor a stop, slow-down or topic switch.
type BoundaryHint struct {
	Request BoundaryRequest `json:"request"`
	Phrases []string        `json:"phrases"`
}

// UrgencyHint asks for a direct answer without clarification.
type UrgencyHint struct {
	Phrases []string `json:"phrases"`
}

// LoopHint asks to engage the clarification loop.
type LoopHint struct {
	Score          float64 `json:"score"`
	Threshold      float64 `json:"threshold"`
	Intensity      float64 `json:"intensity"`
	Ambiguity      float64 `json:"ambiguity"`
	SelfCorrection float64 `json:"self_correction"`
	DepthRequest   float64 `json:"depth_request"`
}

// ElementHint colors the response with the dominant tone element.
type ElementHint struct {
	Element element.Element `json:"element"`
	Scores  element.Scores  `json:"scores"`
}

// ContemplativeHint asks for silence or slower pacing.
type ContemplativeHint struct {
	Cues []string `json:"cues"`
}

func (CrisisHint) HintType() string          { return "crisis" }
func (AmbiguousSafetyHint) HintType() string { return "ambiguous_safety" }
func (BoundaryHint) HintType() string        { return "boundary" }
func (UrgencyHint) HintType() string         { return "urgency" }
func (LoopHint) HintType() string            { return "loop" }
func (ElementHint) HintType() string         { return "element" }
func (ContemplativeHint) HintType() string   { return "contemplative" }

func (CrisisHint) sealed()          {}
func (AmbiguousSafetyHint) sealed() {}
func (BoundaryHint) sealed()        {}
func (UrgencyHint) sealed()         {}
func (LoopHint) sealed()            {}
func (ElementHint) sealed()         {}
func (ContemplativeHint) sealed()   {}
