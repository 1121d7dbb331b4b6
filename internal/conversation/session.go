package conversation

import (
	"time"

	"github.com/fyrsmithlabs/dialogd/internal/arbitration"
	"github.com/fyrsmithlabs/dialogd/internal/element"
	"github.com/fyrsmithlabs/dialogd/internal/loop"
	"github.com/fyrsmithlabs/dialogd/internal/memory"
	"github.com/fyrsmithlabs/dialogd/internal/signal"
)

const (
	// DefaultHistorySize is the number of turns kept for detector context.
	DefaultHistorySize = 8
	// InitialTrust is the trust level of a new session.
	InitialTrust = 0.5
)

// Session is the hot state of one conversation.
type Session struct {
	ID              string          `json:"id"`
	CreatedAt       time.Time       `json:"created_at"`
	LastActivity    time.Time       `json:"last_activity"`
	Loop            loop.State      `json:"loop"`
	TrustLevel      float64         `json:"trust_level"`
	DominantElement element.Element `json:"dominant_element"`
	TurnCount       int             `json:"turn_count"`
	History         *History        `json:"-"`
}

// Clone returns a deep copy so the caller may mutate it freely.
func (s Session) Clone() Session {
	out := s
	out.History = s.History.Clone()
	out.Loop = s.Loop.Clone()
	return out
}

// Turn is the immutable record of one exchange.
type Turn struct {
	ID    string                `json:"id"`
	Input string                `json:"input"`
	Audio *signal.AudioFeatures `json:"audio,omitempty"`
	At    time.Time             `json:"at"`
	Plan  TurnPlan              `json:"plan"`
}

// ToneModulation is how the responder should color its reply.
type ToneModulation struct {
	Element   element.Element `json:"element"`
	Archetype string          `json:"archetype,omitempty"`
	Symbol    string          `json:"symbol,omitempty"`
	// Pace is one of "slow", "steady" or "brisk".
	Pace          string   `json:"pace"`
	Pause         bool     `json:"pause,omitempty"`
	SafetyCheckIn bool     `json:"safety_check_in,omitempty"`
	Urgent        bool     `json:"urgent,omitempty"`
	Trust         float64  `json:"trust"`
	Cues          []string `json:"cues,omitempty"`
}

// Pace values.
const (
	PaceSlow   = "slow"
	PaceSteady = "steady"
	PaceBrisk  = "brisk"
)

// TurnPlan is everything the responder needs to produce one reply.
type TurnPlan struct {
	TurnID      string                `json:"turn_id"`
	SessionID   string                `json:"session_id"`
	Directive   arbitration.Directive `json:"directive"`
	LoopOutcome loop.Outcome          `json:"loop_outcome"`
	Memory      memory.Context        `json:"memory"`
	Tone        ToneModulation        `json:"tone"`
	// Degraded is set when an internal fault forced a minimal plan.
	Degraded       bool   `json:"degraded,omitempty"`
	DegradedReason string `json:"degraded_reason,omitempty"`
}

// History is a fixed-size ring of recent turns.
type History struct {
	buf  []Turn
	next int
	full bool
}

// NewHistory returns a ring holding at most size turns.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{buf: make([]Turn, size)}
}

// Push appends t, evicting the oldest turn when full.
func (h *History) Push(t Turn) {
	h.buf[h.next] = t
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
}

// Len returns the number of stored turns.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	if h.full {
		return len(h.buf)
	}
	return h.next
}

// Cap returns the ring size.
func (h *History) Cap() int {
	if h == nil {
		return 0
	}
	return len(h.buf)
}

// Turns returns the stored turns, oldest first.
func (h *History) Turns() []Turn {
	if h == nil {
		return nil
	}
	if !h.full {
		return append([]Turn(nil), h.buf[:h.next]...)
	}
	out := make([]Turn, 0, len(h.buf))
	out = append(out, h.buf[h.next:]...)
	return append(out, h.buf[:h.next]...)
}

// Inputs returns the raw user inputs, oldest first.
func (h *History) Inputs() []string {
	turns := h.Turns()
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = t.Input
	}
	return out
}

// Clone returns an independent copy.
func (h *History) Clone() *History {
	if h == nil {
		return nil
	}
	return &History{buf: append([]Turn(nil), h.buf...), next: h.next, full: h.full}
}
