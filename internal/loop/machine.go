package loop

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/dialogd/internal/element"
	"github.com/fyrsmithlabs/dialogd/internal/signal"
)

// Input is what the machine needs from one turn.
type Input struct {
	// Engage is set when the turn's directive is engage-loop.
	Engage     bool
	Extraction signal.Extraction
	// Element is the turn's dominant tone, falling back to the session's.
	Element element.Element
	// Freeze is set on safety turns; the state is returned untouched.
	Freeze bool
	// Exit is set when the user leaves the loop (stop, switch, urgency).
	Exit bool
}

// Action is what the loop wants from the current response.
type Action string

const (
	ActionNone      Action = "none"
	ActionReflect   Action = "reflect"
	ActionReprompt  Action = "reprompt"
	ActionConverged Action = "converged"
	ActionExited    Action = "exited"
	ActionFrozen    Action = "frozen"
	ActionReset     Action = "reset"
)

// Reason explains why a loop converged.
type Reason string

const (
	ReasonConfirmed Reason = "confirmed"
	ReasonThreshold Reason = "threshold"
	ReasonCap       Reason = "cap"
	ReasonStalled   Reason = "stalled"
)

// ReflectionHint is a structured instruction for the responder to reflect
// the user's meaning back. It is not user-facing text.
type ReflectionHint struct {
	Target     string          `json:"target"`
	Focus      []string        `json:"focus"`
	Element    element.Element `json:"element,omitempty"`
	Archetype  string          `json:"archetype,omitempty"`
	Symbol     string          `json:"symbol,omitempty"`
	Cycle      int             `json:"cycle"`
	Correction bool            `json:"correction,omitempty"`
}

// Outcome describes the loop's intent for the current turn.
type Outcome struct {
	Action     Action          `json:"action"`
	Reason     Reason          `json:"reason,omitempty"`
	Reflection *ReflectionHint `json:"reflection,omitempty"`
	Response   Response        `json:"response"`
	Score      float64         `json:"score"`
	SubScores  SubScores       `json:"sub_scores"`
	Cycle      int             `json:"cycle"`
	// Trace lists the phases visited this turn, starting with the prior phase.
	Trace []Phase `json:"trace"`
	// Err is set when the prior state was corrupt and had to be reset.
	Err error `json:"-"`
}

// Reflecting reports whether the response should be a clarifying reflection.
func (o Outcome) Reflecting() bool {
	return o.Action == ActionReflect || o.Action == ActionReprompt
}

// Machine advances loop state. It is stateless and safe for concurrent use.
type Machine struct {
	cfg    Config
	scorer Scorer
}

// Option configures a Machine.
type Option func(*Machine)

// WithScorer replaces the lexical scorer.
func WithScorer(s Scorer) Option {
	return func(m *Machine) {
		if s != nil {
			m.scorer = s
		}
	}
}

// NewMachine creates a machine after validating cfg.
func NewMachine(cfg Config, opts ...Option) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid loop config: %w", err)
	}
	m := &Machine{cfg: cfg, scorer: LexicalScorer{}}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Advance computes the next state and the turn's outcome. The input state
// is never modified.
func (m *Machine) Advance(s State, in Input) (State, Outcome) {
	if in.Freeze {
		action := ActionNone
		if s.Active {
			action = ActionFrozen
		}
		return s, Outcome{Action: action, Cycle: s.CycleCount, Score: s.ConvergenceScore, SubScores: s.SubScores, Trace: []Phase{s.Phase}}
	}
	if err := Validate(s); err != nil {
		return State{}, Outcome{Action: ActionReset, Trace: []Phase{s.Phase, Idle}, Err: err}
	}
	if !s.Active {
		if !in.Engage {
			return s, Outcome{Action: ActionNone, Trace: []Phase{Idle}}
		}
		return m.engage(in)
	}
	if in.Exit {
		return State{}, Outcome{
			Action: ActionExited,
			Cycle:  s.CycleCount,
			Score:  s.ConvergenceScore,
			Trace:  []Phase{AwaitingCheck, Idle},
		}
	}
	return m.check(s, in)
}

func (m *Machine) engage(in Input) (State, Outcome) {
	s := State{
		Active:          true,
		Phase:           Listening,
		MaxCycles:       min(m.cfg.MaxCyclesFor(in.Element), HardMaxCycles),
		Target:          in.Extraction.Normalized,
		TargetSentiment: in.Extraction.Sentiment,
		TargetIntensity: in.Extraction.Intensity,
		Element:         in.Element,
	}
	trace := []Phase{Idle, Listening}
	s, hint := m.paraphrase(s, &trace, false)
	return s, Outcome{Action: ActionReflect, Reflection: hint, Cycle: s.CycleCount, Trace: trace}
}

// paraphrase moves Listening or Correcting through Paraphrasing to
// AwaitingCheck, counting a cycle.
func (m *Machine) paraphrase(s State, trace *[]Phase, correction bool) (State, *ReflectionHint) {
	s.Phase = Paraphrasing
	s.CycleCount++
	*trace = append(*trace, Paraphrasing)

	focus := ContentWords(s.Target)
	if len(focus) > 5 {
		focus = focus[:5]
	}
	hint := &ReflectionHint{
		Target:     s.Target,
		Focus:      focus,
		Element:    s.Element,
		Archetype:  element.Archetype(s.Element),
		Symbol:     element.Symbols[s.Element],
		Cycle:      s.CycleCount,
		Correction: correction,
	}
	summary := strings.Join(focus, " ")
	s.LastParaphrase = &summary
	s.Reprompted = false

	s.Phase = AwaitingCheck
	*trace = append(*trace, AwaitingCheck)
	return s, hint
}

func (m *Machine) check(s State, in Input) (State, Outcome) {
	resp := Classify(in.Extraction.Text)
	sub := m.sanitize(m.scorer.Score(s, in, resp))
	score := m.cfg.Weights.Apply(sub)

	out := Outcome{Response: resp, Score: score, SubScores: sub, Trace: []Phase{AwaitingCheck}}

	converge := func(reason Reason) (State, Outcome) {
		out.Action = ActionConverged
		out.Reason = reason
		out.Cycle = s.CycleCount
		out.Trace = append(out.Trace, Converged, Idle)
		return State{}, out
	}

	switch {
	case resp == Confirmation:
		return converge(ReasonConfirmed)
	case score >= m.cfg.Threshold:
		return converge(ReasonThreshold)
	case s.CycleCount >= s.MaxCycles:
		return converge(ReasonCap)
	case resp == Correction || resp == Negative:
		s.Phase = Correcting
		out.Trace = append(out.Trace, Correcting)
		if in.Extraction.Normalized != "" {
			s.Target = in.Extraction.Normalized
			s.TargetSentiment = in.Extraction.Sentiment
			s.TargetIntensity = in.Extraction.Intensity
		}
		s.ConvergenceScore, s.SubScores = score, sub
		var hint *ReflectionHint
		s, hint = m.paraphrase(s, &out.Trace, true)
		out.Action = ActionReflect
		out.Reflection = hint
		out.Cycle = s.CycleCount
		return s, out
	case !s.Reprompted:
		s.Reprompted = true
		s.ConvergenceScore, s.SubScores = score, sub
		out.Action = ActionReprompt
		out.Reflection = m.reprompt(s)
		out.Cycle = s.CycleCount
		out.Trace = append(out.Trace, AwaitingCheck)
		return s, out
	}
	return converge(ReasonStalled)
}

func (m *Machine) reprompt(s State) *ReflectionHint {
	focus := ContentWords(s.Target)
	if len(focus) > 5 {
		focus = focus[:5]
	}
	return &ReflectionHint{
		Target:    s.Target,
		Focus:     focus,
		Element:   s.Element,
		Archetype: element.Archetype(s.Element),
		Symbol:    element.Symbols[s.Element],
		Cycle:     s.CycleCount,
	}
}

// sanitize clamps sub-scores from pluggable scorers so they cannot corrupt
// the stored state.
func (m *Machine) sanitize(s SubScores) SubScores {
	return SubScores{
		Semantic:      clamp01(s.Semantic),
		Emotional:     clamp01(s.Emotional),
		Archetypal:    clamp01(s.Archetypal),
		Elemental:     clamp01(s.Elemental),
		UserConfirmed: clamp01(s.UserConfirmed),
	}
}

// Config returns the machine configuration.
func (m *Machine) Config() Config { return m.cfg }
