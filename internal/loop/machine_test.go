package loop

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/dialogd/internal/element"
	"github.com/fyrsmithlabs/dialogd/internal/signal"
)

func fixedScorer(v float64) Scorer {
	return ScorerFunc(func(State, Input, Response) SubScores {
		return SubScores{Semantic: v, Emotional: v, Archetypal: v, Elemental: v, UserConfirmed: v}
	})
}

func turn(t *testing.T, text string) Input {
	t.Helper()
	ext, err := signal.NewLexical().Extract(context.Background(), text, nil, nil)
	require.NoError(t, err)
	return Input{Extraction: ext}
}

func engaged(t *testing.T, m *Machine, text string) State {
	t.Helper()
	in := turn(t, text)
	in.Engage = true
	s, out := m.Advance(State{}, in)
	require.Equal(t, ActionReflect, out.Action)
	require.True(t, s.Active)
	return s
}

func newMachine(t *testing.T, maxCycles int, opts ...Option) *Machine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DefaultMaxCycles = maxCycles
	cfg.MaxCyclesByElement = nil
	m, err := NewMachine(cfg, opts...)
	require.NoError(t, err)
	return m
}

func TestEngage(t *testing.T) {
	m := newMachine(t, 3)
	in := turn(t, "I feel torn between my family and my dream")
	in.Engage = true
	in.Element = element.Water

	s, out := m.Advance(State{}, in)

	assert.Equal(t, AwaitingCheck, s.Phase)
	assert.Equal(t, 1, s.CycleCount)
	assert.Equal(t, 3, s.MaxCycles)
	require.NotNil(t, s.LastParaphrase)
	assert.Equal(t, []Phase{Idle, Listening, Paraphrasing, AwaitingCheck}, out.Trace)
	require.NotNil(t, out.Reflection)
	assert.Equal(t, "Healer", out.Reflection.Archetype)
	assert.Equal(t, "ocean", out.Reflection.Symbol)
	assert.Contains(t, out.Reflection.Focus, "torn")
	assert.True(t, out.Reflecting())
}

func TestIdleWithoutEngage(t *testing.T) {
	s, out := newMachine(t, 3).Advance(State{}, turn(t, "hello"))
	assert.Equal(t, State{}, s)
	assert.Equal(t, ActionNone, out.Action)
}

func TestForcedConvergenceAtCap(t *testing.T) {
	m := newMachine(t, 3, WithScorer(fixedScorer(0.3)))
	s := engaged(t, m, "it's complicated, I don't know how to say it")

	replies := []string{
		"no, it's more like I'm scared",
		"not quite, actually it's more like shame",
		"no, more like I'm tired of pretending",
		"no, it's more like something else",
	}
	var out Outcome
	converged := 0
	for i, reply := range replies {
		s, out = m.Advance(s, turn(t, reply))
		assert.LessOrEqual(t, s.CycleCount, s.MaxCycles)
		if out.Action == ActionConverged {
			converged = i + 2
			break
		}
		assert.Equal(t, ActionReflect, out.Action)
		assert.InDelta(t, 0.3, out.Score, 1e-9)
	}
	assert.Equal(t, 4, converged, "loop must converge on turn 4")
	assert.Equal(t, ReasonCap, out.Reason)
	assert.Equal(t, 3, out.Cycle)
	assert.Equal(t, State{}, s)
}

func TestExplicitConfirmationConverges(t *testing.T) {
	m := newMachine(t, 3, WithScorer(fixedScorer(0.6)))
	s := engaged(t, m, "I keep sabotaging things and I'm not sure why")

	s, out := m.Advance(s, turn(t, "yes, that's exactly it"))

	assert.Equal(t, ActionConverged, out.Action)
	assert.Equal(t, ReasonConfirmed, out.Reason)
	assert.InDelta(t, 0.6, out.Score, 1e-9)
	assert.Equal(t, []Phase{AwaitingCheck, Converged, Idle}, out.Trace)
	assert.False(t, s.Active)
}

func TestThresholdConverges(t *testing.T) {
	m := newMachine(t, 3, WithScorer(fixedScorer(0.8)))
	s := engaged(t, m, "something about work feels off")
	_, out := m.Advance(s, turn(t, "hmm, work has been heavy"))
	assert.Equal(t, ReasonThreshold, out.Reason)
}

func TestSideStepRepromptsOnceThenConverges(t *testing.T) {
	m := newMachine(t, 5, WithScorer(fixedScorer(0.3)))
	s := engaged(t, m, "my thoughts are tangled")

	s, out := m.Advance(s, turn(t, "anyway, what's the weather like"))
	assert.Equal(t, ActionReprompt, out.Action)
	assert.True(t, s.Reprompted)
	assert.Equal(t, 1, s.CycleCount)
	assert.Equal(t, []Phase{AwaitingCheck, AwaitingCheck}, out.Trace)

	s, out = m.Advance(s, turn(t, "did you see the game"))
	assert.Equal(t, ActionConverged, out.Action)
	assert.Equal(t, ReasonStalled, out.Reason)
	assert.False(t, s.Active)
}

func TestCorrectionClearsReprompt(t *testing.T) {
	m := newMachine(t, 5, WithScorer(fixedScorer(0.3)))
	s := engaged(t, m, "my thoughts are tangled")
	s, _ = m.Advance(s, turn(t, "whatever"))
	require.True(t, s.Reprompted)

	s, out := m.Advance(s, turn(t, "actually it's more like grief"))
	assert.Equal(t, ActionReflect, out.Action)
	assert.True(t, out.Reflection.Correction)
	assert.False(t, s.Reprompted)
	assert.Equal(t, "actually it's more like grief", s.Target)
	assert.Equal(t, 2, s.CycleCount)
}

func TestFreezeLeavesStateUnchanged(t *testing.T) {
	m := newMachine(t, 3, WithScorer(fixedScorer(0.3)))
	s := engaged(t, m, "I don't know what I want")
	s, _ = m.Advance(s, turn(t, "no, more like I want out"))
	before := s

	frozen, out := m.Advance(s, Input{Freeze: true, Extraction: turn(t, "I can't go on").Extraction})
	assert.Equal(t, ActionFrozen, out.Action)
	if diff := cmp.Diff(before, frozen); diff != "" {
		t.Fatalf("frozen state changed (-before +after):\n%s", diff)
	}

	resumed, out := m.Advance(frozen, turn(t, "no, it's more like I'm lonely"))
	assert.Equal(t, ActionReflect, out.Action)
	assert.Equal(t, before.CycleCount+1, resumed.CycleCount)
}

func TestFreezeWhileIdle(t *testing.T) {
	s, out := newMachine(t, 3).Advance(State{}, Input{Freeze: true, Engage: true})
	assert.Equal(t, ActionNone, out.Action)
	assert.Equal(t, State{}, s)
}

func TestExit(t *testing.T) {
	m := newMachine(t, 3)
	s := engaged(t, m, "it's hard to explain")
	in := turn(t, "let's change the subject")
	in.Exit = true
	s, out := m.Advance(s, in)
	assert.Equal(t, ActionExited, out.Action)
	assert.Equal(t, State{}, s)
}

func TestCorruptionResets(t *testing.T) {
	paraphrase := "x"
	corrupt := []State{
		{Active: true, Phase: AwaitingCheck, CycleCount: 4, MaxCycles: 3},
		{Active: true, Phase: AwaitingCheck, CycleCount: 1, MaxCycles: 3, ConvergenceScore: 1.7},
		{Active: true, Phase: AwaitingCheck, CycleCount: 1, MaxCycles: 3, SubScores: SubScores{Emotional: math.NaN()}},
		{Active: true, Phase: Paraphrasing, CycleCount: 1, MaxCycles: 3},
		{Active: false, Phase: Idle, CycleCount: 2, MaxCycles: 3},
		{Active: true, Phase: AwaitingCheck, CycleCount: 1, MaxCycles: 9, LastParaphrase: &paraphrase},
		{Phase: Phase(42)},
	}
	m := newMachine(t, 3)
	for i, s := range corrupt {
		next, out := m.Advance(s, turn(t, "hello"))
		assert.Equal(t, ActionReset, out.Action, "state %d", i)
		assert.ErrorIs(t, out.Err, ErrStateCorruption, "state %d", i)
		assert.Equal(t, State{}, next, "state %d", i)
	}
}

func TestAdvanceDoesNotAliasInput(t *testing.T) {
	m := newMachine(t, 3, WithScorer(fixedScorer(0.3)))
	s := engaged(t, m, "it's complicated")
	snapshot := *s.LastParaphrase
	_, _ = m.Advance(s, turn(t, "no, more like confusing and heavy"))
	assert.Equal(t, snapshot, *s.LastParaphrase)
}

func TestCycleCapInvariantUnderRandomTurns(t *testing.T) {
	replies := []string{
		"yes", "no", "no, it's more like fear", "whatever", "that's not it",
		"hmm", "maybe", "actually it's about my sister", "sure",
	}
	rng := rand.New(rand.NewSource(7))
	for _, maxCycles := range []int{2, 3, 5} {
		m := newMachine(t, maxCycles, WithScorer(ScorerFunc(func(State, Input, Response) SubScores {
			v := rng.Float64() * 0.7
			return SubScores{Semantic: v, Emotional: v, Archetypal: v, Elemental: v, UserConfirmed: v}
		})))
		var s State
		for i := 0; i < 500; i++ {
			in := turn(t, replies[rng.Intn(len(replies))])
			in.Engage = rng.Intn(2) == 0
			in.Freeze = rng.Intn(10) == 0
			prev := s.Phase
			var out Outcome
			s, out = m.Advance(s, in)
			require.NoError(t, Validate(s))
			require.LessOrEqual(t, s.CycleCount, s.MaxCycles)
			require.NotEqual(t, ActionReset, out.Action)
			require.Equal(t, prev, out.Trace[0])
			for j := 1; j < len(out.Trace); j++ {
				require.True(t, out.Trace[j-1].CanTransitionTo(out.Trace[j]),
					"invalid transition %s -> %s", out.Trace[j-1], out.Trace[j])
			}
		}
	}
}

func TestMaxCyclesByElement(t *testing.T) {
	m, err := NewMachine(DefaultConfig())
	require.NoError(t, err)
	in := turn(t, "I feel everything so deeply")
	in.Engage = true
	in.Element = element.Fire
	s, _ := m.Advance(State{}, in)
	assert.Equal(t, 2, s.MaxCycles)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := []func(*Config){
		func(c *Config) { c.Threshold = 0 },
		func(c *Config) { c.Threshold = 1.2 },
		func(c *Config) { c.Weights = Weights{} },
		func(c *Config) { c.Weights.Semantic = -1 },
		func(c *Config) { c.DefaultMaxCycles = 1 },
		func(c *Config) { c.DefaultMaxCycles = 6 },
		func(c *Config) { c.MaxCyclesByElement = map[element.Element]int{element.Air: 9} },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), "case %d", i)
		_, err := NewMachine(cfg)
		assert.Error(t, err, "case %d", i)
	}
}

func TestWeightsApply(t *testing.T) {
	sub := SubScores{Semantic: 1, Emotional: 0, Archetypal: 0, Elemental: 0, UserConfirmed: 1}
	assert.InDelta(t, 0.4, EqualWeights().Apply(sub), 1e-9)

	w := Weights{Semantic: 3, UserConfirmed: 1}
	assert.InDelta(t, 1.0, w.Apply(sub), 1e-9)
	assert.Zero(t, Weights{}.Apply(sub))
}
