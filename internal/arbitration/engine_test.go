package arbitration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/dialogd/internal/detector"
	"github.com/fyrsmithlabs/dialogd/internal/element"
)

func claim(id detector.ID, tier detector.Tier, conf float64, hint detector.Hint) detector.Claim {
	return detector.Claim{Source: id, Tier: tier, Confidence: conf, Hint: hint}
}

var (
	crisis    = claim(detector.CatastrophicGuardID, detector.P0, 0.9, detector.CrisisHint{Category: detector.CategorySuicidal})
	boundary  = claim(detector.BoundaryID, detector.P1, 0.85, detector.BoundaryHint{Request: detector.BoundarySwitch})
	urgency   = claim(detector.UrgencyID, detector.P1, 0.85, detector.UrgencyHint{})
	looping   = claim(detector.LoopingTriggerID, detector.P2, 0.7, detector.LoopHint{Score: 0.7})
	tone      = claim(detector.ElementalResonanceID, detector.P3, 0.6, detector.ElementHint{Element: element.Water})
	pause     = claim(detector.ContemplativeID, detector.P3, 0.9, detector.ContemplativeHint{Cues: []string{"long pauses"}})
	ambiguous = claim(detector.CatastrophicGuardID, detector.P1, 1, detector.AmbiguousSafetyHint{Reason: "timeout"})
)

type fakeHint struct{ detector.Hint }

func TestResolve(t *testing.T) {
	tests := []struct {
		name        string
		claims      []detector.Claim
		wantTier    detector.Tier
		wantKind    Kind
		wantWinner  detector.ID
		secondaries int
	}{
		{"no claims", nil, detector.TierNone, KindPassThrough, "", 0},
		{"crisis beats everything", []detector.Claim{tone, looping, crisis, boundary}, detector.P0, KindBypass, detector.CatastrophicGuardID, 0},
		{"boundary wins exact tie", []detector.Claim{urgency, boundary}, detector.P1, KindModulateTone, detector.BoundaryID, 0},
		{"loop carries tone", []detector.Claim{tone, looping, pause}, detector.P2, KindEngageLoop, detector.LoopingTriggerID, 2},
		{"urgency passes through", []detector.Claim{urgency, tone}, detector.P1, KindPassThrough, detector.UrgencyID, 1},
		{"confidence before precedence", []detector.Claim{tone, pause}, detector.P3, KindModulateTone, detector.ContemplativeID, 0},
		{"fail closed outranks boundary", []detector.Claim{boundary, ambiguous, looping}, detector.P1, KindModulateTone, detector.CatastrophicGuardID, 1},
	}
	engine := NewEngine(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := engine.Resolve(tt.claims)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTier, d.Tier)
			assert.Equal(t, tt.wantKind, d.Kind)
			assert.Len(t, d.SecondaryModulations, tt.secondaries)
			assert.Len(t, d.Audit, len(tt.claims))
			if tt.wantWinner == "" {
				assert.Nil(t, d.Winner)
				return
			}
			require.NotNil(t, d.Winner)
			assert.Equal(t, tt.wantWinner, d.Winner.Source)
		})
	}
}

func TestResolvePayloads(t *testing.T) {
	engine := NewEngine(nil)

	d, err := engine.Resolve([]detector.Claim{ambiguous})
	require.NoError(t, err)
	assert.True(t, d.Payload.SafetyCheckIn)
	assert.True(t, d.IsSafety())

	d, err = engine.Resolve([]detector.Claim{boundary})
	require.NoError(t, err)
	assert.Equal(t, detector.BoundarySwitch, d.Payload.Boundary)
	assert.False(t, d.IsSafety())

	d, err = engine.Resolve([]detector.Claim{crisis})
	require.NoError(t, err)
	require.NotNil(t, d.Payload.Crisis)
	assert.Equal(t, detector.CategorySuicidal, d.Payload.Crisis.Category)

	d, err = engine.Resolve([]detector.Claim{pause})
	require.NoError(t, err)
	assert.True(t, d.Payload.Pause)
}

func TestResolveP0AlwaysBypasses(t *testing.T) {
	odd := claim("custom_guard", detector.P0, 0.5, detector.ElementHint{Element: element.Fire})
	d, err := NewEngine(nil).Resolve([]detector.Claim{odd, tone})
	require.NoError(t, err)
	assert.Equal(t, KindBypass, d.Kind)
	assert.Empty(t, d.SecondaryModulations)
}

func TestResolveUnknownHint(t *testing.T) {
	bogus := claim(detector.UrgencyID, detector.P1, 1, fakeHint{})
	d, err := NewEngine(nil).Resolve([]detector.Claim{bogus})
	assert.ErrorIs(t, err, ErrInvariantViolation)
	assert.Equal(t, KindPassThrough, d.Kind)
}

func TestResolveDoesNotMutateInput(t *testing.T) {
	claims := []detector.Claim{tone, crisis}
	_, err := NewEngine(nil).Resolve(claims)
	require.NoError(t, err)
	assert.Equal(t, detector.ElementalResonanceID, claims[0].Source)
}

func TestCheck(t *testing.T) {
	claims := []detector.Claim{looping, boundary}
	bad := Directive{Tier: detector.P2, Kind: KindEngageLoop}
	assert.ErrorIs(t, Check(bad, claims), ErrInvariantViolation)

	tinted := Directive{Tier: detector.P0, Kind: KindBypass, SecondaryModulations: []detector.Claim{tone}}
	assert.ErrorIs(t, Check(tinted, []detector.Claim{crisis, tone}), ErrInvariantViolation)

	sameTier := Directive{Tier: detector.P1, Kind: KindModulateTone, SecondaryModulations: []detector.Claim{urgency}}
	assert.ErrorIs(t, Check(sameTier, claims), ErrInvariantViolation)

	assert.NoError(t, Check(PassThrough(), nil))
}
