package detector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// stubDetector reports a fixed claim after an optional delay.
type stubDetector struct {
	id    ID
	tier  Tier
	delay time.Duration
	claim *Claim
	err   error
	panic string
}

func (s *stubDetector) ID() ID     { return s.id }
func (s *stubDetector) Tier() Tier { return s.tier }

func (s *stubDetector) Detect(ctx context.Context, _ Input) (*Claim, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.panic != "" {
		panic(s.panic)
	}
	return s.claim, s.err
}

func quietGuard() *stubDetector {
	return &stubDetector{id: CatastrophicGuardID, tier: P0}
}

func TestBankCollectsClaims(t *testing.T) {
	bank := NewBank(DefaultDetectors(0, 0, nil), WithLogger(zaptest.NewLogger(t)))

	res := bank.Run(context.Background(), inputFor(t, "I can't go on talking about this topic, can we switch?"))

	require.NotEmpty(t, res.Claims)
	assert.False(t, res.FailedClosed)
	assert.Empty(t, res.Failures)
	assert.Equal(t, BoundaryID, res.Claims[0].Source)
	assert.Equal(t, P1, res.Claims[0].Tier)
	for _, c := range res.Claims {
		assert.NotEqual(t, P0, c.Tier, "negated phrase must not reach P0")
	}
}

func TestBankCrisisClaim(t *testing.T) {
	res := NewBank(DefaultDetectors(0, 0, nil)).Run(context.Background(), inputFor(t, "I can't go on"))
	require.NotEmpty(t, res.Claims)
	assert.Equal(t, P0, res.Claims[0].Tier)
	assert.IsType(t, CrisisHint{}, res.Claims[0].Hint)
}

func TestBankFailsClosed(t *testing.T) {
	tests := []struct {
		name   string
		guard  *stubDetector
		reason string
	}{
		{"timeout", &stubDetector{id: CatastrophicGuardID, tier: P0, delay: time.Second}, "timeout"},
		{"error", &stubDetector{id: CatastrophicGuardID, tier: P0, err: errors.New("regex engine down")}, "error"},
		{"panic", &stubDetector{id: CatastrophicGuardID, tier: P0, panic: "nil map"}, "panic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			metrics := NewMetrics(reg)
			bank := NewBank([]Detector{tt.guard, NewElementalResonance()},
				WithBudget(20*time.Millisecond), WithMetrics(metrics))

			start := time.Now()
			res := bank.Run(context.Background(), inputFor(t, "I feel grief"))
			assert.Less(t, time.Since(start), 500*time.Millisecond)

			require.True(t, res.FailedClosed)
			require.NotEmpty(t, res.Claims)
			winner := res.Claims[0]
			assert.Equal(t, P1, winner.Tier)
			assert.IsType(t, AmbiguousSafetyHint{}, winner.Hint)
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FailClosedTotal))

			require.Len(t, res.Failures, 1)
			assert.Equal(t, CatastrophicGuardID, res.Failures[0].Detector)
			assert.Equal(t, tt.reason, res.Failures[0].Reason)
		})
	}
}

func TestBankFailsClosedWithoutGuard(t *testing.T) {
	res := NewBank([]Detector{NewUrgency()}).Run(context.Background(), inputFor(t, "hello"))
	require.Len(t, res.Claims, 1)
	assert.True(t, res.FailedClosed)
	assert.Contains(t, res.Claims[0].Hint.(AmbiguousSafetyHint).Reason, "not registered")
}

func TestBankFailsOpenForToneDetectors(t *testing.T) {
	slow := &stubDetector{id: ElementalResonanceID, tier: P3, delay: time.Second}
	broken := &stubDetector{id: ContemplativeID, tier: P3, panic: "boom"}
	bank := NewBank([]Detector{quietGuard(), slow, broken}, WithBudget(20*time.Millisecond))

	res := bank.Run(context.Background(), Input{})

	assert.Empty(t, res.Claims)
	assert.False(t, res.FailedClosed)
	assert.True(t, res.TimedOut)
	reasons := map[ID]string{}
	for _, f := range res.Failures {
		reasons[f.Detector] = f.Reason
		assert.ErrorIs(t, f.Err, errorFor(f.Reason))
	}
	assert.Equal(t, map[ID]string{ElementalResonanceID: "timeout", ContemplativeID: "panic"}, reasons)
}

func errorFor(reason string) error {
	if reason == "timeout" {
		return ErrBankTimeout
	}
	return ErrDetectorFailure
}

func TestBankNormalizesClaims(t *testing.T) {
	wild := &stubDetector{id: UrgencyID, tier: P1, claim: &Claim{
		Source:     "impostor",
		Tier:       Tier(9),
		Confidence: 3,
		Hint:       UrgencyHint{},
	}}
	hintless := &stubDetector{id: BoundaryID, tier: P1, claim: &Claim{Tier: P1, Confidence: 1}}

	res := NewBank([]Detector{quietGuard(), wild, hintless}).Run(context.Background(), Input{})

	require.Len(t, res.Claims, 1)
	assert.Equal(t, UrgencyID, res.Claims[0].Source)
	assert.Equal(t, P1, res.Claims[0].Tier)
	assert.Equal(t, 1.0, res.Claims[0].Confidence)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "invalid", res.Failures[0].Reason)
}

func TestBankParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := &stubDetector{id: BoundaryID, tier: P1, delay: time.Second}
	bank := NewBank([]Detector{quietGuard(), slow}, WithBudget(time.Second))

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	res := bank.Run(ctx, Input{})
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.True(t, res.TimedOut)
}

func TestSortClaims(t *testing.T) {
	claims := []Claim{
		{Source: LoopingTriggerID, Tier: P2, Confidence: 0.9},
		{Source: UrgencyID, Tier: P1, Confidence: 0.8},
		{Source: BoundaryID, Tier: P1, Confidence: 0.8},
		{Source: ContemplativeID, Tier: P3, Confidence: 1},
		{Source: UrgencyID, Tier: P1, Confidence: 0.95},
	}
	SortClaims(claims)

	var order []ID
	for _, c := range claims {
		order = append(order, c.Source)
	}
	assert.Equal(t, []ID{UrgencyID, BoundaryID, UrgencyID, LoopingTriggerID, ContemplativeID}, order)
	assert.Equal(t, 0.95, claims[0].Confidence)
}

func TestTier(t *testing.T) {
	assert.True(t, P0.Outranks(P1))
	assert.False(t, P3.Outranks(P3))
	assert.Equal(t, -1, CompareTiers(P1, P2))
	assert.Equal(t, "none", TierNone.String())
	assert.False(t, TierNone.Valid())

	b, err := P2.MarshalJSON()
	require.NoError(t, err)
	var back Tier
	require.NoError(t, back.UnmarshalJSON(b))
	assert.Equal(t, P2, back)
}
