package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func entries(tier Tier, n int) []Entry {
	out := make([]Entry, n)
	for i := range out {
		out[i] = Entry{
			ID:        fmt.Sprintf("%s-%d", tier, i),
			Content:   fmt.Sprintf("%s memory %d", tier, i),
			CreatedAt: epoch.Add(time.Duration(n-i) * time.Minute),
		}
	}
	return out
}

// fixedStore returns canned entries after an optional delay.
type fixedStore struct {
	entries []Entry
	delay   time.Duration
	err     error
	ignore  bool
}

func (f fixedStore) Query(ctx context.Context, _ Tier, _ Request) ([]Entry, error) {
	if f.delay > 0 {
		if f.ignore {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return f.entries, f.err
}

func allTiers(delays map[Tier]time.Duration) map[Tier]Store {
	stores := make(map[Tier]Store)
	for _, t := range Tiers {
		stores[t] = fixedStore{entries: entries(t, 2), delay: delays[t]}
	}
	return stores
}

func TestComposeAllTiers(t *testing.T) {
	c := NewCompositor(allTiers(nil))
	out := c.Compose(context.Background(), Request{SessionID: "s1"})

	for _, tier := range Tiers {
		assert.Len(t, out.Entries(tier), 2, tier.String())
		assert.Equal(t, StatusOK, out.Status[tier.String()])
	}
	assert.Positive(t, out.Size)
	assert.LessOrEqual(t, out.Size, DefaultBudget)
	assert.Zero(t, out.Truncated)
}

func TestComposeEpisodicTimeout(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	stores := allTiers(map[Tier]time.Duration{
		TierSession:  10 * time.Millisecond,
		TierProfile:  20 * time.Millisecond,
		TierEpisodic: time.Second,
	})
	c := NewCompositor(stores,
		WithTierTimeout(60*time.Millisecond),
		WithSlack(10*time.Millisecond),
		WithMetrics(metrics))

	start := time.Now()
	out := c.Compose(context.Background(), Request{SessionID: "s1"})
	elapsed := time.Since(start)

	require.NotNil(t, out.EpisodicEntries)
	assert.Empty(t, out.EpisodicEntries)
	assert.Equal(t, StatusTimeout, out.Status["episodic"])
	assert.Len(t, out.SessionSummaries, 2)
	assert.Len(t, out.ProfileFacts, 2)
	assert.Len(t, out.SymbolicPatterns, 2)
	assert.Len(t, out.ExternalDocRefs, 2)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 300*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TierResultsTotal.WithLabelValues("episodic", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TierResultsTotal.WithLabelValues("session", "ok")))
}

func TestComposeAbandonsStoresIgnoringContext(t *testing.T) {
	stores := allTiers(nil)
	stores[TierSymbolic] = fixedStore{entries: entries(TierSymbolic, 1), delay: 150 * time.Millisecond, ignore: true}
	c := NewCompositor(stores, WithTierTimeout(30*time.Millisecond), WithSlack(10*time.Millisecond))

	start := time.Now()
	out := c.Compose(context.Background(), Request{})
	assert.Less(t, time.Since(start), 120*time.Millisecond)
	assert.Empty(t, out.SymbolicPatterns)
	assert.Equal(t, StatusTimeout, out.Status["symbolic"])

	// let the abandoned query finish before goleak checks
	time.Sleep(150 * time.Millisecond)
}

func TestComposeFailingTiers(t *testing.T) {
	stores := allTiers(nil)
	stores[TierProfile] = fixedStore{err: errors.New("connection refused")}
	stores[TierExternalDocument] = StoreFunc(func(context.Context, Tier, Request) ([]Entry, error) {
		panic("nil pointer")
	})

	out := NewCompositor(stores).Compose(context.Background(), Request{})

	assert.Empty(t, out.ProfileFacts)
	assert.Empty(t, out.ExternalDocRefs)
	assert.Equal(t, StatusError, out.Status["profile"])
	assert.Equal(t, StatusError, out.Status["external_document"])
	assert.Len(t, out.SessionSummaries, 2)
}

func TestComposeSkipsMissingTiers(t *testing.T) {
	out := NewCompositor(map[Tier]Store{TierSession: fixedStore{entries: entries(TierSession, 1)}}).
		Compose(context.Background(), Request{})
	assert.Equal(t, StatusOK, out.Status["session"])
	assert.Equal(t, StatusSkipped, out.Status["episodic"])

	empty := NewCompositor(nil).Compose(context.Background(), Request{})
	assert.Equal(t, 0, empty.Len())
	assert.NotNil(t, empty.ProfileFacts)
}

func TestComposeBudgetPriority(t *testing.T) {
	big := func(tier Tier, n int) []Entry {
		out := entries(tier, n)
		for i := range out {
			out[i].Content = strings.Repeat("x", 300)
		}
		return out
	}
	stores := map[Tier]Store{
		TierSession:          fixedStore{entries: big(TierSession, 3)},
		TierProfile:          fixedStore{entries: big(TierProfile, 3)},
		TierEpisodic:         fixedStore{entries: big(TierEpisodic, 3)},
		TierExternalDocument: fixedStore{entries: entries(TierExternalDocument, 1)},
	}
	out := NewCompositor(stores, WithBudget(1600)).Compose(context.Background(), Request{})

	assert.LessOrEqual(t, out.Size, 1600)
	assert.Len(t, out.SessionSummaries, 3)
	assert.Len(t, out.ProfileFacts, 1)
	assert.Empty(t, out.EpisodicEntries)
	assert.Len(t, out.ExternalDocRefs, 1, "small low-priority entries still fill leftover budget")
	assert.Equal(t, 5, out.Truncated)
}

func TestComposeLimit(t *testing.T) {
	stores := map[Tier]Store{TierEpisodic: fixedStore{entries: entries(TierEpisodic, 6)}}
	out := NewCompositor(stores, WithLimit(4)).Compose(context.Background(), Request{})
	assert.Len(t, out.EpisodicEntries, 4)
	assert.Equal(t, 2, out.Truncated)
}

func TestComposeIdempotent(t *testing.T) {
	store := NewMapStore()
	for _, tier := range Tiers {
		store.Add(tier, entries(tier, 3)...)
	}
	stores := make(map[Tier]Store)
	for _, tier := range Tiers {
		stores[tier] = store
	}
	c := NewCompositor(stores, WithBudget(900))

	req := Request{SessionID: "s1", Hint: "memory"}
	first := c.Compose(context.Background(), req)
	second := c.Compose(context.Background(), req)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("compose not idempotent (-first +second):\n%s", diff)
	}
}

func TestComposeParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := NewCompositor(allTiers(map[Tier]time.Duration{TierSession: time.Second})).Compose(ctx, Request{})
	assert.Empty(t, out.SessionSummaries)
}

func TestOverallTimeout(t *testing.T) {
	c := NewCompositor(allTiers(nil),
		WithTierTimeout(100*time.Millisecond),
		WithTierTimeoutFor(TierExternalDocument, 200*time.Millisecond),
		WithSlack(25*time.Millisecond))
	assert.Equal(t, 225*time.Millisecond, c.OverallTimeout())
}

func TestMapStore(t *testing.T) {
	store := NewMapStore()
	store.Add(TierProfile,
		Entry{ID: "a", Content: "likes hiking", CreatedAt: epoch},
		Entry{ID: "b", Content: "works nights", SessionID: "other", CreatedAt: epoch.Add(time.Hour)},
		Entry{ID: "c", Content: "has a sister", SessionID: "s1", CreatedAt: epoch.Add(2 * time.Hour)},
		Entry{ID: "d", Content: "hiking with sister", SessionID: "s1", CreatedAt: epoch.Add(-time.Hour)},
	)

	got, err := store.Query(context.Background(), TierProfile, Request{SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "d"}, ids(got))

	got, err = store.Query(context.Background(), TierProfile, Request{SessionID: "s1", Hint: "sister hiking", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c"}, ids(got))
}

func ids(es []Entry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.ID
	}
	return out
}

func TestParseTier(t *testing.T) {
	for _, tier := range Tiers {
		got, err := ParseTier(tier.String())
		require.NoError(t, err)
		assert.Equal(t, tier, got)
	}
	_, err := ParseTier("dreams")
	assert.Error(t, err)
}
