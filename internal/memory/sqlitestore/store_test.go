package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/dialogd/internal/memory"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "memory.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddAndQuery(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, memory.TierProfile,
		memory.Entry{ID: "p1", Content: "prefers gentle pacing", CreatedAt: epoch},
		memory.Entry{ID: "p2", SessionID: "s1", Content: "has a younger sister", CreatedAt: epoch.Add(time.Hour)},
		memory.Entry{ID: "p3", SessionID: "s2", Content: "works night shifts", CreatedAt: epoch.Add(2 * time.Hour)},
	))
	require.NoError(t, s.Add(ctx, memory.TierEpisodic,
		memory.Entry{ID: "e1", SessionID: "s1", Content: "talked about the move", CreatedAt: epoch,
			Metadata: map[string]string{"mood": "anxious"}},
	))

	got, err := s.Query(ctx, memory.TierProfile, memory.Request{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p2", got[0].ID, "most recent first")
	assert.Equal(t, "p1", got[1].ID)
	assert.True(t, got[0].CreatedAt.Equal(epoch.Add(time.Hour)))

	got, err = s.Query(ctx, memory.TierEpisodic, memory.Request{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "anxious", got[0].Metadata["mood"])
}

func TestQueryRanksHintMatches(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, memory.TierEpisodic,
		memory.Entry{ID: "new", SessionID: "s1", Content: "discussed work stress", CreatedAt: epoch.Add(time.Hour)},
		memory.Entry{ID: "old", SessionID: "s1", Content: "grief about grandmother", CreatedAt: epoch},
	))

	got, err := s.Query(ctx, memory.TierEpisodic, memory.Request{SessionID: "s1", Hint: "I still feel the grief", Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "old", got[0].ID)
	assert.Equal(t, 1.0, got[0].Score)
}

func TestQueryEscapesLike(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, memory.TierSession,
		memory.Entry{ID: "a", Content: "plain text", CreatedAt: epoch.Add(time.Hour)},
		memory.Entry{ID: "b", Content: "100%_done", CreatedAt: epoch},
	))
	got, err := s.Query(ctx, memory.TierSession, memory.Request{Hint: "100%_done"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
}

func TestQueryCancelled(t *testing.T) {
	s := openTemp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Query(ctx, memory.TierSession, memory.Request{})
	assert.Error(t, err)
}

func TestServesCompositor(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, memory.TierSession, memory.Entry{ID: "sum", SessionID: "s1", Content: "earlier they mentioned feeling stuck", CreatedAt: epoch}))

	c := memory.NewCompositor(map[memory.Tier]memory.Store{
		memory.TierSession: s,
		memory.TierProfile: s,
	})
	out := c.Compose(ctx, memory.Request{SessionID: "s1", Hint: "stuck"})
	require.Len(t, out.SessionSummaries, 1)
	assert.Empty(t, out.ProfileFacts)
	assert.Equal(t, memory.StatusOK, out.Status["profile"])
}

func TestHintTerms(t *testing.T) {
	assert.Equal(t, []string{"still", "feel", "grief"}, hintTerms("I still feel the grief, grief again and again"))
}
