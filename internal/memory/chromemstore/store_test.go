package chromemstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/dialogd/internal/memory"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func TestHashEmbedderNormalized(t *testing.T) {
	vec, err := HashEmbedder{}.Embed(context.Background(), "I feel the grief flowing")
	require.NoError(t, err)
	require.Len(t, vec, DefaultDimensions)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)

	_, err = HashEmbedder{}.Embed(context.Background(), "  ...  ")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestHashEmbedderDeterministic(t *testing.T) {
	a, err := HashEmbedder{Dimensions: 64}.Embed(context.Background(), "ocean of emotions")
	require.NoError(t, err)
	b, err := HashEmbedder{Dimensions: 64}.Embed(context.Background(), "Ocean of EMOTIONS")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestQuerySessionVisibility(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, memory.TierExternalDocument,
		memory.Entry{ID: "global", Content: "grounding exercise for anxiety"},
		memory.Entry{ID: "mine", SessionID: "s1", Content: "article about anxiety at work"},
		memory.Entry{ID: "theirs", SessionID: "s2", Content: "anxiety journal prompts"},
	))

	got, err := s.Query(ctx, memory.TierExternalDocument, memory.Request{SessionID: "s1", Hint: "anxiety"})
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, e := range got {
		ids[i] = e.ID
		assert.NotContains(t, e.Metadata, metaSession)
	}
	assert.ElementsMatch(t, []string{"global", "mine"}, ids)
}

func TestQueryEmpty(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	got, err := s.Query(ctx, memory.TierSymbolic, memory.Request{Hint: "anything"})
	require.NoError(t, err)
	assert.Empty(t, got, "missing collection")

	require.NoError(t, s.SeedSymbols(ctx))
	got, err = s.Query(ctx, memory.TierSymbolic, memory.Request{Hint: ""})
	require.NoError(t, err)
	assert.Empty(t, got, "empty hint")
}

func TestSeedSymbols(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SeedSymbols(ctx))
	require.NoError(t, s.SeedSymbols(ctx))

	got, err := s.Query(ctx, memory.TierSymbolic, memory.Request{Hint: "I want rebirth and transformation", Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "symbol-phoenix", got[0].ID)
	assert.Equal(t, "fire", got[0].Metadata["element"])
	assert.Equal(t, "Warrior", got[0].Metadata["archetype"])
	assert.True(t, got[0].CreatedAt.Equal(time.Unix(0, 0)))
}

func TestQueryLimit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SeedSymbols(ctx))

	got, err := s.Query(ctx, memory.TierSymbolic, memory.Request{Hint: "change", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestPersistentReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(Config{Path: dir}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, s.SeedSymbols(ctx))

	s2, err := Open(Config{Path: dir}, zaptest.NewLogger(t))
	require.NoError(t, err)
	got, err := s2.Query(ctx, memory.TierSymbolic, memory.Request{Hint: "stability", Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "symbol-mountain", got[0].ID)
}

func TestFindCorrupt(t *testing.T) {
	path := t.TempDir()

	healthy := filepath.Join(path, "aaaa0001")
	require.NoError(t, os.MkdirAll(healthy, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(healthy, metadataFile), []byte("meta"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(healthy, "abcd1234.gob"), []byte("doc"), 0o644))

	corrupt := filepath.Join(path, "bbbb0002")
	require.NoError(t, os.MkdirAll(corrupt, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(corrupt, "abcd5678.gob"), []byte("doc"), 0o644))

	require.NoError(t, os.MkdirAll(filepath.Join(path, "cccc0003"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(path, "not-a-hash"), 0o755))

	got, err := findCorrupt(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"bbbb0002"}, got)
}

func TestServesCompositor(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SeedSymbols(ctx))

	c := memory.NewCompositor(map[memory.Tier]memory.Store{memory.TierSymbolic: s})
	out := c.Compose(ctx, memory.Request{SessionID: "s1", Hint: "the ocean of my emotions"})
	require.NotEmpty(t, out.SymbolicPatterns)
	assert.Equal(t, "symbol-ocean", out.SymbolicPatterns[0].ID)
	assert.Equal(t, memory.StatusOK, out.Status["symbolic"])
}
