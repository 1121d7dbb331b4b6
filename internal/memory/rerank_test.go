package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"grief", "comes", "waves"}, terms("The grief comes in WAVES, and it is"))
	assert.Empty(t, terms("it is a an"))
}

func TestTermOverlap(t *testing.T) {
	q := []string{"grief", "waves", "grief"}
	assert.InDelta(t, 1.0, termOverlap(q, []string{"waves", "of", "grief"}), 1e-9)
	assert.InDelta(t, 0.5, termOverlap(q, []string{"grief"}), 1e-9)
	assert.Zero(t, termOverlap(nil, []string{"grief"}))
}

func TestRerank(t *testing.T) {
	entries := []Entry{
		{ID: "collision", Content: "quarterly budget review", Score: 0.6},
		{ID: "match", Content: "grief often arrives in waves", Score: 0.4},
		{ID: "partial", Content: "ocean waves at night", Score: 0.4},
	}

	got := Rerank("grief waves", entries)

	ids := []string{got[0].ID, got[1].ID, got[2].ID}
	assert.Equal(t, []string{"match", "partial", "collision"}, ids)
	assert.InDelta(t, 0.7, got[0].Score, 1e-9)
	assert.InDelta(t, 0.45, got[1].Score, 1e-9)
	assert.InDelta(t, 0.3, got[2].Score, 1e-9)
}

func TestRerankNoTerms(t *testing.T) {
	entries := []Entry{{ID: "a", Score: 0.2}, {ID: "b", Score: 0.9}}
	got := Rerank("it is", entries)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, 0.2, got[0].Score)
}
