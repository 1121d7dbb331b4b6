package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MapStore is an in-memory Store for all tiers. Entries with an empty
// SessionID are visible to every session.
type MapStore struct {
	mu      sync.RWMutex
	entries map[Tier][]Entry
}

// NewMapStore creates an empty in-memory store.
func NewMapStore() *MapStore {
	return &MapStore{entries: make(map[Tier][]Entry)}
}

// Add appends entries to a tier.
func (m *MapStore) Add(tier Tier, entries ...Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[tier] = append(m.entries[tier], entries...)
}

// Query implements Store. With a hint, entries are ranked by the number of
// hint words they contain, then by recency; without one, by recency alone.
func (m *MapStore) Query(ctx context.Context, tier Tier, req Request) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	var matched []Entry
	for _, e := range m.entries[tier] {
		if e.SessionID == "" || e.SessionID == req.SessionID {
			matched = append(matched, e)
		}
	}
	m.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(req.Hint))
	hits := make(map[string]int, len(matched))
	for _, e := range matched {
		content := strings.ToLower(e.Content)
		for _, term := range terms {
			if len(term) > 2 && strings.Contains(content, term) {
				hits[e.ID]++
			}
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if hits[a.ID] != hits[b.ID] {
			return hits[a.ID] > hits[b.ID]
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	if req.Limit > 0 && len(matched) > req.Limit {
		matched = matched[:req.Limit]
	}
	out := make([]Entry, len(matched))
	copy(out, matched)
	return out, nil
}
