package memory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Errors reported per tier. They never escape Compose.
var (
	ErrTierFailure = errors.New("memory tier failure")
	ErrTierTimeout = errors.New("memory tier timeout")
)

// Tier is a memory source. Lower values have higher priority when the
// budget is tight.
type Tier int

const (
	TierSession Tier = iota
	TierProfile
	TierEpisodic
	TierSymbolic
	TierExternalDocument
)

// Tiers lists all tiers in priority order.
var Tiers = []Tier{TierSession, TierProfile, TierEpisodic, TierSymbolic, TierExternalDocument}

var tierNames = [...]string{"session", "profile", "episodic", "symbolic", "external_document"}

func (t Tier) String() string {
	if t >= TierSession && t <= TierExternalDocument {
		return tierNames[t]
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// ParseTier converts a tier name.
func ParseTier(s string) (Tier, error) {
	for i, n := range tierNames {
		if n == s {
			return Tier(i), nil
		}
	}
	return 0, fmt.Errorf("unknown memory tier %q", s)
}

// Entry is one memory item.
type Entry struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id,omitempty"`
	Content   string            `json:"content"`
	Score     float64           `json:"score,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Request identifies what to fetch from a tier.
type Request struct {
	SessionID string `json:"session_id"`
	// Hint is free text used by tiers that rank by relevance.
	Hint  string `json:"hint"`
	Limit int    `json:"limit"`
}

// Store queries one or more tiers. Implementations must honor ctx
// cancellation and deadlines.
type Store interface {
	Query(ctx context.Context, tier Tier, req Request) ([]Entry, error)
}

// StoreFunc adapts a function to Store.
type StoreFunc func(ctx context.Context, tier Tier, req Request) ([]Entry, error)

// Query calls f.
func (f StoreFunc) Query(ctx context.Context, tier Tier, req Request) ([]Entry, error) {
	return f(ctx, tier, req)
}

// Status is the per-tier outcome of a Compose call.
type Status string

const (
	StatusOK      Status = "ok"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Context is the composed memory for one turn. Every list is non-nil.
type Context struct {
	SessionSummaries []Entry `json:"session_summaries"`
	ProfileFacts     []Entry `json:"profile_facts"`
	EpisodicEntries  []Entry `json:"episodic_entries"`
	SymbolicPatterns []Entry `json:"symbolic_patterns"`
	ExternalDocRefs  []Entry `json:"external_doc_refs"`
	// Size is the serialized size of all kept entries in bytes.
	Size int `json:"size"`
	// Truncated counts entries dropped to fit the budget.
	Truncated int               `json:"truncated"`
	Status    map[string]Status `json:"status"`
}

// Empty returns a context with no entries and every tier skipped.
func Empty() Context {
	c := Context{
		SessionSummaries: []Entry{},
		ProfileFacts:     []Entry{},
		EpisodicEntries:  []Entry{},
		SymbolicPatterns: []Entry{},
		ExternalDocRefs:  []Entry{},
		Status:           make(map[string]Status, len(Tiers)),
	}
	for _, t := range Tiers {
		c.Status[t.String()] = StatusSkipped
	}
	return c
}

// list returns a pointer to the slice holding tier t.
func (c *Context) list(t Tier) *[]Entry {
	switch t {
	case TierSession:
		return &c.SessionSummaries
	case TierProfile:
		return &c.ProfileFacts
	case TierEpisodic:
		return &c.EpisodicEntries
	case TierSymbolic:
		return &c.SymbolicPatterns
	default:
		return &c.ExternalDocRefs
	}
}

// Entries returns the kept entries for tier t.
func (c Context) Entries(t Tier) []Entry {
	return *c.list(t)
}

// Len returns the number of kept entries across all tiers.
func (c Context) Len() int {
	var n int
	for _, t := range Tiers {
		n += len(c.Entries(t))
	}
	return n
}
