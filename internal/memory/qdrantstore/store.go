// Package qdrantstore is a memory.Store backed by a Qdrant server. It is
// the networked alternative to chromemstore for the symbolic and external
// document tiers.
package qdrantstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialogd/internal/memory"
	"github.com/fyrsmithlabs/dialogd/internal/memory/chromemstore"
	"github.com/fyrsmithlabs/dialogd/internal/sanitize"
)

var tracer = otel.Tracer("dialogd/memory/qdrant")

// Reserved payload keys. Entry metadata is stored under metaPrefix.
const (
	keyID      = "entry_id"
	keySession = "session_id"
	keyScope   = "scope"
	keyContent = "content"
	keyCreated = "created_at"
	metaPrefix = "meta."

	scopeGlobal  = "global"
	scopeSession = "session"
)

// candidateFactor widens the vector search so reranking has room to
// reorder.
const candidateFactor = 4

// pointNamespace derives stable point UUIDs from entry IDs.
var pointNamespace = uuid.MustParse("6f1c3b5e-2a4d-4e8f-9b7a-0d2c4e6f8a1b")

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config configures a Store.
type Config struct {
	// Prefix namespaces collection names.
	Prefix string
	// Embed overrides the default chromemstore.HashEmbedder.
	Embed      Embedder
	Dimensions int
}

// Store keeps one Qdrant collection per memory tier.
type Store struct {
	client Client
	prefix string
	embed  Embedder
	dims   int
	logger *zap.Logger

	mu    sync.Mutex
	ready map[string]bool
}

// New creates a store over client.
func New(client Client, cfg Config, logger *zap.Logger) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("qdrant client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "dialogd"
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = chromemstore.DefaultDimensions
	}
	if cfg.Embed == nil {
		cfg.Embed = chromemstore.HashEmbedder{Dimensions: cfg.Dimensions}
	}
	return &Store{
		client: client,
		prefix: cfg.Prefix,
		embed:  cfg.Embed,
		dims:   cfg.Dimensions,
		logger: logger,
		ready:  make(map[string]bool),
	}, nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) collectionName(tier memory.Tier) string {
	return sanitize.CollectionName(s.prefix, tier.String())
}

// ensure creates the tier collection on first use.
func (s *Store) ensure(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready[name] {
		return nil
	}
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", name, err)
	}
	if !exists {
		if err := s.client.CreateCollection(ctx, name, uint64(s.dims)); err != nil {
			return fmt.Errorf("creating collection %s: %w", name, err)
		}
	}
	s.ready[name] = true
	return nil
}

// Add embeds and upserts entries into a tier. Entries without a
// SessionID are visible to every session. Re-adding an ID replaces it.
func (s *Store) Add(ctx context.Context, tier memory.Tier, entries ...memory.Entry) error {
	ctx, span := tracer.Start(ctx, "qdrantstore.Add")
	defer span.End()
	span.SetAttributes(
		attribute.String("tier", tier.String()),
		attribute.Int("document_count", len(entries)),
	)
	if len(entries) == 0 {
		return nil
	}

	name := s.collectionName(tier)
	if err := s.ensure(ctx, name); err != nil {
		span.RecordError(err)
		return err
	}

	points := make([]*Point, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("entry %d has no id", i)
		}
		vec, err := s.embed.Embed(ctx, e.Content)
		if err != nil {
			return fmt.Errorf("embedding entry %s: %w", e.ID, err)
		}
		points[i] = &Point{ID: pointID(e.ID), Vector: vec, Payload: payloadFor(e)}
	}

	if err := s.client.Upsert(ctx, name, points); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting into %s: %w", name, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Query implements memory.Store. Results are ranked by similarity to the
// hint blended with term overlap; an empty hint yields nothing.
func (s *Store) Query(ctx context.Context, tier memory.Tier, req memory.Request) ([]memory.Entry, error) {
	ctx, span := tracer.Start(ctx, "qdrantstore.Query")
	defer span.End()
	span.SetAttributes(attribute.String("tier", tier.String()))

	if strings.TrimSpace(req.Hint) == "" {
		return nil, nil
	}
	limit := req.Limit
	if limit <= 0 {
		limit = memory.DefaultLimit
	}

	vec, err := s.embed.Embed(ctx, req.Hint)
	if err != nil {
		if errors.Is(err, chromemstore.ErrEmptyText) {
			return nil, nil
		}
		return nil, fmt.Errorf("embedding hint: %w", err)
	}

	name := s.collectionName(tier)
	if err := s.ensure(ctx, name); err != nil {
		span.RecordError(err)
		return nil, err
	}
	hits, err := s.client.Search(ctx, name, vec, uint64(limit*candidateFactor), visibleTo(req.SessionID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching %s: %w", name, err)
	}

	out := make([]memory.Entry, 0, len(hits))
	for _, h := range hits {
		e := toEntry(h)
		if e.SessionID != "" && e.SessionID != req.SessionID {
			continue
		}
		out = append(out, e)
	}
	out = memory.Rerank(req.Hint, out)
	if len(out) > limit {
		out = out[:limit]
	}
	span.SetAttributes(attribute.Int("results_count", len(out)))
	s.logger.Debug("queried qdrant collection",
		zap.String("tier", tier.String()),
		zap.Int("candidates", len(hits)),
		zap.Int("results", len(out)),
	)
	return out, nil
}

// SeedSymbols loads the elemental symbol library into the symbolic tier.
// It is idempotent.
func (s *Store) SeedSymbols(ctx context.Context) error {
	return s.Add(ctx, memory.TierSymbolic, memory.SymbolEntries()...)
}

func pointID(entryID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(entryID)).String()
}

// visibleTo matches global entries and those owned by sessionID.
func visibleTo(sessionID string) *Filter {
	f := &Filter{Should: []Condition{{Field: keyScope, Match: scopeGlobal}}}
	if sessionID != "" {
		f.Should = append(f.Should, Condition{Field: keySession, Match: sessionID})
	}
	return f
}

func payloadFor(e memory.Entry) map[string]any {
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	scope := scopeGlobal
	if e.SessionID != "" {
		scope = scopeSession
	}
	p := map[string]any{
		keyID:      e.ID,
		keySession: e.SessionID,
		keyScope:   scope,
		keyContent: e.Content,
		keyCreated: created.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range e.Metadata {
		p[metaPrefix+k] = v
	}
	return p
}

func toEntry(h *ScoredPoint) memory.Entry {
	str := func(k string) string {
		v, _ := h.Payload[k].(string)
		return v
	}
	e := memory.Entry{
		ID:        str(keyID),
		SessionID: str(keySession),
		Content:   str(keyContent),
		Score:     float64(h.Score),
	}
	if e.ID == "" {
		e.ID = h.ID
	}
	if ts, err := time.Parse(time.RFC3339Nano, str(keyCreated)); err == nil {
		e.CreatedAt = ts
	}
	for k, v := range h.Payload {
		name, ok := strings.CutPrefix(k, metaPrefix)
		if !ok {
			continue
		}
		if e.Metadata == nil {
			e.Metadata = make(map[string]string)
		}
		e.Metadata[name] = fmt.Sprint(v)
	}
	return e
}
