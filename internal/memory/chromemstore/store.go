// Package chromemstore is a memory.Store backed by the embedded chromem-go
// vector database. It serves the similarity-ranked tiers (symbolic
// patterns, external document references).
package chromemstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialogd/internal/memory"
	"github.com/fyrsmithlabs/dialogd/internal/sanitize"
)

var tracer = otel.Tracer("dialogd/memory/chromem")

// Reserved metadata keys. They are stripped from returned entries.
const (
	metaSession = "_session_id"
	metaCreated = "_created_at"
)

// Config configures a Store.
type Config struct {
	// Path is the persistence directory. Empty keeps everything in memory.
	Path     string
	Compress bool
	// Prefix namespaces collection names.
	Prefix string
	// Embed overrides the default HashEmbedder.
	Embed chromem.EmbeddingFunc
}

// Store keeps one chromem collection per memory tier.
type Store struct {
	db     *chromem.DB
	prefix string
	embed  chromem.EmbeddingFunc
	logger *zap.Logger
}

// Open creates a store. Persistent databases with corrupt collections are
// recovered by quarantining the damaged collections.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "dialogd"
	}
	if cfg.Embed == nil {
		cfg.Embed = HashEmbedder{}.Func()
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = openResilient(cfg.Path, cfg.Compress, logger)
		if err != nil {
			return nil, fmt.Errorf("opening chromem at %s: %w", cfg.Path, err)
		}
	}
	return &Store{db: db, prefix: cfg.Prefix, embed: cfg.Embed, logger: logger}, nil
}

func (s *Store) collectionName(tier memory.Tier) string {
	return sanitize.CollectionName(s.prefix, tier.String())
}

func (s *Store) collection(tier memory.Tier) (*chromem.Collection, error) {
	name := s.collectionName(tier)
	c, err := s.db.GetOrCreateCollection(name, nil, s.embed)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", name, err)
	}
	return c, nil
}

// Add embeds and stores entries in a tier. Entries without a SessionID
// are visible to every session.
func (s *Store) Add(ctx context.Context, tier memory.Tier, entries ...memory.Entry) error {
	ctx, span := tracer.Start(ctx, "chromemstore.Add")
	defer span.End()
	span.SetAttributes(
		attribute.String("tier", tier.String()),
		attribute.Int("document_count", len(entries)),
	)
	if len(entries) == 0 {
		return nil
	}

	col, err := s.collection(tier)
	if err != nil {
		span.RecordError(err)
		return err
	}

	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("entry %d has no id", i)
		}
		meta := make(map[string]string, len(e.Metadata)+2)
		for k, v := range e.Metadata {
			meta[k] = v
		}
		created := e.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		meta[metaSession] = e.SessionID
		meta[metaCreated] = created.UTC().Format(time.RFC3339Nano)
		docs[i] = chromem.Document{ID: e.ID, Content: e.Content, Metadata: meta}
	}

	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents: %w", err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Query implements memory.Store. Results are ranked by similarity to the
// hint blended with term overlap; an empty hint yields nothing.
func (s *Store) Query(ctx context.Context, tier memory.Tier, req memory.Request) ([]memory.Entry, error) {
	ctx, span := tracer.Start(ctx, "chromemstore.Query")
	defer span.End()
	span.SetAttributes(attribute.String("tier", tier.String()))

	if strings.TrimSpace(req.Hint) == "" {
		return nil, nil
	}
	limit := req.Limit
	if limit <= 0 {
		limit = memory.DefaultLimit
	}

	col := s.db.GetCollection(s.collectionName(tier), s.embed)
	if col == nil {
		return nil, nil
	}
	// chromem requires nResults <= doc count.
	n := col.Count()
	if n == 0 {
		return nil, nil
	}

	results, err := col.Query(ctx, req.Hint, n, nil, nil)
	if err != nil {
		if errors.Is(err, ErrEmptyText) {
			return nil, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.collectionName(tier), err)
	}

	out := make([]memory.Entry, 0, len(results))
	for _, r := range results {
		sid := r.Metadata[metaSession]
		if sid != "" && sid != req.SessionID {
			continue
		}
		out = append(out, toEntry(r))
	}
	out = memory.Rerank(req.Hint, out)
	if len(out) > limit {
		out = out[:limit]
	}
	span.SetAttributes(attribute.Int("results_count", len(out)))
	s.logger.Debug("queried chromem collection",
		zap.String("tier", tier.String()),
		zap.Int("candidates", len(results)),
		zap.Int("results", len(out)),
	)
	return out, nil
}

func toEntry(r chromem.Result) memory.Entry {
	e := memory.Entry{
		ID:        r.ID,
		SessionID: r.Metadata[metaSession],
		Content:   r.Content,
		Score:     float64(r.Similarity),
	}
	if ts, err := time.Parse(time.RFC3339Nano, r.Metadata[metaCreated]); err == nil {
		e.CreatedAt = ts
	}
	for k, v := range r.Metadata {
		if k == metaSession || k == metaCreated {
			continue
		}
		if e.Metadata == nil {
			e.Metadata = make(map[string]string)
		}
		e.Metadata[k] = v
	}
	return e
}

// SeedSymbols loads the elemental symbol library into the symbolic tier.
// It is idempotent.
func (s *Store) SeedSymbols(ctx context.Context) error {
	return s.Add(ctx, memory.TierSymbolic, memory.SymbolEntries()...)
}
