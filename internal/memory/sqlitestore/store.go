// Package sqlitestore is a memory.Store backed by SQLite through the pure-Go
// modernc.org/sqlite driver. It serves the relational tiers (session
// summaries, profile facts, episodic entries).
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/dialogd/internal/memory"
)

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL DEFAULT '',
	tier       TEXT NOT NULL,
	content    TEXT NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_tier_session ON memories(tier, session_id, created_at DESC);
`

// maxHintTerms bounds the LIKE clauses generated from a hint.
const maxHintTerms = 3

// Store is a SQLite-backed memory store.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path. Use ":memory:" for
// a private in-memory database.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("sqlite memory store opened", zap.String("path", path))
	return &Store{db: db, path: path, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts or replaces entries in a tier.
func (s *Store) Add(ctx context.Context, tier memory.Tier, entries ...memory.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO memories (id, session_id, tier, content, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata for %s: %w", e.ID, err)
		}
		created := e.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.SessionID, tier.String(), e.Content, string(meta), created.UnixNano()); err != nil {
			return fmt.Errorf("inserting %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// Query implements memory.Store. Entries visible to the session (its own
// and global ones) are ranked by hint-term matches, then recency.
func (s *Store) Query(ctx context.Context, tier memory.Tier, req memory.Request) ([]memory.Entry, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = memory.DefaultLimit
	}

	var (
		rank strings.Builder
		args []any
	)
	rank.WriteString("0")
	for _, term := range hintTerms(req.Hint) {
		rank.WriteString(" + (content LIKE ? ESCAPE '\\')")
		args = append(args, "%"+escapeLike(term)+"%")
	}
	query := fmt.Sprintf(`
		SELECT id, session_id, content, metadata, created_at, (%s) AS hits
		FROM memories
		WHERE tier = ? AND (session_id = ? OR session_id = '')
		ORDER BY hits DESC, created_at DESC, id
		LIMIT ?`, rank.String())
	args = append(args, tier.String(), req.SessionID, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", tier, err)
	}
	defer rows.Close()

	var out []memory.Entry
	for rows.Next() {
		var (
			e       memory.Entry
			meta    string
			created int64
			hits    int
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Content, &meta, &created, &hits); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", tier, err)
		}
		if meta != "" && meta != "null" {
			if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
				s.logger.Warn("dropping malformed metadata", zap.String("id", e.ID), zap.Error(err))
			}
		}
		e.CreatedAt = time.Unix(0, created).UTC()
		e.Score = float64(hits)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", tier, err)
	}
	return out, nil
}

// hintTerms picks up to maxHintTerms distinct words of at least four letters.
func hintTerms(hint string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(hint)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if len(w) < 4 || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
		if len(terms) == maxHintTerms {
			break
		}
	}
	return terms
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
