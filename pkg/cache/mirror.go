package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Mirror persists cache entries durably so they survive process restarts.
type Mirror interface {
	Store(entry Entry) error
	LoadAll() ([]Entry, error)
	Close() error
}

// SQLiteMirror stores cache entries in a single-table SQLite database under
// the configured cache directory.
type SQLiteMirror struct {
	db *sql.DB
}

// NewSQLiteMirror opens (or creates) the mirror database at dir/responses.db.
func NewSQLiteMirror(ctx context.Context, dir string) (*SQLiteMirror, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure cache directory: %w", err)
	}

	dsn := filepath.Join(dir, "responses.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache mirror: %w", err)
	}
	// SQLite tolerates a single writer; entry-level atomicity comes from the
	// one-statement upsert below.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping cache mirror: %w", err)
	}

	m := &SQLiteMirror{db: db}
	if err := m.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

func (m *SQLiteMirror) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS responses (
	key           TEXT PRIMARY KEY,
	value         TEXT NOT NULL,
	model         TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost_usd      REAL NOT NULL,
	inserted_at   INTEGER NOT NULL,
	ttl_ns        INTEGER NOT NULL
);`
	if _, err := m.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize cache mirror schema: %w", err)
	}
	return nil
}

// Store upserts one entry.
func (m *SQLiteMirror) Store(entry Entry) error {
	const stmt = `
INSERT INTO responses (key, value, model, input_tokens, output_tokens, cost_usd, inserted_at, ttl_ns)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	value = excluded.value,
	model = excluded.model,
	input_tokens = excluded.input_tokens,
	output_tokens = excluded.output_tokens,
	cost_usd = excluded.cost_usd,
	inserted_at = excluded.inserted_at,
	ttl_ns = excluded.ttl_ns;`

	_, err := m.db.Exec(stmt,
		entry.Key, entry.Value, entry.Model,
		entry.InputTokens, entry.OutputTokens, entry.CostUSD,
		entry.InsertedAt.UnixNano(), int64(entry.TTL),
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// LoadAll returns every mirrored entry, oldest insertion first. Expiry
// filtering is left to the in-memory cache so the policy lives in one place.
func (m *SQLiteMirror) LoadAll() ([]Entry, error) {
	rows, err := m.db.Query(`SELECT key, value, model, input_tokens, output_tokens, cost_usd, inserted_at, ttl_ns
FROM responses ORDER BY inserted_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache mirror: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var insertedAt, ttl int64
		if err := rows.Scan(&e.Key, &e.Value, &e.Model, &e.InputTokens, &e.OutputTokens, &e.CostUSD, &insertedAt, &ttl); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		e.InsertedAt = time.Unix(0, insertedAt).UTC()
		e.TTL = time.Duration(ttl)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cache mirror: %w", err)
	}
	return entries, nil
}

// Close closes the underlying database.
func (m *SQLiteMirror) Close() error {
	return m.db.Close()
}
