// Package storage provides the persisted key-value document store backing
// the topic engine. The whole state is three JSON documents (topics, notes,
// super categories) held under fixed keys, loaded wholesale at startup and
// saved wholesale after every mutation. A corrupt document degrades to an
// empty one; the store never refuses to start over bad persisted JSON.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Fixed document keys. The names carry over from the original prototype's
// local-storage layout so old exports stay recognizable.
const (
	KeyTopics     = "gist-topics"
	KeySummaries  = "gist-summaries"
	KeySuperCats  = "gist-supercats"
	DefaultDBPath = "~/.gist/gist.db"
)

// Repository is the load/save contract the topic store runs against.
// Load reports ok=false when the key is absent or its document failed to
// parse; the caller proceeds with empty state either way.
type Repository interface {
	Load(ctx context.Context, key string, v any) (ok bool, err error)
	Save(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// SQLiteRepository implements Repository over a single-table SQLite database.
type SQLiteRepository struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath.
// Pass ":memory:" for throwaway databases in tests.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dbPath == "" {
		dbPath = ExpandPath(DefaultDBPath)
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(
		`CREATE TABLE IF NOT EXISTS documents (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating documents table: %w", err)
	}

	return &SQLiteRepository{db: db, dbPath: dbPath}, nil
}

// Load reads and decodes the document at key into v. A missing row or a
// document that no longer parses both yield ok=false with a nil error; the
// corrupt row is removed so the next Save starts clean.
func (r *SQLiteRepository) Load(ctx context.Context, key string, v any) (bool, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM documents WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading document %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		// Corrupt persisted JSON: reset to empty rather than fail startup.
		_, _ = r.db.ExecContext(ctx, `DELETE FROM documents WHERE key = ?`, key)
		return false, nil
	}
	return true, nil
}

// Save encodes v and writes it under key, replacing any previous document.
func (r *SQLiteRepository) Save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding document %q: %w", key, err)
	}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, string(raw),
	); err != nil {
		return fmt.Errorf("saving document %q: %w", key, err)
	}
	return nil
}

// Delete removes the document at key. Missing keys are not an error.
func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting document %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
