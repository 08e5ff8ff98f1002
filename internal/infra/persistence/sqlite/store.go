// Package sqlite provides an embedded SQLite-backed persistent store using the
// pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"poemhub/internal/infra/persistence/sqlstore"
	"poemhub/pkg/domain"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const defaultPath = "poemhub.db"

// Store persists poems to a local SQLite file.
type Store struct {
	*sqlstore.Store
	path string
}

// NewStore opens (creating if needed) the database at path and applies the schema.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	store := sqlstore.New(db, Dialect{})
	if err := store.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: store, path: path}, nil
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

func dsn(path string) string {
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path == MemoryPath {
		return "file::memory:?" + pragmas
	}
	return "file:" + path + "?" + pragmas
}

// Dialect adapts sqlstore to SQLite.
type Dialect struct{}

// Name implements sqlstore.Dialect.
func (Dialect) Name() string { return "sqlite" }

// Schema implements sqlstore.Dialect.
func (Dialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS authors (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			dynasty TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS authors_name_key ON authors (name)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS poems (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			dynasty TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			author_id TEXT REFERENCES authors (id),
			category_id TEXT REFERENCES categories (id),
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS poems_created_at_idx ON poems (created_at)`,
		`CREATE INDEX IF NOT EXISTS poems_author_id_idx ON poems (author_id)`,
		`CREATE INDEX IF NOT EXISTS poems_category_id_idx ON poems (category_id)`,
	}
}

// Rebind implements sqlstore.Dialect; SQLite accepts '?' natively.
func (Dialect) Rebind(query string) string { return query }

// TimeArg implements sqlstore.Dialect.
func (Dialect) TimeArg(t time.Time) any { return t.UTC().Format(sqlstore.TimeLayout) }

// Classify implements sqlstore.Dialect.
func (Dialect) Classify(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return fmt.Errorf("%w: %w", domain.ErrReferenced, err)
	}
	if se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		msg := se.Error()
		switch {
		case strings.Contains(msg, "UNIQUE"):
			return fmt.Errorf("%w: %w", domain.ErrConflict, err)
		case strings.Contains(msg, "FOREIGN KEY"):
			return fmt.Errorf("%w: %w", domain.ErrReferenced, err)
		}
	}
	return err
}
