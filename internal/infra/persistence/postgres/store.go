// Package postgres provides a Postgres-backed persistent store. It shares the
// query layer with the sqlite backend and applies its schema on startup.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"poemhub/internal/infra/persistence/sqlstore"
	"poemhub/pkg/domain"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	defaultDriver = "pgx"
	// Default DSN keeps parity with OpenPersistentStore defaults while allowing overrides via env.
	defaultDSN = "postgres://localhost/poemhub?sslmode=disable"
)

// Postgres error codes mapped onto domain sentinels.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists poems to Postgres.
type Store struct {
	*sqlstore.Store
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN)
// and applies the schema.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store := sqlstore.New(db, Dialect{})
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: store}, nil
}

// Dialect adapts sqlstore to Postgres.
type Dialect struct{}

// Name implements sqlstore.Dialect.
func (Dialect) Name() string { return "postgres" }

// Schema implements sqlstore.Dialect.
func (Dialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS authors (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			dynasty TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS authors_name_key ON authors (name)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS poems (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			dynasty TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			author_id TEXT REFERENCES authors (id),
			category_id TEXT REFERENCES categories (id),
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS poems_created_at_idx ON poems (created_at)`,
		`CREATE INDEX IF NOT EXISTS poems_author_id_idx ON poems (author_id)`,
		`CREATE INDEX IF NOT EXISTS poems_category_id_idx ON poems (category_id)`,
	}
}

// Rebind rewrites '?' placeholders into $1..$n, leaving quoted literals alone.
func (Dialect) Rebind(query string) string {
	var (
		b       strings.Builder
		n       int
		inQuote bool
	)
	b.Grow(len(query) + 8)
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TimeArg implements sqlstore.Dialect.
func (Dialect) TimeArg(t time.Time) any { return t.UTC() }

// Classify implements sqlstore.Dialect.
func (Dialect) Classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: %w", domain.ErrReferenced, err)
	}
	return err
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
