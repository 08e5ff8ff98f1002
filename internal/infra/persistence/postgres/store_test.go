package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"poemhub/internal/infra/persistence/postgres/testutil"
	"poemhub/internal/infra/persistence/storetest"
	"poemhub/pkg/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

func openStub(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		if driverName != defaultDriver {
			t.Fatalf("unexpected driver %s", driverName)
		}
		return db, nil
	})
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, conn
}

func TestNewStoreAppliesSchema(t *testing.T) {
	_, conn := openStub(t)
	if got, want := conn.ExecCount(), len(Dialect{}.Schema()); got != want {
		t.Fatalf("executed %d ddl statements, want %d", got, want)
	}
	if !strings.Contains(conn.Execs[0], "CREATE TABLE IF NOT EXISTS authors") {
		t.Fatalf("authors table must be created first, got %q", conn.Execs[0])
	}
}

func TestNewStorePingFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.PingErr = errors.New("connection refused")
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), "postgres://example"); err == nil || !strings.Contains(err.Error(), "ping postgres") {
		t.Fatalf("expected ping error, got %v", err)
	}
}

func TestNewStoreOpenFailure(t *testing.T) {
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, errors.New("boom") })
	defer restore()
	if _, err := NewStore(context.Background(), "postgres://example"); err == nil || !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("expected open error, got %v", err)
	}
}

func TestRebindNumbersPlaceholders(t *testing.T) {
	got := Dialect{}.Rebind(`SELECT * FROM poems WHERE title LIKE ? ESCAPE '\' AND note = '?' AND id = ?`)
	want := `SELECT * FROM poems WHERE title LIKE $1 ESCAPE '\' AND note = '?' AND id = $2`
	if got != want {
		t.Fatalf("Rebind:\n got %s\nwant %s", got, want)
	}
}

func TestClassifyMapsConstraintCodes(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{codeUniqueViolation, domain.ErrConflict},
		{codeForeignKeyViolation, domain.ErrReferenced},
	}
	for _, tc := range cases {
		err := Dialect{}.Classify(&pgconn.PgError{Code: tc.code})
		if !errors.Is(err, tc.want) {
			t.Fatalf("code %s: expected %v, got %v", tc.code, tc.want, err)
		}
	}
	plain := errors.New("plain")
	if got := (Dialect{}).Classify(plain); got != plain {
		t.Fatalf("non-postgres errors must pass through, got %v", got)
	}
}

func TestInsertAuthorConflictFromDriver(t *testing.T) {
	store, conn := openStub(t)
	conn.ExecErr = &pgconn.PgError{Code: codeUniqueViolation, Message: "duplicate key value violates unique constraint"}
	_, err := store.InsertAuthor(context.Background(), domain.AuthorChanges{Name: "李白"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	query, args := conn.LastExec()
	if !strings.Contains(query, "$4") || len(args) != 4 {
		t.Fatalf("expected rebound insert with 4 args, got %q %v", query, args)
	}
}

func TestDeleteMissingPoemReportsNotFound(t *testing.T) {
	store, conn := openStub(t)
	conn.Affected = -1
	if err := store.DeletePoem(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListAuthorsScansRows(t *testing.T) {
	store, conn := openStub(t)
	created := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	conn.Columns = []string{"id", "name", "dynasty", "created_at", "poem_count"}
	conn.Rows = [][]driver.Value{{"a-1", "杜甫", "唐", created, int64(3)}}
	authors, err := store.ListAuthors(context.Background())
	if err != nil {
		t.Fatalf("ListAuthors: %v", err)
	}
	if len(authors) != 1 || authors[0].PoemCount != 3 || !authors[0].CreatedAt.Equal(created) {
		t.Fatalf("unexpected authors: %+v", authors)
	}
}

// TestPostgresStoreContract runs against a live server when
// POEMHUB_TEST_POSTGRES_DSN is set.
func TestPostgresStoreContract(t *testing.T) {
	dsn := os.Getenv("POEMHUB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POEMHUB_TEST_POSTGRES_DSN not set")
	}
	storetest.Run(t, func(t *testing.T) domain.PersistentStore {
		ctx := context.Background()
		store, err := NewStore(ctx, dsn)
		if err != nil {
			t.Fatalf("NewStore: %v", err)
		}
		if _, err := store.DB().ExecContext(ctx, `TRUNCATE poems, authors, categories`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}
