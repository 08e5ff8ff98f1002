package core

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"poemhub/internal/config"
	"poemhub/internal/infra/persistence/memory"
	"poemhub/internal/infra/persistence/rest"
	"poemhub/internal/infra/persistence/sqlite"
	"poemhub/pkg/domain"
)

func TestOpenPersistentStoreDrivers(t *testing.T) {
	ctx := context.Background()

	store, err := OpenPersistentStore(ctx, config.Storage{})
	if err != nil {
		t.Fatalf("default driver: %v", err)
	}
	rs, ok := store.(*rest.Store)
	if !ok {
		t.Fatalf("default driver must be rest, got %T", store)
	}
	if rs.Configured() {
		t.Fatalf("rest store without credentials must be unconfigured")
	}
	if _, err := store.ListPoems(ctx, domain.PoemQuery{}); !errors.Is(err, domain.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}

	store, err = OpenPersistentStore(ctx, config.Storage{Driver: config.DriverMemory})
	if err != nil {
		t.Fatalf("memory driver: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}

	path := filepath.Join(t.TempDir(), "poems.db")
	store, err = OpenPersistentStore(ctx, config.Storage{Driver: config.DriverSQLite, SQLitePath: path})
	if err != nil {
		t.Fatalf("sqlite driver: %v", err)
	}
	defer func() { _ = store.Close() }()
	if ss, ok := store.(*sqlite.Store); !ok || ss.Path() != path {
		t.Fatalf("expected sqlite store at %s, got %T", path, store)
	}

	if _, err := OpenPersistentStore(ctx, config.Storage{Driver: "mongo"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestOpenPersistentStoreRESTWithCredentials(t *testing.T) {
	store, err := OpenPersistentStore(context.Background(), config.Storage{
		Driver:      config.DriverREST,
		SupabaseURL: "https://example.supabase.co",
		SupabaseKey: "anon",
	})
	if err != nil {
		t.Fatalf("OpenPersistentStore: %v", err)
	}
	if !store.(*rest.Store).Configured() {
		t.Fatalf("expected configured rest store")
	}
}
