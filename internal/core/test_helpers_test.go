package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"poemhub/internal/infra/persistence/memory"
	"poemhub/pkg/domain"
)

var errStoreDown = errors.New("connection reset by peer")

// faultyStore wraps the memory store and fails selected operations.
type faultyStore struct {
	*memory.Store
	mu          sync.Mutex
	fail        map[string]error
	insertCalls int
	deleteCalls int
	// raceAuthor simulates a concurrent insert of the same author name
	// landing between lookup and insert.
	raceAuthor bool
}

func newFaultyStore() *faultyStore {
	return &faultyStore{Store: memory.NewStore(), fail: map[string]error{}}
}

func (f *faultyStore) failOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

func (f *faultyStore) err(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[op]
}

func (f *faultyStore) ListPoems(ctx context.Context, q domain.PoemQuery) ([]domain.Poem, error) {
	if err := f.err("ListPoems"); err != nil {
		return nil, err
	}
	return f.Store.ListPoems(ctx, q)
}

func (f *faultyStore) CountPoems(ctx context.Context, q domain.PoemQuery) (int, error) {
	if err := f.err("CountPoems"); err != nil {
		return 0, err
	}
	return f.Store.CountPoems(ctx, q)
}

func (f *faultyStore) InsertAuthor(ctx context.Context, changes domain.AuthorChanges) (domain.Author, error) {
	f.mu.Lock()
	f.insertCalls++
	race := f.raceAuthor
	f.raceAuthor = false
	f.mu.Unlock()
	if race {
		if _, err := f.Store.InsertAuthor(ctx, changes); err != nil {
			return domain.Author{}, err
		}
	}
	if err := f.err("InsertAuthor"); err != nil {
		return domain.Author{}, err
	}
	return f.Store.InsertAuthor(ctx, changes)
}

func (f *faultyStore) DeleteAuthor(ctx context.Context, id string) error {
	f.mu.Lock()
	f.deleteCalls++
	f.mu.Unlock()
	if err := f.err("DeleteAuthor"); err != nil {
		return err
	}
	return f.Store.DeleteAuthor(ctx, id)
}

func (f *faultyStore) DeleteCategory(ctx context.Context, id string) error {
	f.mu.Lock()
	f.deleteCalls++
	f.mu.Unlock()
	if err := f.err("DeleteCategory"); err != nil {
		return err
	}
	return f.Store.DeleteCategory(ctx, id)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func mustValue[T any](v T, err error) func(t *testing.T) T {
	return func(t *testing.T) T {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return v
	}
}
