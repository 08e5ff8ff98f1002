package state

import (
	"context"
	"errors"
	"sync"
	"testing"

	"poemhub/internal/core"
	"poemhub/internal/infra/persistence/memory"
	"poemhub/pkg/domain"
)

var errOffline = errors.New("network unreachable")

// flakyService delegates to a real service and fails selected calls.
type flakyService struct {
	*core.Service
	mu    sync.Mutex
	fail  map[string]error
	calls map[string]int
}

func newFlakyService() *flakyService {
	return &flakyService{
		Service: core.NewService(memory.NewStore()),
		fail:    map[string]error{},
		calls:   map[string]int{},
	}
}

func (f *flakyService) failOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

func (f *flakyService) hit(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.fail[op]
}

func (f *flakyService) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *flakyService) ListPoems(ctx context.Context) ([]domain.Poem, error) {
	if err := f.hit("ListPoems"); err != nil {
		return nil, err
	}
	return f.Service.ListPoems(ctx)
}

func (f *flakyService) AddPoem(ctx context.Context, draft core.PoemDraft) (domain.Poem, error) {
	if err := f.hit("AddPoem"); err != nil {
		return domain.Poem{}, err
	}
	return f.Service.AddPoem(ctx, draft)
}

func (f *flakyService) ListAuthors(ctx context.Context) ([]domain.Author, error) {
	if err := f.hit("ListAuthors"); err != nil {
		return nil, err
	}
	return f.Service.ListAuthors(ctx)
}

func (f *flakyService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	if err := f.hit("ListCategories"); err != nil {
		return nil, err
	}
	return f.Service.ListCategories(ctx)
}

func mustValue[T any](v T, ok bool) func(t *testing.T) T {
	return func(t *testing.T) T {
		t.Helper()
		if !ok {
			t.Fatalf("expected action to succeed")
		}
		return v
	}
}
