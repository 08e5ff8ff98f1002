package state

import (
	"context"
	"strings"

	"poemhub/internal/core"
	"poemhub/internal/logging"
	"poemhub/pkg/domain"
)

// PoemService is the subset of core.Service the poems store drives.
type PoemService interface {
	ListPoems(ctx context.Context) ([]domain.Poem, error)
	SearchPoems(ctx context.Context, query string) ([]domain.Poem, error)
	PoemsByDynasty(ctx context.Context, dynasty string) ([]domain.Poem, error)
	AddPoem(ctx context.Context, draft core.PoemDraft) (domain.Poem, error)
	UpdatePoem(ctx context.Context, id string, draft core.PoemDraft) (domain.Poem, error)
	DeletePoem(ctx context.Context, id string) error
}

// PoemsStore caches poems. Writes are followed by a full re-fetch.
type PoemsStore struct {
	collection[domain.Poem]
	svc PoemService
}

// NewPoemsStore builds an empty store around svc.
func NewPoemsStore(svc PoemService, logger logging.Logger) *PoemsStore {
	return &PoemsStore{collection: newCollection[domain.Poem]("poems", logger), svc: svc}
}

// Fetch replaces the collection with every poem.
func (s *PoemsStore) Fetch(ctx context.Context) bool {
	s.begin()
	poems, err := s.svc.ListPoems(ctx)
	if err != nil {
		return s.fail("fetch", err)
	}
	return s.replace(poems)
}

// Search replaces the collection with the remote search result for query.
func (s *PoemsStore) Search(ctx context.Context, query string) bool {
	s.begin()
	poems, err := s.svc.SearchPoems(ctx, query)
	if err != nil {
		return s.fail("search", err)
	}
	return s.replace(poems)
}

// FetchByDynasty replaces the collection with poems of one dynasty.
func (s *PoemsStore) FetchByDynasty(ctx context.Context, dynasty string) bool {
	s.begin()
	poems, err := s.svc.PoemsByDynasty(ctx, dynasty)
	if err != nil {
		return s.fail("fetch_by_dynasty", err)
	}
	return s.replace(poems)
}

// Add inserts a poem then re-fetches. The returned poem is the inserted row.
func (s *PoemsStore) Add(ctx context.Context, draft core.PoemDraft) (domain.Poem, bool) {
	s.begin()
	poem, err := s.svc.AddPoem(ctx, draft)
	if err != nil {
		return domain.Poem{}, s.fail("add", err)
	}
	return poem, s.refetch(ctx)
}

// Update edits a poem then re-fetches.
func (s *PoemsStore) Update(ctx context.Context, id string, draft core.PoemDraft) (domain.Poem, bool) {
	s.begin()
	poem, err := s.svc.UpdatePoem(ctx, id, draft)
	if err != nil {
		return domain.Poem{}, s.fail("update", err)
	}
	return poem, s.refetch(ctx)
}

// Delete removes a poem then re-fetches.
func (s *PoemsStore) Delete(ctx context.Context, id string) bool {
	s.begin()
	if err := s.svc.DeletePoem(ctx, id); err != nil {
		return s.fail("delete", err)
	}
	return s.refetch(ctx)
}

// refetch runs after a completed write.
func (s *PoemsStore) refetch(ctx context.Context) bool {
	poems, err := s.svc.ListPoems(ctx)
	if err != nil {
		return s.fail("refetch", err)
	}
	return s.replace(poems)
}

// SetSearchQuery sets the local text filter.
func (s *PoemsStore) SetSearchQuery(query string) {
	s.mu.Lock()
	s.snap.Query = query
	s.mu.Unlock()
}

// SetDynasty sets the local dynasty filter.
func (s *PoemsStore) SetDynasty(dynasty string) {
	s.mu.Lock()
	s.snap.Dynasty = dynasty
	s.mu.Unlock()
}

// ClearFilters resets both local filters.
func (s *PoemsStore) ClearFilters() {
	s.mu.Lock()
	s.snap.Query = ""
	s.snap.Dynasty = ""
	s.mu.Unlock()
}

// Filtered applies the local filters held by the store.
func (s *PoemsStore) Filtered() []domain.Poem {
	snap := s.Snapshot()
	return FilterPoems(snap.Items, snap.Query, snap.Dynasty)
}

// FilterPoems returns the poems matching query and dynasty. The query matches
// title, author name or content case-insensitively; the dynasty must match
// exactly. Empty values match everything.
func FilterPoems(items []domain.Poem, query, dynasty string) []domain.Poem {
	query = strings.ToLower(query)
	out := make([]domain.Poem, 0, len(items))
	for _, p := range items {
		if query != "" &&
			!strings.Contains(strings.ToLower(p.Title), query) &&
			!strings.Contains(strings.ToLower(p.AuthorName()), query) &&
			!strings.Contains(strings.ToLower(p.Content), query) {
			continue
		}
		if dynasty != "" && p.Dynasty != dynasty {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Dynasties lists the distinct non-empty dynasties held, in first-seen order.
func (s *PoemsStore) Dynasties() []string {
	return DynastiesOf(s.items())
}

// DynastiesOf lists the distinct non-empty dynasties of items, in first-seen order.
func DynastiesOf(items []domain.Poem) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, p := range items {
		if p.Dynasty == "" {
			continue
		}
		if _, ok := seen[p.Dynasty]; ok {
			continue
		}
		seen[p.Dynasty] = struct{}{}
		out = append(out, p.Dynasty)
	}
	return out
}
