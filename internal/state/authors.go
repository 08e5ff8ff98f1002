package state

import (
	"context"
	"sort"

	"poemhub/internal/logging"
	"poemhub/pkg/domain"
)

const popularAuthorsLimit = 10

// AuthorService is the subset of core.Service the authors store drives.
type AuthorService interface {
	ListAuthors(ctx context.Context) ([]domain.Author, error)
	GetAuthor(ctx context.Context, id string) (domain.Author, error)
	AddAuthor(ctx context.Context, changes domain.AuthorChanges) (domain.Author, error)
	UpdateAuthor(ctx context.Context, id string, changes domain.AuthorChanges) (domain.Author, error)
	DeleteAuthor(ctx context.Context, id string) error
}

// AuthorsStore caches authors with their poem counts. Writes splice the
// collection locally instead of re-fetching.
type AuthorsStore struct {
	collection[domain.Author]
	svc AuthorService
}

// NewAuthorsStore builds an empty store around svc.
func NewAuthorsStore(svc AuthorService, logger logging.Logger) *AuthorsStore {
	return &AuthorsStore{collection: newCollection[domain.Author]("authors", logger), svc: svc}
}

// Fetch replaces the collection with every author.
func (s *AuthorsStore) Fetch(ctx context.Context) bool {
	s.begin()
	authors, err := s.svc.ListAuthors(ctx)
	if err != nil {
		return s.fail("fetch", err)
	}
	return s.replace(authors)
}

// Add inserts an author and appends it with a zero poem count.
func (s *AuthorsStore) Add(ctx context.Context, changes domain.AuthorChanges) (domain.Author, bool) {
	s.begin()
	author, err := s.svc.AddAuthor(ctx, changes)
	if err != nil {
		return domain.Author{}, s.fail("add", err)
	}
	author.PoemCount = 0
	return author, s.succeed(func(items []domain.Author) []domain.Author {
		return append(items, author)
	})
}

// Update edits an author and merges the result into the held entry, keeping
// its poem count.
func (s *AuthorsStore) Update(ctx context.Context, id string, changes domain.AuthorChanges) (domain.Author, bool) {
	s.begin()
	updated, err := s.svc.UpdateAuthor(ctx, id, changes)
	if err != nil {
		return domain.Author{}, s.fail("update", err)
	}
	return updated, s.succeed(func(items []domain.Author) []domain.Author {
		for i := range items {
			if items[i].ID == id {
				count := items[i].PoemCount
				items[i] = updated
				items[i].PoemCount = count
				break
			}
		}
		return items
	})
}

// Delete removes an author once the service guard allows it.
func (s *AuthorsStore) Delete(ctx context.Context, id string) bool {
	s.begin()
	if err := s.svc.DeleteAuthor(ctx, id); err != nil {
		return s.fail("delete", err)
	}
	return s.succeed(func(items []domain.Author) []domain.Author {
		return removeWhere(items, func(a domain.Author) bool { return a.ID == id })
	})
}

// Get loads one author from the service without touching the collection.
func (s *AuthorsStore) Get(ctx context.Context, id string) (domain.Author, bool) {
	s.begin()
	author, err := s.svc.GetAuthor(ctx, id)
	if err != nil {
		return domain.Author{}, s.fail("get", err)
	}
	return author, s.succeed(nil)
}

// ByDynasty returns held authors of one dynasty.
func (s *AuthorsStore) ByDynasty(dynasty string) []domain.Author {
	out := []domain.Author{}
	for _, a := range s.items() {
		if a.Dynasty == dynasty {
			out = append(out, a)
		}
	}
	return out
}

// Popular returns up to ten authors with poems, most poems first; ties keep
// collection order.
func (s *AuthorsStore) Popular() []domain.Author {
	return topByCount(s.items(), popularAuthorsLimit, func(a domain.Author) int { return a.PoemCount })
}

func topByCount[T any](items []T, limit int, count func(T) int) []T {
	out := removeWhere(items, func(item T) bool { return count(item) <= 0 })
	sort.SliceStable(out, func(i, j int) bool { return count(out[i]) > count(out[j]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
