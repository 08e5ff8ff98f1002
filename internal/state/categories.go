package state

import (
	"context"

	"poemhub/internal/logging"
	"poemhub/pkg/domain"
)

const popularCategoriesLimit = 5

// CategoryService is the subset of core.Service the categories store drives.
type CategoryService interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	AddCategory(ctx context.Context, changes domain.CategoryChanges) (domain.Category, error)
	UpdateCategory(ctx context.Context, id string, changes domain.CategoryChanges) (domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error
}

// CategoriesStore caches categories with their poem counts.
type CategoriesStore struct {
	collection[domain.Category]
	svc CategoryService
}

// NewCategoriesStore builds an empty store around svc.
func NewCategoriesStore(svc CategoryService, logger logging.Logger) *CategoriesStore {
	return &CategoriesStore{collection: newCollection[domain.Category]("categories", logger), svc: svc}
}

// Fetch replaces the collection with every category.
func (s *CategoriesStore) Fetch(ctx context.Context) bool {
	s.begin()
	categories, err := s.svc.ListCategories(ctx)
	if err != nil {
		return s.fail("fetch", err)
	}
	return s.replace(categories)
}

// Add inserts a category and appends it with a zero poem count.
func (s *CategoriesStore) Add(ctx context.Context, changes domain.CategoryChanges) (domain.Category, bool) {
	s.begin()
	category, err := s.svc.AddCategory(ctx, changes)
	if err != nil {
		return domain.Category{}, s.fail("add", err)
	}
	category.PoemCount = 0
	return category, s.succeed(func(items []domain.Category) []domain.Category {
		return append(items, category)
	})
}

// Update edits a category and merges it into the held entry.
func (s *CategoriesStore) Update(ctx context.Context, id string, changes domain.CategoryChanges) (domain.Category, bool) {
	s.begin()
	updated, err := s.svc.UpdateCategory(ctx, id, changes)
	if err != nil {
		return domain.Category{}, s.fail("update", err)
	}
	return updated, s.succeed(func(items []domain.Category) []domain.Category {
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

// Delete removes a category once the service guard allows it.
func (s *CategoriesStore) Delete(ctx context.Context, id string) bool {
	s.begin()
	if err := s.svc.DeleteCategory(ctx, id); err != nil {
		return s.fail("delete", err)
	}
	return s.succeed(func(items []domain.Category) []domain.Category {
		return removeWhere(items, func(c domain.Category) bool { return c.ID == id })
	})
}

// ByID finds a held category.
func (s *CategoriesStore) ByID(id string) (domain.Category, bool) {
	for _, c := range s.items() {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Category{}, false
}

// Popular returns up to five categories with poems, most poems first.
func (s *CategoriesStore) Popular() []domain.Category {
	return topByCount(s.items(), popularCategoriesLimit, func(c domain.Category) int { return c.PoemCount })
}
