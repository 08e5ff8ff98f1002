// Package storetest holds the behavioural contract every domain.PersistentStore
// backend must satisfy. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"poemhub/pkg/domain"

	"github.com/google/go-cmp/cmp"
)

// Factory returns a fresh, empty store. Cleanup is registered on t.
type Factory func(t *testing.T) domain.PersistentStore

// Run executes the full contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("poem lifecycle", func(t *testing.T) { testPoemLifecycle(t, newStore(t)) })
	t.Run("search and filters", func(t *testing.T) { testSearchAndFilters(t, newStore(t)) })
	t.Run("author uniqueness", func(t *testing.T) { testAuthorUniqueness(t, newStore(t)) })
	t.Run("references block deletes", func(t *testing.T) { testReferencesBlockDeletes(t, newStore(t)) })
	t.Run("listings ordered by name with counts", func(t *testing.T) { testListings(t, newStore(t)) })
	t.Run("missing rows", func(t *testing.T) { testMissingRows(t, newStore(t)) })
}

func strPtr(v string) *string { return &v }

// Must binds a (value, error) result; the returned func fails t when err is
// non-nil and yields v otherwise.
func Must[T any](v T, err error) func(t *testing.T) T {
	return func(t *testing.T) T {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return v
	}
}

func testPoemLifecycle(t *testing.T, store domain.PersistentStore) {
	ctx := context.Background()
	author := Must(store.InsertAuthor(ctx, domain.AuthorChanges{Name: "李白", Dynasty: "唐"}))(t)
	category := Must(store.InsertCategory(ctx, domain.CategoryChanges{Name: "思乡"}))(t)

	poem := Must(store.InsertPoem(ctx, domain.PoemRecord{
		Title:      "静夜思",
		Content:    "床前明月光，疑是地上霜。\n举头望明月，低头思故乡。",
		AuthorID:   &author.ID,
		CategoryID: &category.ID,
		Dynasty:    "唐",
		Tags:       []string{"思乡", "月夜"},
	}))(t)
	if poem.ID == "" {
		t.Fatalf("expected generated poem id")
	}
	if poem.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be stamped")
	}

	got := Must(store.GetPoem(ctx, poem.ID))(t)
	if got.Author == nil || got.Author.ID != author.ID || got.Author.Name != "李白" {
		t.Fatalf("expected expanded author, got %+v", got.Author)
	}
	if got.Category == nil || got.Category.ID != category.ID {
		t.Fatalf("expected expanded category, got %+v", got.Category)
	}
	if diff := cmp.Diff([]string{"思乡", "月夜"}, got.Tags); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(got.Content, "\n") {
		t.Fatalf("expected line breaks to survive storage: %q", got.Content)
	}

	listed := Must(store.ListPoems(ctx, domain.PoemQuery{}))(t)
	if len(listed) != 1 || listed[0].AuthorName() != "李白" || listed[0].CategoryName() != "思乡" {
		t.Fatalf("expected joined listing, got %+v", listed)
	}

	updatedAt := poem.CreatedAt.Add(1)
	updated := Must(store.UpdatePoem(ctx, poem.ID, domain.PoemChanges{
		Title:     "夜思",
		Content:   poem.Content,
		Dynasty:   "唐",
		Tags:      nil,
		UpdatedAt: updatedAt,
	}))(t)
	if updated.Title != "夜思" || updated.CategoryID != nil {
		t.Fatalf("expected title updated and category cleared, got %+v", updated)
	}
	if updated.Tags == nil || len(updated.Tags) != 0 {
		t.Fatalf("expected empty non-nil tags, got %#v", updated.Tags)
	}
	if updated.AuthorID == nil || *updated.AuthorID != author.ID {
		t.Fatalf("update must keep the author reference")
	}

	if err := store.DeletePoem(ctx, poem.ID); err != nil {
		t.Fatalf("delete poem: %v", err)
	}
	for _, p := range Must(store.ListPoems(ctx, domain.PoemQuery{}))(t) {
		if p.ID == poem.ID {
			t.Fatalf("deleted poem %s still listed", poem.ID)
		}
	}
	if _, err := store.GetPoem(ctx, poem.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func testSearchAndFilters(t *testing.T, store domain.PersistentStore) {
	ctx := context.Background()
	li := Must(store.InsertAuthor(ctx, domain.AuthorChanges{Name: "李白", Dynasty: "唐"}))(t)
	su := Must(store.InsertAuthor(ctx, domain.AuthorChanges{Name: "苏轼", Dynasty: "宋"}))(t)
	seed := []domain.PoemRecord{
		{Title: "静夜思", Content: "床前明月光", AuthorID: &li.ID, Dynasty: "唐"},
		{Title: "Moonlight", Content: "A quiet NIGHT", AuthorID: &li.ID, Dynasty: "唐"},
		{Title: "水调歌头", Content: "明月几时有", AuthorID: &su.ID, Dynasty: "宋"},
		{Title: "100%", Content: "under_score", AuthorID: &su.ID, Dynasty: "宋"},
	}
	for _, rec := range seed {
		Must(store.InsertPoem(ctx, rec))(t)
	}

	cases := []struct {
		name  string
		query domain.PoemQuery
		want  []string
	}{
		{name: "title or content substring", query: domain.PoemQuery{Search: "明月"}, want: []string{"水调歌头", "静夜思"}},
		{name: "case insensitive", query: domain.PoemQuery{Search: "night"}, want: []string{"Moonlight"}},
		{name: "wildcards are literal", query: domain.PoemQuery{Search: "%"}, want: []string{"100%"}},
		{name: "underscore literal", query: domain.PoemQuery{Search: "_"}, want: []string{"100%"}},
		{name: "dynasty exact", query: domain.PoemQuery{Dynasty: "唐"}, want: []string{"Moonlight", "静夜思"}},
		{name: "author filter", query: domain.PoemQuery{AuthorID: su.ID}, want: []string{"100%", "水调歌头"}},
		{name: "no match", query: domain.PoemQuery{Search: "不存在"}, want: []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Must(store.ListPoems(ctx, tc.query))(t)
			titles := make([]string, 0, len(got))
			for _, p := range got {
				if !tc.query.Matches(p) {
					t.Fatalf("result %q does not satisfy query %+v", p.Title, tc.query)
				}
				titles = append(titles, p.Title)
			}
			if diff := cmp.Diff(tc.want, titles); diff != "" {
				t.Fatalf("titles mismatch (-want +got):\n%s", diff)
			}
			count := Must(store.CountPoems(ctx, tc.query))(t)
			if count != len(tc.want) {
				t.Fatalf("count = %d, want %d", count, len(tc.want))
			}
		})
	}
}

func testAuthorUniqueness(t *testing.T, store domain.PersistentStore) {
	ctx := context.Background()
	first := Must(store.InsertAuthor(ctx, domain.AuthorChanges{Name: "杜甫", Dynasty: "唐"}))(t)
	if _, err := store.InsertAuthor(ctx, domain.AuthorChanges{Name: "杜甫", Dynasty: "唐"}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate name, got %v", err)
	}
	found, ok, err := store.FindAuthorByName(ctx, "杜甫")
	if err != nil || !ok {
		t.Fatalf("find by name: ok=%v err=%v", ok, err)
	}
	if found.ID != first.ID {
		t.Fatalf("found %s, want %s", found.ID, first.ID)
	}
	if _, ok, err := store.FindAuthorByName(ctx, "杜"); err != nil || ok {
		t.Fatalf("expected exact-name miss, ok=%v err=%v", ok, err)
	}
}

func testReferencesBlockDeletes(t *testing.T, store domain.PersistentStore) {
	ctx := context.Background()
	author := Must(store.InsertAuthor(ctx, domain.AuthorChanges{Name: "王维", Dynasty: "唐"}))(t)
	category := Must(store.InsertCategory(ctx, domain.CategoryChanges{Name: "山水"}))(t)
	poem := Must(store.InsertPoem(ctx, domain.PoemRecord{Title: "鹿柴", Content: "空山不见人", AuthorID: &author.ID, CategoryID: &category.ID, Dynasty: "唐"}))(t)

	if err := store.DeleteAuthor(ctx, author.ID); !errors.Is(err, domain.ErrReferenced) {
		t.Fatalf("expected ErrReferenced deleting referenced author, got %v", err)
	}
	if err := store.DeleteCategory(ctx, category.ID); !errors.Is(err, domain.ErrReferenced) {
		t.Fatalf("expected ErrReferenced deleting referenced category, got %v", err)
	}
	Must(store.GetAuthor(ctx, author.ID))(t)
	Must(store.GetCategory(ctx, category.ID))(t)

	if err := store.DeletePoem(ctx, poem.ID); err != nil {
		t.Fatalf("delete poem: %v", err)
	}
	if err := store.DeleteAuthor(ctx, author.ID); err != nil {
		t.Fatalf("delete author: %v", err)
	}
	if err := store.DeleteCategory(ctx, category.ID); err != nil {
		t.Fatalf("delete category: %v", err)
	}
}

func testListings(t *testing.T, store domain.PersistentStore) {
	ctx := context.Background()
	b := Must(store.InsertAuthor(ctx, domain.AuthorChanges{Name: "b", Dynasty: "宋"}))(t)
	Must(store.InsertAuthor(ctx, domain.AuthorChanges{Name: "a", Dynasty: "唐"}))(t)
	c := Must(store.InsertCategory(ctx, domain.CategoryChanges{Name: "y"}))(t)
	Must(store.InsertCategory(ctx, domain.CategoryChanges{Name: "x"}))(t)
	for i := 0; i < 2; i++ {
		Must(store.InsertPoem(ctx, domain.PoemRecord{Title: "t", Content: "c", AuthorID: &b.ID, CategoryID: strPtr(c.ID)}))(t)
	}

	authors := Must(store.ListAuthors(ctx))(t)
	if len(authors) != 2 || authors[0].Name != "a" || authors[1].Name != "b" {
		t.Fatalf("authors not ordered by name: %+v", authors)
	}
	if authors[0].PoemCount != 0 || authors[1].PoemCount != 2 {
		t.Fatalf("unexpected author counts: %+v", authors)
	}
	categories := Must(store.ListCategories(ctx))(t)
	if len(categories) != 2 || categories[0].Name != "x" || categories[1].PoemCount != 2 {
		t.Fatalf("unexpected categories: %+v", categories)
	}

	renamed := Must(store.UpdateCategory(ctx, c.ID, domain.CategoryChanges{Name: "z", Description: "renamed"}))(t)
	if renamed.Name != "z" || renamed.Description != "renamed" {
		t.Fatalf("category update not applied: %+v", renamed)
	}
	moved := Must(store.UpdateAuthor(ctx, b.ID, domain.AuthorChanges{Name: "b2", Dynasty: "元"}))(t)
	if moved.Name != "b2" || moved.Dynasty != "元" {
		t.Fatalf("author update not applied: %+v", moved)
	}
}

func testMissingRows(t *testing.T, store domain.PersistentStore) {
	ctx := context.Background()
	checks := map[string]error{
		"get poem":        func() error { _, err := store.GetPoem(ctx, "missing"); return err }(),
		"update poem":     func() error { _, err := store.UpdatePoem(ctx, "missing", domain.PoemChanges{Title: "x"}); return err }(),
		"delete poem":     store.DeletePoem(ctx, "missing"),
		"get author":      func() error { _, err := store.GetAuthor(ctx, "missing"); return err }(),
		"update author":   func() error { _, err := store.UpdateAuthor(ctx, "missing", domain.AuthorChanges{Name: "x"}); return err }(),
		"delete author":   store.DeleteAuthor(ctx, "missing"),
		"get category":    func() error { _, err := store.GetCategory(ctx, "missing"); return err }(),
		"update category": func() error { _, err := store.UpdateCategory(ctx, "missing", domain.CategoryChanges{Name: "x"}); return err }(),
		"delete category": store.DeleteCategory(ctx, "missing"),
	}
	for name, err := range checks {
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("%s: expected ErrNotFound, got %v", name, err)
		}
	}
}
