package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"poemhub/internal/infra/persistence/memory"
	"poemhub/internal/infra/persistence/rest"
	"poemhub/pkg/domain"

	"github.com/google/go-cmp/cmp"
)

func TestAddPoemCreatesAuthorByName(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewStore())

	poem := mustValue(svc.AddPoem(ctx, PoemDraft{
		Title:      "静夜思",
		Content:    "床前明月光，\n疑是地上霜。",
		AuthorName: "李白",
		Dynasty:    "唐",
	}))(t)
	if poem.AuthorID == nil {
		t.Fatalf("expected poem to reference the created author")
	}
	if poem.CategoryID != nil {
		t.Fatalf("expected no category, got %v", *poem.CategoryID)
	}
	if poem.Tags == nil || len(poem.Tags) != 0 {
		t.Fatalf("tags must default to an empty set, got %#v", poem.Tags)
	}

	authors := mustValue(svc.ListAuthors(ctx))(t)
	if len(authors) != 1 || authors[0].Name != "李白" || authors[0].Dynasty != "唐" || authors[0].ID != *poem.AuthorID {
		t.Fatalf("unexpected authors %+v", authors)
	}

	poems := mustValue(svc.ListPoems(ctx))(t)
	if len(poems) != 1 || poems[0].AuthorName() != "李白" {
		t.Fatalf("expected listing to carry author name, got %+v", poems)
	}

	detail := mustValue(svc.GetPoem(ctx, poem.ID))(t)
	if detail.Author == nil || detail.Author.ID != *poem.AuthorID {
		t.Fatalf("detail must expand the author, got %+v", detail.Author)
	}
}

func TestAddPoemPrefersExplicitAuthorID(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewStore())
	author := mustValue(svc.AddAuthor(ctx, domain.AuthorChanges{Name: "杜甫", Dynasty: "唐"}))(t)

	poem := mustValue(svc.AddPoem(ctx, PoemDraft{Title: "春望", AuthorID: author.ID, AuthorName: "ignored", Dynasty: "唐"}))(t)
	if *poem.AuthorID != author.ID {
		t.Fatalf("expected author %s, got %s", author.ID, *poem.AuthorID)
	}
	if authors := mustValue(svc.ListAuthors(ctx))(t); len(authors) != 1 {
		t.Fatalf("author name must be ignored when an id is given, got %+v", authors)
	}
}

func TestFindOrCreateAuthorIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewStore())

	first := mustValue(svc.FindOrCreateAuthor(ctx, "王维", "唐"))(t)
	second := mustValue(svc.FindOrCreateAuthor(ctx, " 王维 ", "宋"))(t)
	if first.ID != second.ID {
		t.Fatalf("expected same author id, got %s and %s", first.ID, second.ID)
	}
	if second.Dynasty != "唐" {
		t.Fatalf("existing author must be returned unchanged, got dynasty %q", second.Dynasty)
	}
}

func TestFindOrCreateAuthorRecoversFromConcurrentInsert(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	store.raceAuthor = true
	svc := NewService(store)

	author := mustValue(svc.FindOrCreateAuthor(ctx, "白居易", "唐"))(t)
	authors := mustValue(svc.ListAuthors(ctx))(t)
	if len(authors) != 1 || authors[0].ID != author.ID {
		t.Fatalf("expected the concurrently inserted author, got %+v (returned %+v)", authors, author)
	}
}

func TestUpdatePoemStampsUpdatedAtAndKeepsAuthor(t *testing.T) {
	ctx := context.Background()
	stamp := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	svc := NewService(memory.NewStore(), WithClock(fixedClock(stamp)))
	category := mustValue(svc.AddCategory(ctx, domain.CategoryChanges{Name: "思乡"}))(t)
	poem := mustValue(svc.AddPoem(ctx, PoemDraft{Title: "静夜思", AuthorName: "李白", Dynasty: "唐"}))(t)

	updated := mustValue(svc.UpdatePoem(ctx, poem.ID, PoemDraft{
		Title:      "静夜思（其一）",
		Content:    "举头望明月",
		CategoryID: category.ID,
		Dynasty:    "唐",
		Tags:       []string{"月", "月", " 夜 "},
		AuthorName: "someone else",
	}))(t)
	if !updated.UpdatedAt.Equal(stamp) {
		t.Fatalf("UpdatedAt = %s, want %s", updated.UpdatedAt, stamp)
	}
	if *updated.AuthorID != *poem.AuthorID {
		t.Fatalf("author must not change on update")
	}
	if diff := cmp.Diff([]string{"月", "夜"}, updated.Tags); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}
	if updated.CategoryID == nil || *updated.CategoryID != category.ID {
		t.Fatalf("expected category %s", category.ID)
	}
}

func TestDeletePoemRemovesFromListing(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewStore())
	keep := mustValue(svc.AddPoem(ctx, PoemDraft{Title: "登鹳雀楼"}))(t)
	drop := mustValue(svc.AddPoem(ctx, PoemDraft{Title: "春晓"}))(t)

	if err := svc.DeletePoem(ctx, drop.ID); err != nil {
		t.Fatalf("DeletePoem: %v", err)
	}
	for _, p := range mustValue(svc.ListPoems(ctx))(t) {
		if p.ID == drop.ID {
			t.Fatalf("deleted poem still listed")
		}
	}
	if _, err := svc.GetPoem(ctx, keep.ID); err != nil {
		t.Fatalf("remaining poem must still resolve: %v", err)
	}
	err := svc.DeletePoem(ctx, drop.ID)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete should report not found, got %v", err)
	}
}

func TestSearchAndDynastyFilters(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewStore())
	mustValue(svc.AddPoem(ctx, PoemDraft{Title: "静夜思", Content: "床前明月光", Dynasty: "唐"}))(t)
	mustValue(svc.AddPoem(ctx, PoemDraft{Title: "水调歌头", Content: "明月几时有", Dynasty: "宋"}))(t)
	mustValue(svc.AddPoem(ctx, PoemDraft{Title: "Moonlight", Content: "quiet NIGHT", Dynasty: "近代"}))(t)

	for _, p := range mustValue(svc.SearchPoems(ctx, "明月"))(t) {
		if !strings.Contains(p.Title, "明月") && !strings.Contains(p.Content, "明月") {
			t.Fatalf("search result %q does not contain the query", p.Title)
		}
	}
	if got := mustValue(svc.SearchPoems(ctx, "night"))(t); len(got) != 1 {
		t.Fatalf("search must be case-insensitive, got %d results", len(got))
	}
	song := mustValue(svc.PoemsByDynasty(ctx, "宋"))(t)
	if len(song) != 1 || song[0].Title != "水调歌头" {
		t.Fatalf("unexpected dynasty filter result %+v", song)
	}
}

func TestPoemsByAuthorAndCategory(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewStore())
	category := mustValue(svc.AddCategory(ctx, domain.CategoryChanges{Name: "边塞", Description: "边塞诗"}))(t)
	poem := mustValue(svc.AddPoem(ctx, PoemDraft{Title: "出塞", AuthorName: "王昌龄", CategoryID: category.ID, Dynasty: "唐"}))(t)
	mustValue(svc.AddPoem(ctx, PoemDraft{Title: "无题"}))(t)

	byAuthor := mustValue(svc.PoemsByAuthor(ctx, *poem.AuthorID))(t)
	byCategory := mustValue(svc.PoemsByCategory(ctx, category.ID))(t)
	if len(byAuthor) != 1 || len(byCategory) != 1 || byCategory[0].CategoryName() != "边塞" {
		t.Fatalf("unexpected filtered listings: %+v / %+v", byAuthor, byCategory)
	}
}

func TestDeleteAuthorGuard(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	svc := NewService(store)
	poem := mustValue(svc.AddPoem(ctx, PoemDraft{Title: "静夜思", AuthorName: "李白"}))(t)

	err := svc.DeleteAuthor(ctx, *poem.AuthorID)
	var guard *GuardError
	if !errors.As(err, &guard) || !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected guard error, got %v", err)
	}
	if err.Error() != AuthorHasPoemsMessage || guard.Count != 1 {
		t.Fatalf("unexpected guard %+v", guard)
	}
	if store.deleteCalls != 0 {
		t.Fatalf("guard must fire before the delete is issued")
	}
	if _, err := svc.GetAuthor(ctx, *poem.AuthorID); err != nil {
		t.Fatalf("author must survive a rejected delete: %v", err)
	}

	mustValue(struct{}{}, svc.DeletePoem(ctx, poem.ID))(t)
	if err := svc.DeleteAuthor(ctx, *poem.AuthorID); err != nil {
		t.Fatalf("delete after last poem removed: %v", err)
	}
}

func TestDeleteCategoryGuard(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewStore())
	category := mustValue(svc.AddCategory(ctx, domain.CategoryChanges{Name: "山水"}))(t)
	mustValue(svc.AddPoem(ctx, PoemDraft{Title: "山居秋暝", CategoryID: category.ID}))(t)

	err := svc.DeleteCategory(ctx, category.ID)
	if err == nil || err.Error() != CategoryHasPoemsMessage {
		t.Fatalf("expected category guard, got %v", err)
	}
	if categories := mustValue(svc.ListCategories(ctx))(t); len(categories) != 1 || categories[0].PoemCount != 1 {
		t.Fatalf("category must survive, got %+v", categories)
	}
}

func TestDeleteRejectedByStoreReportsGuard(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	store.failOn("DeleteAuthor", domain.ErrReferenced)
	svc := NewService(store)
	author := mustValue(svc.AddAuthor(ctx, domain.AuthorChanges{Name: "苏轼"}))(t)

	err := svc.DeleteAuthor(ctx, author.ID)
	if !errors.Is(err, ErrInvariant) || err.Error() != AuthorHasPoemsMessage {
		t.Fatalf("expected store reference failure to surface as guard, got %v", err)
	}
}

func TestStoreFailuresAreNormalized(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	store.failOn("ListPoems", errStoreDown)
	store.failOn("CountPoems", errStoreDown)
	svc := NewService(store)

	_, err := svc.ListPoems(ctx)
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ServiceError, got %T", err)
	}
	if svcErr.Op != "list_poems" || svcErr.Message != errStoreDown.Error() || !errors.Is(err, errStoreDown) {
		t.Fatalf("unexpected service error %+v", svcErr)
	}

	if err := svc.DeleteCategory(ctx, "c1"); !errors.Is(err, errStoreDown) {
		t.Fatalf("guard count failure must propagate, got %v", err)
	}
}

func TestUnconfiguredDataServiceFailsEveryOperation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(rest.NewStore(rest.Config{}))

	checks := map[string]error{}
	_, checks["list"] = svc.ListPoems(ctx)
	_, checks["add"] = svc.AddPoem(ctx, PoemDraft{Title: "x", AuthorName: "y"})
	_, checks["authors"] = svc.ListAuthors(ctx)
	checks["delete"] = svc.DeleteCategory(ctx, "c")
	for name, err := range checks {
		if !errors.Is(err, domain.ErrNotConfigured) {
			t.Fatalf("%s: expected ErrNotConfigured, got %v", name, err)
		}
	}
}

func TestDataServiceFailureMessages(t *testing.T) {
	ctx := context.Background()
	failing := func(body string) *Service {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(body))
		}))
		t.Cleanup(srv.Close)
		return NewService(rest.NewStore(rest.Config{URL: srv.URL, Key: "anon"}))
	}

	_, err := failing("").ListPoems(ctx)
	if err == nil || err.Error() != "获取诗词列表失败" {
		t.Fatalf("bare failure must use the operation's default message, got %v", err)
	}

	_, err = failing(`{"message":"permission denied for table poems"}`).ListPoems(ctx)
	if err == nil || err.Error() != "permission denied for table poems" {
		t.Fatalf("service message must be surfaced, got %v", err)
	}
	var remote domain.ServiceMessager
	if !errors.As(err, &remote) {
		t.Fatalf("cause must stay reachable, got %#v", err)
	}
}
