package state

import (
	"context"
	"strings"
	"testing"

	"poemhub/internal/logging"
	"poemhub/pkg/domain"
)

func TestRefreshAllLoadsEveryStore(t *testing.T) {
	ctx := context.Background()
	svc := newFlakyService()
	if _, err := svc.AddAuthor(ctx, domain.AuthorChanges{Name: "李白"}); err != nil {
		t.Fatalf("add author: %v", err)
	}
	if _, err := svc.AddCategory(ctx, domain.CategoryChanges{Name: "思乡"}); err != nil {
		t.Fatalf("add category: %v", err)
	}
	stores := NewStores(svc, WithStoresLogger(logging.Nop()))
	if err := stores.RefreshAll(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if stores.Authors.Total() != 1 || stores.Categories.Total() != 1 || stores.Poems.Total() != 0 {
		t.Fatalf("unexpected totals: %d %d %d", stores.Authors.Total(), stores.Categories.Total(), stores.Poems.Total())
	}
}

func TestRefreshAllReportsFailures(t *testing.T) {
	svc := newFlakyService()
	svc.failOn("ListAuthors", errOffline)
	stores := NewStores(svc)
	err := stores.RefreshAll(context.Background())
	if err == nil || !strings.Contains(err.Error(), "authors") {
		t.Fatalf("expected authors failure, got %v", err)
	}
	if stores.Authors.Snapshot().Error != errOffline.Error() {
		t.Fatalf("expected authors error recorded")
	}
	if stores.Categories.Snapshot().Error != "" {
		t.Fatalf("categories should be unaffected")
	}
}
