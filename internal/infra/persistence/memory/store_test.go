package memory_test

import (
	"context"
	"testing"
	"time"

	"poemhub/internal/infra/persistence/memory"
	"poemhub/internal/infra/persistence/storetest"
	"poemhub/pkg/domain"
)

func TestMemoryStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.PersistentStore {
		return memory.NewStore()
	})
}

func TestMemoryStoreEqualTimestampsKeepInsertionOrder(t *testing.T) {
	store := memory.NewStore()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return fixed })
	ctx := context.Background()

	for _, title := range []string{"first", "second", "third"} {
		storetest.Must(store.InsertPoem(ctx, domain.PoemRecord{Title: title}))(t)
	}
	poems := storetest.Must(store.ListPoems(ctx, domain.PoemQuery{}))(t)
	if len(poems) != 3 || poems[0].Title != "third" || poems[2].Title != "first" {
		t.Fatalf("expected newest-inserted first, got %+v", poems)
	}
}

func TestMemoryStoreExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := memory.NewStore()
	author := storetest.Must(src.InsertAuthor(ctx, domain.AuthorChanges{Name: "孟浩然", Dynasty: "唐"}))(t)
	storetest.Must(src.InsertPoem(ctx, domain.PoemRecord{Title: "春晓", Content: "春眠不觉晓", AuthorID: &author.ID, Dynasty: "唐"}))(t)
	storetest.Must(src.InsertPoem(ctx, domain.PoemRecord{Title: "宿建德江", Content: "移舟泊烟渚", AuthorID: &author.ID, Dynasty: "唐"}))(t)

	dst := memory.NewStore()
	dst.ImportState(src.ExportState())

	poems := storetest.Must(dst.ListPoems(ctx, domain.PoemQuery{}))(t)
	if len(poems) != 2 || poems[0].Title != "宿建德江" {
		t.Fatalf("unexpected imported order: %+v", poems)
	}
	if poems[0].AuthorName() != "孟浩然" {
		t.Fatalf("expected joins to resolve after import, got %+v", poems[0].Author)
	}
	authors := storetest.Must(dst.ListAuthors(ctx))(t)
	if len(authors) != 1 || authors[0].PoemCount != 2 {
		t.Fatalf("expected recomputed counts, got %+v", authors)
	}
}

func TestMemoryStoreRejectsDanglingReferences(t *testing.T) {
	store := memory.NewStore()
	missing := "nope"
	_, err := store.InsertPoem(context.Background(), domain.PoemRecord{Title: "x", AuthorID: &missing})
	if err == nil {
		t.Fatalf("expected error for unknown author reference")
	}
}
