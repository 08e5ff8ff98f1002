package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"poemhub/internal/blob/core"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New()
	stamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return stamp })

	meta := map[string]string{"poems": "3"}
	info, err := store.Put(ctx, "exports/poems.json", bytes.NewReader([]byte(`[]`)), core.PutOptions{ContentType: "application/json", Metadata: meta})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	meta["poems"] = "mutated"
	want := core.Info{
		Key:          "exports/poems.json",
		Size:         2,
		ContentType:  "application/json",
		ETag:         "d751713988987e9331980363e24189ce",
		Metadata:     map[string]string{"poems": "3"},
		LastModified: stamp,
	}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Fatalf("info mismatch (-want +got):\n%s", diff)
	}

	got, rc, err := store.Get(ctx, "exports/poems.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "[]" || got.Metadata["poems"] != "3" {
		t.Fatalf("unexpected get %q %+v", body, got)
	}
}

func TestStoreCreateOnlyAndMissing(t *testing.T) {
	ctx := context.Background()
	store := New()
	if _, err := store.Put(ctx, "a", bytes.NewReader(nil), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "a", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := store.Put(ctx, " ", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if _, _, err := store.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if ok, _ := store.Delete(ctx, "a"); !ok {
		t.Fatalf("expected delete to report existing key")
	}
	if ok, _ := store.Delete(ctx, "a"); ok {
		t.Fatalf("expected second delete to report missing key")
	}
	if _, err := store.PresignURL(ctx, "a", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestStoreListPrefix(t *testing.T) {
	ctx := context.Background()
	store := New()
	for _, key := range []string{"exports/b.csv", "exports/a.json", "other/c"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte(key)), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	list, err := store.List(ctx, "exports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var keys []string
	for _, info := range list {
		keys = append(keys, info.Key)
	}
	if diff := cmp.Diff([]string{"exports/a.json", "exports/b.csv"}, keys); diff != "" {
		t.Fatalf("list mismatch (-want +got):\n%s", diff)
	}
}
