package state

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"poemhub/internal/logging"
)

// Stores bundles the three client stores.
type Stores struct {
	Poems      *PoemsStore
	Authors    *AuthorsStore
	Categories *CategoriesStore
}

// Service is satisfied by *core.Service.
type Service interface {
	PoemService
	AuthorService
	CategoryService
}

type storesConfig struct {
	logger logging.Logger
}

// StoresOption configures NewStores.
type StoresOption func(*storesConfig)

// WithStoresLogger routes store failure logs to logger.
func WithStoresLogger(logger logging.Logger) StoresOption {
	return func(c *storesConfig) { c.logger = logger }
}

// NewStores wires all three stores to one service.
func NewStores(svc Service, opts ...StoresOption) *Stores {
	var cfg storesConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Stores{
		Poems:      NewPoemsStore(svc, cfg.logger),
		Authors:    NewAuthorsStore(svc, cfg.logger),
		Categories: NewCategoriesStore(svc, cfg.logger),
	}
}

// RefreshAll fetches the three stores concurrently. Each store keeps its own
// error; the returned error only summarizes which fetches failed.
func (s *Stores) RefreshAll(ctx context.Context) error {
	var g errgroup.Group
	fetches := []struct {
		name  string
		fetch func(context.Context) bool
		err   func() string
	}{
		{"poems", s.Poems.Fetch, func() string { return s.Poems.Snapshot().Error }},
		{"authors", s.Authors.Fetch, func() string { return s.Authors.Snapshot().Error }},
		{"categories", s.Categories.Fetch, func() string { return s.Categories.Snapshot().Error }},
	}
	for _, f := range fetches {
		g.Go(func() error {
			if !f.fetch(ctx) {
				return fmt.Errorf("refresh %s: %s", f.name, f.err())
			}
			return nil
		})
	}
	return g.Wait()
}
