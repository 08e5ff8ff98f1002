// Package state holds the client-side stores: per-entity caches that mirror
// the data service, track loading and error flags, and derive filtered views.
//
// Store actions never return errors. They report success as a bool and record
// the failure message in the snapshot so views can inspect a flag. Actions are
// not serialized against each other; the mutex only guards memory.
package state

import (
	"sync"

	"poemhub/internal/logging"
)

// Snapshot is a point-in-time copy of one store. Error and stale Items may
// coexist after a failed action.
type Snapshot[T any] struct {
	Items   []T    `json:"items"`
	Query   string `json:"query,omitempty"`
	Dynasty string `json:"dynasty,omitempty"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

type collection[T any] struct {
	mu     sync.RWMutex
	snap   Snapshot[T]
	err    error
	logger logging.Logger
	name   string
}

func newCollection[T any](name string, logger logging.Logger) collection[T] {
	if logger == nil {
		logger = logging.Nop()
	}
	return collection[T]{name: name, logger: logger, snap: Snapshot[T]{Items: []T{}}}
}

// Snapshot returns a copy of the store state.
func (c *collection[T]) Snapshot() Snapshot[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := c.snap
	out.Items = append(make([]T, 0, len(c.snap.Items)), c.snap.Items...)
	return out
}

// Total returns the number of held items.
func (c *collection[T]) Total() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snap.Items)
}

// LastErr returns the error recorded by the most recent failed action, or nil
// once another action has started.
func (c *collection[T]) LastErr() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

func (c *collection[T]) items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append(make([]T, 0, len(c.snap.Items)), c.snap.Items...)
}

func (c *collection[T]) begin() {
	c.mu.Lock()
	c.snap.Loading = true
	c.snap.Error = ""
	c.err = nil
	c.mu.Unlock()
}

// fail records err and leaves Items untouched.
func (c *collection[T]) fail(action string, err error) bool {
	c.mu.Lock()
	c.snap.Loading = false
	c.snap.Error = err.Error()
	c.err = err
	c.mu.Unlock()
	c.logger.Warn("store action failed", "store", c.name, "action", action, "error", err)
	return false
}

func (c *collection[T]) succeed(mutate func(items []T) []T) bool {
	c.mu.Lock()
	if mutate != nil {
		c.snap.Items = mutate(c.snap.Items)
	}
	c.snap.Loading = false
	c.mu.Unlock()
	return true
}

func (c *collection[T]) replace(items []T) bool {
	if items == nil {
		items = []T{}
	}
	return c.succeed(func([]T) []T { return items })
}

func removeWhere[T any](items []T, match func(T) bool) []T {
	out := items[:0:0]
	for _, item := range items {
		if !match(item) {
			out = append(out, item)
		}
	}
	return out
}
