// Package memory provides an in-memory implementation of the poem persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"poemhub/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type memoryState struct {
	poems      map[string]domain.Poem
	authors    map[string]domain.Author
	categories map[string]domain.Category
	// seq preserves insertion order for stable ordering of equal timestamps.
	seq map[string]uint64
}

func newMemoryState() memoryState {
	return memoryState{
		poems:      make(map[string]domain.Poem),
		authors:    make(map[string]domain.Author),
		categories: make(map[string]domain.Category),
		seq:        make(map[string]uint64),
	}
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Poems      []domain.Poem     `json:"poems"`
	Authors    []domain.Author   `json:"authors"`
	Categories []domain.Category `json:"categories"`
}

// Store keeps all rows in process memory. It enforces the same constraints the
// SQL schema does: unique author names and references that block deletes.
type Store struct {
	mu      sync.RWMutex
	state   memoryState
	counter uint64
	nowFn   func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: newMemoryState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock used to stamp created_at.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

func (s *Store) stamp(id string) {
	s.counter++
	s.state.seq[id] = s.counter
}

// ExportState clones the current store state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Poems:      make([]domain.Poem, 0, len(s.state.poems)),
		Authors:    make([]domain.Author, 0, len(s.state.authors)),
		Categories: make([]domain.Category, 0, len(s.state.categories)),
	}
	for _, p := range s.state.poems {
		snap.Poems = append(snap.Poems, clonePoem(p))
	}
	for _, a := range s.state.authors {
		snap.Authors = append(snap.Authors, a)
	}
	for _, c := range s.state.categories {
		snap.Categories = append(snap.Categories, c)
	}
	s.sortPoems(snap.Poems)
	sort.SliceStable(snap.Authors, func(i, j int) bool { return snap.Authors[i].Name < snap.Authors[j].Name })
	sort.SliceStable(snap.Categories, func(i, j int) bool { return snap.Categories[i].Name < snap.Categories[j].Name })
	return snap
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = newMemoryState()
	for _, a := range snapshot.Authors {
		a.PoemCount = 0
		s.state.authors[a.ID] = a
		s.stamp(a.ID)
	}
	for _, c := range snapshot.Categories {
		c.PoemCount = 0
		s.state.categories[c.ID] = c
		s.stamp(c.ID)
	}
	// Imported poems arrive newest first; stamp oldest first so ties keep that order.
	for i := len(snapshot.Poems) - 1; i >= 0; i-- {
		p := clonePoem(snapshot.Poems[i])
		p.Author, p.Category = nil, nil
		s.state.poems[p.ID] = p
		s.stamp(p.ID)
	}
}

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

func clonePoem(p domain.Poem) domain.Poem {
	if p.Tags != nil {
		p.Tags = append([]string(nil), p.Tags...)
	}
	if p.AuthorID != nil {
		id := *p.AuthorID
		p.AuthorID = &id
	}
	if p.CategoryID != nil {
		id := *p.CategoryID
		p.CategoryID = &id
	}
	if p.Author != nil {
		a := *p.Author
		p.Author = &a
	}
	if p.Category != nil {
		c := *p.Category
		p.Category = &c
	}
	return p
}

// sortPoems orders newest first; equal timestamps fall back to insertion order.
func (s *Store) sortPoems(poems []domain.Poem) {
	sort.SliceStable(poems, func(i, j int) bool {
		if !poems[i].CreatedAt.Equal(poems[j].CreatedAt) {
			return poems[i].CreatedAt.After(poems[j].CreatedAt)
		}
		return s.state.seq[poems[i].ID] > s.state.seq[poems[j].ID]
	})
}

// decoratePoem attaches joined author/category records. full selects the
// detail shape (whole records) over the listing shape (names only).
func (s *Store) decoratePoem(p domain.Poem, full bool) domain.Poem {
	p = clonePoem(p)
	if p.AuthorID != nil {
		if a, ok := s.state.authors[*p.AuthorID]; ok {
			if full {
				p.Author = &a
			} else {
				p.Author = &domain.Author{Name: a.Name, Dynasty: a.Dynasty}
			}
		}
	}
	if p.CategoryID != nil {
		if c, ok := s.state.categories[*p.CategoryID]; ok {
			if full {
				p.Category = &c
			} else {
				p.Category = &domain.Category{Name: c.Name}
			}
		}
	}
	return p
}

func (s *Store) checkReferences(authorID, categoryID *string) error {
	if authorID != nil {
		if _, ok := s.state.authors[*authorID]; !ok {
			return fmt.Errorf("author %q: %w", *authorID, domain.ErrReferenced)
		}
	}
	if categoryID != nil {
		if _, ok := s.state.categories[*categoryID]; !ok {
			return fmt.Errorf("category %q: %w", *categoryID, domain.ErrReferenced)
		}
	}
	return nil
}

func (s *Store) countPoems(q domain.PoemQuery) int {
	n := 0
	for _, p := range s.state.poems {
		if q.Matches(p) {
			n++
		}
	}
	return n
}

// ListPoems returns joined poems matching q, newest first.
func (s *Store) ListPoems(_ context.Context, q domain.PoemQuery) ([]domain.Poem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Poem, 0, len(s.state.poems))
	for _, p := range s.state.poems {
		if q.Matches(p) {
			out = append(out, s.decoratePoem(p, false))
		}
	}
	s.sortPoems(out)
	return out, nil
}

// CountPoems reports how many poems match q.
func (s *Store) CountPoems(_ context.Context, q domain.PoemQuery) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countPoems(q), nil
}

// GetPoem returns one poem with expanded author and category.
func (s *Store) GetPoem(_ context.Context, id string) (domain.Poem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.poems[id]
	if !ok {
		return domain.Poem{}, domain.NotFoundError{Entity: domain.EntityPoem, ID: id}
	}
	return s.decoratePoem(p, true), nil
}

// InsertPoem stores a new poem row.
func (s *Store) InsertPoem(_ context.Context, rec domain.PoemRecord) (domain.Poem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkReferences(rec.AuthorID, rec.CategoryID); err != nil {
		return domain.Poem{}, err
	}
	now := s.nowFn()
	p := clonePoem(domain.Poem{
		Base:       domain.Base{ID: s.newID(), CreatedAt: now},
		UpdatedAt:  now,
		Title:      rec.Title,
		Content:    rec.Content,
		Dynasty:    rec.Dynasty,
		Tags:       domain.NormalizeTags(rec.Tags),
		AuthorID:   rec.AuthorID,
		CategoryID: rec.CategoryID,
	})
	s.state.poems[p.ID] = p
	s.stamp(p.ID)
	return clonePoem(p), nil
}

// UpdatePoem replaces the mutable columns of a poem.
func (s *Store) UpdatePoem(_ context.Context, id string, changes domain.PoemChanges) (domain.Poem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.state.poems[id]
	if !ok {
		return domain.Poem{}, domain.NotFoundError{Entity: domain.EntityPoem, ID: id}
	}
	if err := s.checkReferences(nil, changes.CategoryID); err != nil {
		return domain.Poem{}, err
	}
	current.Title = changes.Title
	current.Content = changes.Content
	current.CategoryID = changes.CategoryID
	current.Dynasty = changes.Dynasty
	current.Tags = domain.NormalizeTags(changes.Tags)
	current.UpdatedAt = changes.UpdatedAt
	if current.UpdatedAt.IsZero() {
		current.UpdatedAt = s.nowFn()
	}
	current = clonePoem(current)
	s.state.poems[id] = current
	return clonePoem(current), nil
}

// DeletePoem removes a poem.
func (s *Store) DeletePoem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.poems[id]; !ok {
		return domain.NotFoundError{Entity: domain.EntityPoem, ID: id}
	}
	delete(s.state.poems, id)
	delete(s.state.seq, id)
	return nil
}

func (s *Store) authorWithCount(a domain.Author) domain.Author {
	a.PoemCount = s.countPoems(domain.PoemQuery{AuthorID: a.ID})
	return a
}

// ListAuthors returns all authors ordered by name.
func (s *Store) ListAuthors(_ context.Context) ([]domain.Author, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Author, 0, len(s.state.authors))
	for _, a := range s.state.authors {
		out = append(out, s.authorWithCount(a))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return s.state.seq[out[i].ID] < s.state.seq[out[j].ID]
	})
	return out, nil
}

// GetAuthor returns one author.
func (s *Store) GetAuthor(_ context.Context, id string) (domain.Author, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.authors[id]
	if !ok {
		return domain.Author{}, domain.NotFoundError{Entity: domain.EntityAuthor, ID: id}
	}
	return a, nil
}

// FindAuthorByName looks an author up by exact name.
func (s *Store) FindAuthorByName(_ context.Context, name string) (domain.Author, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.state.authors {
		if a.Name == name {
			return a, true, nil
		}
	}
	return domain.Author{}, false, nil
}

func (s *Store) authorNameTaken(name, exceptID string) bool {
	for id, a := range s.state.authors {
		if id != exceptID && a.Name == name {
			return true
		}
	}
	return false
}

// InsertAuthor stores a new author; names are unique.
func (s *Store) InsertAuthor(_ context.Context, changes domain.AuthorChanges) (domain.Author, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := strings.TrimSpace(changes.Name)
	if s.authorNameTaken(name, "") {
		return domain.Author{}, fmt.Errorf("author name %q: %w", name, domain.ErrConflict)
	}
	a := domain.Author{
		Base:    domain.Base{ID: s.newID(), CreatedAt: s.nowFn()},
		Name:    name,
		Dynasty: changes.Dynasty,
	}
	s.state.authors[a.ID] = a
	s.stamp(a.ID)
	return a, nil
}

// UpdateAuthor replaces an author's name and dynasty.
func (s *Store) UpdateAuthor(_ context.Context, id string, changes domain.AuthorChanges) (domain.Author, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.state.authors[id]
	if !ok {
		return domain.Author{}, domain.NotFoundError{Entity: domain.EntityAuthor, ID: id}
	}
	name := strings.TrimSpace(changes.Name)
	if s.authorNameTaken(name, id) {
		return domain.Author{}, fmt.Errorf("author name %q: %w", name, domain.ErrConflict)
	}
	current.Name = name
	current.Dynasty = changes.Dynasty
	s.state.authors[id] = current
	return s.authorWithCount(current), nil
}

// DeleteAuthor removes an author that no poem references.
func (s *Store) DeleteAuthor(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.authors[id]; !ok {
		return domain.NotFoundError{Entity: domain.EntityAuthor, ID: id}
	}
	for _, p := range s.state.poems {
		if p.AuthorID != nil && *p.AuthorID == id {
			return fmt.Errorf("author %q still referenced by poem %q: %w", id, p.ID, domain.ErrReferenced)
		}
	}
	delete(s.state.authors, id)
	delete(s.state.seq, id)
	return nil
}

func (s *Store) categoryWithCount(c domain.Category) domain.Category {
	c.PoemCount = s.countPoems(domain.PoemQuery{CategoryID: c.ID})
	return c
}

// ListCategories returns all categories ordered by name.
func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Category, 0, len(s.state.categories))
	for _, c := range s.state.categories {
		out = append(out, s.categoryWithCount(c))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return s.state.seq[out[i].ID] < s.state.seq[out[j].ID]
	})
	return out, nil
}

// GetCategory returns one category.
func (s *Store) GetCategory(_ context.Context, id string) (domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.categories[id]
	if !ok {
		return domain.Category{}, domain.NotFoundError{Entity: domain.EntityCategory, ID: id}
	}
	return c, nil
}

// InsertCategory stores a new category.
func (s *Store) InsertCategory(_ context.Context, changes domain.CategoryChanges) (domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := domain.Category{
		Base:        domain.Base{ID: s.newID(), CreatedAt: s.nowFn()},
		Name:        strings.TrimSpace(changes.Name),
		Description: changes.Description,
	}
	s.state.categories[c.ID] = c
	s.stamp(c.ID)
	return c, nil
}

// UpdateCategory replaces a category's columns.
func (s *Store) UpdateCategory(_ context.Context, id string, changes domain.CategoryChanges) (domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.state.categories[id]
	if !ok {
		return domain.Category{}, domain.NotFoundError{Entity: domain.EntityCategory, ID: id}
	}
	current.Name = strings.TrimSpace(changes.Name)
	current.Description = changes.Description
	s.state.categories[id] = current
	return s.categoryWithCount(current), nil
}

// DeleteCategory removes a category that no poem references.
func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.categories[id]; !ok {
		return domain.NotFoundError{Entity: domain.EntityCategory, ID: id}
	}
	for _, p := range s.state.poems {
		if p.CategoryID != nil && *p.CategoryID == id {
			return fmt.Errorf("category %q still referenced by poem %q: %w", id, p.ID, domain.ErrReferenced)
		}
	}
	delete(s.state.categories, id)
	delete(s.state.seq, id)
	return nil
}
