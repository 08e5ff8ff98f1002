package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"poemhub/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	poemListSelect   = "*,authors(name,dynasty),categories(name)"
	poemDetailSelect = "*,authors(*),categories(*)"
	withPoemCount    = "*,poems(count)"
)

// Store talks to the hosted data service. A store built without a URL or key
// is still usable as a value; every call then fails with domain.ErrNotConfigured.
type Store struct {
	baseURL    string
	key        string
	client     *http.Client
	configured bool
}

// NewStore builds a store from cfg.
func NewStore(cfg Config) *Store {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	key := strings.TrimSpace(cfg.Key)
	return &Store{
		baseURL:    base,
		key:        key,
		client:     client,
		configured: base != "" && key != "",
	}
}

// Configured reports whether URL and key were both supplied.
func (s *Store) Configured() bool { return s.configured }

// Close is a no-op; the HTTP client holds no dedicated resources.
func (s *Store) Close() error { return nil }

func eq(v string) string { return "eq." + v }

func poemFilters(q domain.PoemQuery) url.Values {
	v := url.Values{}
	if q.Search != "" {
		pattern := quoteFilterValue(likePattern(q.Search))
		v.Set("or", fmt.Sprintf("(title.ilike.%s,content.ilike.%s)", pattern, pattern))
	}
	if q.Dynasty != "" {
		v.Set("dynasty", eq(q.Dynasty))
	}
	if q.AuthorID != "" {
		v.Set("author_id", eq(q.AuthorID))
	}
	if q.CategoryID != "" {
		v.Set("category_id", eq(q.CategoryID))
	}
	return v
}

func (s *Store) selectPoems(ctx context.Context, query url.Values) ([]domain.Poem, error) {
	res, err := s.do(ctx, request{method: http.MethodGet, table: domain.TablePoems, query: query})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[poemRow](res, domain.TablePoems)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Poem, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.poem())
	}
	return out, nil
}

// ListPoems returns poems with author name/dynasty and category name, newest first.
func (s *Store) ListPoems(ctx context.Context, q domain.PoemQuery) ([]domain.Poem, error) {
	query := poemFilters(q)
	query.Set("select", poemListSelect)
	query.Set("order", "created_at.desc")
	return s.selectPoems(ctx, query)
}

// CountPoems asks the service for an exact count of matching poems.
func (s *Store) CountPoems(ctx context.Context, q domain.PoemQuery) (int, error) {
	query := poemFilters(q)
	query.Set("select", "id")
	query.Set("limit", "1")
	res, err := s.do(ctx, request{method: http.MethodGet, table: domain.TablePoems, query: query, count: true})
	if err != nil {
		return 0, err
	}
	return totalFromContentRange(res.contentRange)
}

// GetPoem returns one poem with full author and category records.
func (s *Store) GetPoem(ctx context.Context, id string) (domain.Poem, error) {
	query := url.Values{}
	query.Set("select", poemDetailSelect)
	query.Set("id", eq(id))
	poems, err := s.selectPoems(ctx, query)
	if err != nil {
		return domain.Poem{}, err
	}
	if len(poems) == 0 {
		return domain.Poem{}, domain.NotFoundError{Entity: domain.EntityPoem, ID: id}
	}
	return poems[0], nil
}

type poemInsert struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	AuthorID   *string  `json:"author_id"`
	CategoryID *string  `json:"category_id"`
	Dynasty    string   `json:"dynasty"`
	Tags       []string `json:"tags"`
}

// InsertPoem creates a poem and returns the stored row.
func (s *Store) InsertPoem(ctx context.Context, rec domain.PoemRecord) (domain.Poem, error) {
	body := []poemInsert{{
		Title:      rec.Title,
		Content:    rec.Content,
		AuthorID:   rec.AuthorID,
		CategoryID: rec.CategoryID,
		Dynasty:    rec.Dynasty,
		Tags:       domain.NormalizeTags(rec.Tags),
	}}
	rows, err := writeRows[poemRow](ctx, s, http.MethodPost, domain.TablePoems, "", body)
	if err != nil {
		return domain.Poem{}, err
	}
	if len(rows) == 0 {
		return domain.Poem{}, fmt.Errorf("insert poem: service returned no row")
	}
	return rows[0].poem(), nil
}

type poemPatch struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	CategoryID *string  `json:"category_id"`
	Dynasty    string   `json:"dynasty"`
	Tags       []string `json:"tags"`
	UpdatedAt  string   `json:"updated_at"`
}

// UpdatePoem patches a poem and returns the stored row.
func (s *Store) UpdatePoem(ctx context.Context, id string, changes domain.PoemChanges) (domain.Poem, error) {
	updatedAt := changes.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	body := poemPatch{
		Title:      changes.Title,
		Content:    changes.Content,
		CategoryID: changes.CategoryID,
		Dynasty:    changes.Dynasty,
		Tags:       domain.NormalizeTags(changes.Tags),
		UpdatedAt:  updatedAt.UTC().Format(time.RFC3339Nano),
	}
	rows, err := writeRows[poemRow](ctx, s, http.MethodPatch, domain.TablePoems, id, body)
	if err != nil {
		return domain.Poem{}, err
	}
	if len(rows) == 0 {
		return domain.Poem{}, domain.NotFoundError{Entity: domain.EntityPoem, ID: id}
	}
	return rows[0].poem(), nil
}

// DeletePoem removes a poem.
func (s *Store) DeletePoem(ctx context.Context, id string) error {
	return s.deleteRow(ctx, domain.TablePoems, domain.EntityPoem, id)
}

// ListAuthors returns every author with its poem count, ordered by name.
func (s *Store) ListAuthors(ctx context.Context) ([]domain.Author, error) {
	query := url.Values{}
	query.Set("select", withPoemCount)
	query.Set("order", "name.asc")
	return s.selectAuthors(ctx, query)
}

func (s *Store) selectAuthors(ctx context.Context, query url.Values) ([]domain.Author, error) {
	res, err := s.do(ctx, request{method: http.MethodGet, table: domain.TableAuthors, query: query})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[authorRow](res, domain.TableAuthors)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Author, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.author())
	}
	return out, nil
}

// GetAuthor returns one author.
func (s *Store) GetAuthor(ctx context.Context, id string) (domain.Author, error) {
	query := url.Values{}
	query.Set("select", withPoemCount)
	query.Set("id", eq(id))
	authors, err := s.selectAuthors(ctx, query)
	if err != nil {
		return domain.Author{}, err
	}
	if len(authors) == 0 {
		return domain.Author{}, domain.NotFoundError{Entity: domain.EntityAuthor, ID: id}
	}
	return authors[0], nil
}

// FindAuthorByName returns the earliest author with exactly this name.
func (s *Store) FindAuthorByName(ctx context.Context, name string) (domain.Author, bool, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("name", eq(name))
	query.Set("order", "created_at.asc")
	query.Set("limit", "1")
	authors, err := s.selectAuthors(ctx, query)
	if err != nil {
		return domain.Author{}, false, err
	}
	if len(authors) == 0 {
		return domain.Author{}, false, nil
	}
	return authors[0], true, nil
}

// InsertAuthor creates an author.
func (s *Store) InsertAuthor(ctx context.Context, changes domain.AuthorChanges) (domain.Author, error) {
	changes.Name = strings.TrimSpace(changes.Name)
	rows, err := writeRows[authorRow](ctx, s, http.MethodPost, domain.TableAuthors, "", []domain.AuthorChanges{changes})
	if err != nil {
		return domain.Author{}, err
	}
	if len(rows) == 0 {
		return domain.Author{}, fmt.Errorf("insert author: service returned no row")
	}
	return rows[0].author(), nil
}

// UpdateAuthor patches an author.
func (s *Store) UpdateAuthor(ctx context.Context, id string, changes domain.AuthorChanges) (domain.Author, error) {
	changes.Name = strings.TrimSpace(changes.Name)
	rows, err := writeRows[authorRow](ctx, s, http.MethodPatch, domain.TableAuthors, id, changes)
	if err != nil {
		return domain.Author{}, err
	}
	if len(rows) == 0 {
		return domain.Author{}, domain.NotFoundError{Entity: domain.EntityAuthor, ID: id}
	}
	return rows[0].author(), nil
}

// DeleteAuthor removes an author.
func (s *Store) DeleteAuthor(ctx context.Context, id string) error {
	return s.deleteRow(ctx, domain.TableAuthors, domain.EntityAuthor, id)
}

// ListCategories returns every category with its poem count, ordered by name.
func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	query := url.Values{}
	query.Set("select", withPoemCount)
	query.Set("order", "name.asc")
	return s.selectCategories(ctx, query)
}

func (s *Store) selectCategories(ctx context.Context, query url.Values) ([]domain.Category, error) {
	res, err := s.do(ctx, request{method: http.MethodGet, table: domain.TableCategories, query: query})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[categoryRow](res, domain.TableCategories)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Category, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.category())
	}
	return out, nil
}

// GetCategory returns one category.
func (s *Store) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	query := url.Values{}
	query.Set("select", withPoemCount)
	query.Set("id", eq(id))
	categories, err := s.selectCategories(ctx, query)
	if err != nil {
		return domain.Category{}, err
	}
	if len(categories) == 0 {
		return domain.Category{}, domain.NotFoundError{Entity: domain.EntityCategory, ID: id}
	}
	return categories[0], nil
}

// InsertCategory creates a category.
func (s *Store) InsertCategory(ctx context.Context, changes domain.CategoryChanges) (domain.Category, error) {
	changes.Name = strings.TrimSpace(changes.Name)
	rows, err := writeRows[categoryRow](ctx, s, http.MethodPost, domain.TableCategories, "", []domain.CategoryChanges{changes})
	if err != nil {
		return domain.Category{}, err
	}
	if len(rows) == 0 {
		return domain.Category{}, fmt.Errorf("insert category: service returned no row")
	}
	return rows[0].category(), nil
}

// UpdateCategory patches a category.
func (s *Store) UpdateCategory(ctx context.Context, id string, changes domain.CategoryChanges) (domain.Category, error) {
	changes.Name = strings.TrimSpace(changes.Name)
	rows, err := writeRows[categoryRow](ctx, s, http.MethodPatch, domain.TableCategories, id, changes)
	if err != nil {
		return domain.Category{}, err
	}
	if len(rows) == 0 {
		return domain.Category{}, domain.NotFoundError{Entity: domain.EntityCategory, ID: id}
	}
	return rows[0].category(), nil
}

// DeleteCategory removes a category.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	return s.deleteRow(ctx, domain.TableCategories, domain.EntityCategory, id)
}

func (s *Store) deleteRow(ctx context.Context, table string, entity domain.EntityType, id string) error {
	query := url.Values{}
	query.Set("id", eq(id))
	query.Set("select", "id")
	res, err := s.do(ctx, request{method: http.MethodDelete, table: table, query: query, represent: true})
	if err != nil {
		return err
	}
	rows, err := decodeRows[struct {
		ID flexID `json:"id"`
	}](res, table)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return domain.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}

// writeRows issues an insert (empty id) or an id-scoped patch and decodes the
// echoed rows.
func writeRows[T any](ctx context.Context, s *Store, method, table, id string, body any) ([]T, error) {
	query := url.Values{}
	query.Set("select", "*")
	if id != "" {
		query.Set("id", eq(id))
	}
	res, err := s.do(ctx, request{method: method, table: table, query: query, body: body, represent: true})
	if err != nil {
		return nil, err
	}
	return decodeRows[T](res, table)
}
