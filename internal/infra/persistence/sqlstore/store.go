// Package sqlstore implements domain.PersistentStore on top of database/sql.
// The postgres and sqlite packages supply a Dialect and own the connection.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"poemhub/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// Dialect captures the differences between SQL engines.
type Dialect interface {
	// Name identifies the engine in errors and logs.
	Name() string
	// Schema returns idempotent DDL statements applied on open.
	Schema() []string
	// Rebind rewrites '?' placeholders into the engine's native style.
	Rebind(query string) string
	// TimeArg encodes a timestamp as a query argument.
	TimeArg(t time.Time) any
	// Classify wraps constraint failures with domain.ErrConflict or
	// domain.ErrReferenced and returns other errors unchanged.
	Classify(err error) error
}

// Store persists poems, authors and categories in three normalized tables.
type Store struct {
	db      *sql.DB
	dialect Dialect

	mu    sync.Mutex
	last  time.Time
	nowFn func() time.Time
}

// New wraps an open database. Call Migrate before first use.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		nowFn:   func() time.Time { return time.Now().UTC() },
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

// Migrate applies the dialect schema.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema() {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: execute ddl: %w", s.dialect.Name(), err)
		}
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// stamp returns a strictly increasing timestamp at microsecond precision so
// created_at ordering matches insertion order.
func (s *Store) stamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn().UTC().Truncate(time.Microsecond)
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now
}

func (s *Store) now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nowFn()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, s.dialect.Classify(err)
	}
	return res, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, s.dialect.Classify(err)
	}
	return rows, nil
}

func mustAffect(res sql.Result, entity domain.EntityType, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}

const poemSelect = `SELECT p.id, p.title, p.content, p.dynasty, p.tags, p.author_id, p.category_id, p.created_at, p.updated_at,
	a.id, a.name, a.dynasty, a.created_at,
	c.id, c.name, c.description, c.created_at
FROM poems p
LEFT JOIN authors a ON a.id = p.author_id
LEFT JOIN categories c ON c.id = p.category_id`

const poemOrder = ` ORDER BY p.created_at DESC, p.id DESC`

// escapeLike escapes LIKE metacharacters so user input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func poemWhere(q domain.PoemQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if q.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(q.Search)) + "%"
		conds = append(conds, `(LOWER(p.title) LIKE ? ESCAPE '\' OR LOWER(p.content) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if q.Dynasty != "" {
		conds = append(conds, "p.dynasty = ?")
		args = append(args, q.Dynasty)
	}
	if q.AuthorID != "" {
		conds = append(conds, "p.author_id = ?")
		args = append(args, q.AuthorID)
	}
	if q.CategoryID != "" {
		conds = append(conds, "p.category_id = ?")
		args = append(args, q.CategoryID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type poemRow struct {
	id, title, content, dynasty string
	tags                        tagsValue
	authorID, categoryID        sql.NullString
	createdAt, updatedAt        timeValue

	aID, aName, aDynasty sql.NullString
	aCreated             timeValue
	cID, cName, cDesc    sql.NullString
	cCreated             timeValue
}

func (r *poemRow) targets() []any {
	return []any{
		&r.id, &r.title, &r.content, &r.dynasty, &r.tags, &r.authorID, &r.categoryID, &r.createdAt, &r.updatedAt,
		&r.aID, &r.aName, &r.aDynasty, &r.aCreated,
		&r.cID, &r.cName, &r.cDesc, &r.cCreated,
	}
}

// poem converts the row. full selects the detail shape over the listing shape.
func (r *poemRow) poem(full bool) domain.Poem {
	p := domain.Poem{
		Base:      domain.Base{ID: r.id, CreatedAt: r.createdAt.Time},
		UpdatedAt: r.updatedAt.Time,
		Title:     r.title,
		Content:   r.content,
		Dynasty:   r.dynasty,
		Tags:      r.tags.Tags(),
	}
	if r.authorID.Valid {
		id := r.authorID.String
		p.AuthorID = &id
	}
	if r.categoryID.Valid {
		id := r.categoryID.String
		p.CategoryID = &id
	}
	if r.aID.Valid {
		a := domain.Author{Name: r.aName.String, Dynasty: r.aDynasty.String}
		if full {
			a.Base = domain.Base{ID: r.aID.String, CreatedAt: r.aCreated.Time}
		}
		p.Author = &a
	}
	if r.cID.Valid {
		c := domain.Category{Name: r.cName.String}
		if full {
			c.Base = domain.Base{ID: r.cID.String, CreatedAt: r.cCreated.Time}
			c.Description = r.cDesc.String
		}
		p.Category = &c
	}
	return p
}

func (s *Store) scanPoems(ctx context.Context, full bool, query string, args ...any) ([]domain.Poem, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select poems: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]domain.Poem, 0)
	for rows.Next() {
		var r poemRow
		if err := rows.Scan(r.targets()...); err != nil {
			return nil, fmt.Errorf("scan poem: %w", err)
		}
		out = append(out, r.poem(full))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate poems: %w", err)
	}
	return out, nil
}

// ListPoems returns joined poems matching q, newest first.
func (s *Store) ListPoems(ctx context.Context, q domain.PoemQuery) ([]domain.Poem, error) {
	where, args := poemWhere(q)
	return s.scanPoems(ctx, false, poemSelect+where+poemOrder, args...)
}

// CountPoems reports how many poems match q.
func (s *Store) CountPoems(ctx context.Context, q domain.PoemQuery) (int, error) {
	where, args := poemWhere(q)
	var n int
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind("SELECT COUNT(*) FROM poems p"+where), args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count poems: %w", s.dialect.Classify(err))
	}
	return n, nil
}

// GetPoem returns one poem with expanded author and category.
func (s *Store) GetPoem(ctx context.Context, id string) (domain.Poem, error) {
	poems, err := s.scanPoems(ctx, true, poemSelect+" WHERE p.id = ?", id)
	if err != nil {
		return domain.Poem{}, err
	}
	if len(poems) == 0 {
		return domain.Poem{}, domain.NotFoundError{Entity: domain.EntityPoem, ID: id}
	}
	return poems[0], nil
}

func nullable(id *string) any {
	if id == nil {
		return nil
	}
	return *id
}

// InsertPoem stores a new poem row and returns it without joins.
func (s *Store) InsertPoem(ctx context.Context, rec domain.PoemRecord) (domain.Poem, error) {
	tags := domain.NormalizeTags(rec.Tags)
	encoded, err := encodeTags(tags)
	if err != nil {
		return domain.Poem{}, err
	}
	now := s.stamp()
	p := domain.Poem{
		Base:       domain.Base{ID: uuid.NewString(), CreatedAt: now},
		UpdatedAt:  now,
		Title:      rec.Title,
		Content:    rec.Content,
		Dynasty:    rec.Dynasty,
		Tags:       tags,
		AuthorID:   rec.AuthorID,
		CategoryID: rec.CategoryID,
	}
	_, err = s.exec(ctx,
		`INSERT INTO poems (id, title, content, dynasty, tags, author_id, category_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Content, p.Dynasty, encoded, nullable(p.AuthorID), nullable(p.CategoryID),
		s.dialect.TimeArg(now), s.dialect.TimeArg(now))
	if err != nil {
		return domain.Poem{}, fmt.Errorf("insert poem: %w", err)
	}
	return p, nil
}

// UpdatePoem replaces the mutable columns of a poem and returns the row without joins.
func (s *Store) UpdatePoem(ctx context.Context, id string, changes domain.PoemChanges) (domain.Poem, error) {
	encoded, err := encodeTags(domain.NormalizeTags(changes.Tags))
	if err != nil {
		return domain.Poem{}, err
	}
	updatedAt := changes.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}
	res, err := s.exec(ctx,
		`UPDATE poems SET title = ?, content = ?, category_id = ?, dynasty = ?, tags = ?, updated_at = ? WHERE id = ?`,
		changes.Title, changes.Content, nullable(changes.CategoryID), changes.Dynasty, encoded,
		s.dialect.TimeArg(updatedAt.UTC().Truncate(time.Microsecond)), id)
	if err != nil {
		return domain.Poem{}, fmt.Errorf("update poem: %w", err)
	}
	if err := mustAffect(res, domain.EntityPoem, id); err != nil {
		return domain.Poem{}, err
	}
	p, err := s.GetPoem(ctx, id)
	if err != nil {
		return domain.Poem{}, err
	}
	p.Author, p.Category = nil, nil
	return p, nil
}

// DeletePoem removes a poem.
func (s *Store) DeletePoem(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM poems WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete poem: %w", err)
	}
	return mustAffect(res, domain.EntityPoem, id)
}

const authorSelect = `SELECT a.id, a.name, a.dynasty, a.created_at,
	(SELECT COUNT(*) FROM poems p WHERE p.author_id = a.id)
FROM authors a`

func (s *Store) scanAuthors(ctx context.Context, query string, args ...any) ([]domain.Author, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select authors: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]domain.Author, 0)
	for rows.Next() {
		var (
			a       domain.Author
			created timeValue
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.Dynasty, &created, &a.PoemCount); err != nil {
			return nil, fmt.Errorf("scan author: %w", err)
		}
		a.CreatedAt = created.Time
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate authors: %w", err)
	}
	return out, nil
}

// ListAuthors returns all authors ordered by name.
func (s *Store) ListAuthors(ctx context.Context) ([]domain.Author, error) {
	return s.scanAuthors(ctx, authorSelect+` ORDER BY a.name, a.created_at`)
}

// GetAuthor returns one author.
func (s *Store) GetAuthor(ctx context.Context, id string) (domain.Author, error) {
	authors, err := s.scanAuthors(ctx, authorSelect+` WHERE a.id = ?`, id)
	if err != nil {
		return domain.Author{}, err
	}
	if len(authors) == 0 {
		return domain.Author{}, domain.NotFoundError{Entity: domain.EntityAuthor, ID: id}
	}
	return authors[0], nil
}

// FindAuthorByName looks an author up by exact name.
func (s *Store) FindAuthorByName(ctx context.Context, name string) (domain.Author, bool, error) {
	authors, err := s.scanAuthors(ctx, authorSelect+` WHERE a.name = ? ORDER BY a.created_at LIMIT 1`, name)
	if err != nil {
		return domain.Author{}, false, err
	}
	if len(authors) == 0 {
		return domain.Author{}, false, nil
	}
	return authors[0], true, nil
}

// InsertAuthor stores a new author; duplicate names yield domain.ErrConflict.
func (s *Store) InsertAuthor(ctx context.Context, changes domain.AuthorChanges) (domain.Author, error) {
	now := s.stamp()
	a := domain.Author{
		Base:    domain.Base{ID: uuid.NewString(), CreatedAt: now},
		Name:    strings.TrimSpace(changes.Name),
		Dynasty: changes.Dynasty,
	}
	if _, err := s.exec(ctx, `INSERT INTO authors (id, name, dynasty, created_at) VALUES (?, ?, ?, ?)`,
		a.ID, a.Name, a.Dynasty, s.dialect.TimeArg(now)); err != nil {
		return domain.Author{}, fmt.Errorf("insert author: %w", err)
	}
	return a, nil
}

// UpdateAuthor replaces an author's name and dynasty.
func (s *Store) UpdateAuthor(ctx context.Context, id string, changes domain.AuthorChanges) (domain.Author, error) {
	res, err := s.exec(ctx, `UPDATE authors SET name = ?, dynasty = ? WHERE id = ?`,
		strings.TrimSpace(changes.Name), changes.Dynasty, id)
	if err != nil {
		return domain.Author{}, fmt.Errorf("update author: %w", err)
	}
	if err := mustAffect(res, domain.EntityAuthor, id); err != nil {
		return domain.Author{}, err
	}
	return s.GetAuthor(ctx, id)
}

// DeleteAuthor removes an author; the foreign key rejects referenced rows.
func (s *Store) DeleteAuthor(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM authors WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete author: %w", err)
	}
	return mustAffect(res, domain.EntityAuthor, id)
}

const categorySelect = `SELECT c.id, c.name, c.description, c.created_at,
	(SELECT COUNT(*) FROM poems p WHERE p.category_id = c.id)
FROM categories c`

func (s *Store) scanCategories(ctx context.Context, query string, args ...any) ([]domain.Category, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]domain.Category, 0)
	for rows.Next() {
		var (
			c       domain.Category
			created timeValue
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &created, &c.PoemCount); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.CreatedAt = created.Time
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return out, nil
}

// ListCategories returns all categories ordered by name.
func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.scanCategories(ctx, categorySelect+` ORDER BY c.name, c.created_at`)
}

// GetCategory returns one category.
func (s *Store) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	categories, err := s.scanCategories(ctx, categorySelect+` WHERE c.id = ?`, id)
	if err != nil {
		return domain.Category{}, err
	}
	if len(categories) == 0 {
		return domain.Category{}, domain.NotFoundError{Entity: domain.EntityCategory, ID: id}
	}
	return categories[0], nil
}

// InsertCategory stores a new category.
func (s *Store) InsertCategory(ctx context.Context, changes domain.CategoryChanges) (domain.Category, error) {
	now := s.stamp()
	c := domain.Category{
		Base:        domain.Base{ID: uuid.NewString(), CreatedAt: now},
		Name:        strings.TrimSpace(changes.Name),
		Description: changes.Description,
	}
	if _, err := s.exec(ctx, `INSERT INTO categories (id, name, description, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, c.Description, s.dialect.TimeArg(now)); err != nil {
		return domain.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return c, nil
}

// UpdateCategory replaces a category's columns.
func (s *Store) UpdateCategory(ctx context.Context, id string, changes domain.CategoryChanges) (domain.Category, error) {
	res, err := s.exec(ctx, `UPDATE categories SET name = ?, description = ? WHERE id = ?`,
		strings.TrimSpace(changes.Name), changes.Description, id)
	if err != nil {
		return domain.Category{}, fmt.Errorf("update category: %w", err)
	}
	if err := mustAffect(res, domain.EntityCategory, id); err != nil {
		return domain.Category{}, err
	}
	return s.GetCategory(ctx, id)
}

// DeleteCategory removes a category; the foreign key rejects referenced rows.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return mustAffect(res, domain.EntityCategory, id)
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

// tagsValue scans a JSON array column.
type tagsValue struct {
	tags []string
}

func (v *tagsValue) Scan(src any) error {
	var raw []byte
	switch t := src.(type) {
	case nil:
		v.tags = []string{}
		return nil
	case string:
		raw = []byte(t)
	case []byte:
		raw = t
	default:
		return fmt.Errorf("tags: unsupported column type %T", src)
	}
	if len(raw) == 0 {
		v.tags = []string{}
		return nil
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return fmt.Errorf("decode tags: %w", err)
	}
	v.tags = domain.NormalizeTags(tags)
	return nil
}

// Tags returns the decoded tags, never nil.
func (v tagsValue) Tags() []string {
	if v.tags == nil {
		return []string{}
	}
	return v.tags
}

// TimeLayout is the fixed-width UTC layout used by engines that store
// timestamps as text; fixed width keeps lexical and temporal order equal.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// timeValue scans native timestamps as well as TimeLayout text. NULL yields
// the zero time.
type timeValue struct {
	time.Time
}

func (v *timeValue) Scan(src any) error {
	switch t := src.(type) {
	case nil:
		v.Time = time.Time{}
		return nil
	case time.Time:
		v.Time = t.UTC()
		return nil
	case string:
		return v.parse(t)
	case []byte:
		return v.parse(string(t))
	default:
		return fmt.Errorf("timestamp: unsupported column type %T", src)
	}
}

func (v *timeValue) parse(s string) error {
	for _, layout := range []string{TimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			v.Time = t.UTC()
			return nil
		}
	}
	return errors.New("timestamp: unrecognized format " + s)
}
