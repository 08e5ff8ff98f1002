package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"poemhub/internal/logging"
	"poemhub/pkg/domain"
)

// Service translates poem, author and category use cases into data service
// calls. Every failure is normalized through HandleStoreError.
type Service struct {
	store   domain.PersistentStore
	logger  logging.Logger
	now     func() time.Time
	metrics MetricsRecorder
	tracer  Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for operation and error logs.
func WithLogger(l logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the clock used to stamp updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetricsRecorder reports one observation per operation.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer opens a span per operation.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  logging.Nop(),
		now:     func() time.Time { return time.Now().UTC() },
		metrics: noopMetrics{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

// PoemDraft is the caller-supplied shape for creating or editing a poem.
// AuthorName is consulted only on create when AuthorID is empty.
type PoemDraft struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	AuthorID   string   `json:"author_id,omitempty"`
	AuthorName string   `json:"author_name,omitempty"`
	CategoryID string   `json:"category_id,omitempty"`
	Dynasty    string   `json:"dynasty"`
	Tags       []string `json:"tags"`
}

func optionalID(id string) *string {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	return &id
}

// observe wraps one operation with tracing, metrics, logging and error
// normalization.
func observe[T any](ctx context.Context, s *Service, op, defaultMessage string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	out, err := fn(ctx)
	if err != nil {
		err = HandleStoreError(s.logger, err, defaultMessage)
		var svcErr *ServiceError
		if errors.As(err, &svcErr) && svcErr.Op == "" {
			svcErr.Op = op
		}
	}
	elapsed := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	if err != nil {
		s.logger.Debug("operation failed", "op", op, "duration", elapsed)
		var zero T
		return zero, err
	}
	s.logger.Debug("operation complete", "op", op, "duration", elapsed)
	return out, nil
}

// ListPoems returns every poem with author name/dynasty and category name, newest first.
func (s *Service) ListPoems(ctx context.Context) ([]domain.Poem, error) {
	return observe(ctx, s, "list_poems", "获取诗词列表失败", func(ctx context.Context) ([]domain.Poem, error) {
		return s.store.ListPoems(ctx, domain.PoemQuery{})
	})
}

// GetPoem returns one poem with full author and category records.
func (s *Service) GetPoem(ctx context.Context, id string) (domain.Poem, error) {
	return observe(ctx, s, "get_poem", "获取诗词详情失败", func(ctx context.Context) (domain.Poem, error) {
		return s.store.GetPoem(ctx, id)
	})
}

// AddPoem inserts a poem, creating its author by name when only a name is given.
func (s *Service) AddPoem(ctx context.Context, draft PoemDraft) (domain.Poem, error) {
	return observe(ctx, s, "add_poem", "添加诗词失败", func(ctx context.Context) (domain.Poem, error) {
		authorID := optionalID(draft.AuthorID)
		if authorID == nil && strings.TrimSpace(draft.AuthorName) != "" {
			author, err := s.findOrCreateAuthor(ctx, draft.AuthorName, draft.Dynasty)
			if err != nil {
				return domain.Poem{}, err
			}
			authorID = &author.ID
		}
		return s.store.InsertPoem(ctx, domain.PoemRecord{
			Title:      draft.Title,
			Content:    draft.Content,
			AuthorID:   authorID,
			CategoryID: optionalID(draft.CategoryID),
			Dynasty:    draft.Dynasty,
			Tags:       domain.NormalizeTags(draft.Tags),
		})
	})
}

// UpdatePoem replaces a poem's title, content, category, dynasty and tags and
// stamps updated_at. The author reference never changes.
func (s *Service) UpdatePoem(ctx context.Context, id string, draft PoemDraft) (domain.Poem, error) {
	return observe(ctx, s, "update_poem", "更新诗词失败", func(ctx context.Context) (domain.Poem, error) {
		return s.store.UpdatePoem(ctx, id, domain.PoemChanges{
			Title:      draft.Title,
			Content:    draft.Content,
			CategoryID: optionalID(draft.CategoryID),
			Dynasty:    draft.Dynasty,
			Tags:       domain.NormalizeTags(draft.Tags),
			UpdatedAt:  s.now(),
		})
	})
}

// DeletePoem removes a poem. A nil error is the success marker.
func (s *Service) DeletePoem(ctx context.Context, id string) error {
	_, err := observe(ctx, s, "delete_poem", "删除诗词失败", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.DeletePoem(ctx, id)
	})
	return err
}

// SearchPoems returns poems whose title or content contains query,
// case-insensitively, newest first.
func (s *Service) SearchPoems(ctx context.Context, query string) ([]domain.Poem, error) {
	return observe(ctx, s, "search_poems", "搜索诗词失败", func(ctx context.Context) ([]domain.Poem, error) {
		return s.store.ListPoems(ctx, domain.PoemQuery{Search: query})
	})
}

// PoemsByDynasty returns poems whose dynasty equals dynasty exactly, newest first.
func (s *Service) PoemsByDynasty(ctx context.Context, dynasty string) ([]domain.Poem, error) {
	return observe(ctx, s, "poems_by_dynasty", "获取朝代诗词失败", func(ctx context.Context) ([]domain.Poem, error) {
		return s.store.ListPoems(ctx, domain.PoemQuery{Dynasty: dynasty})
	})
}

// PoemsByAuthor returns the author's poems, newest first.
func (s *Service) PoemsByAuthor(ctx context.Context, authorID string) ([]domain.Poem, error) {
	return observe(ctx, s, "poems_by_author", "获取作者作品失败", func(ctx context.Context) ([]domain.Poem, error) {
		return s.store.ListPoems(ctx, domain.PoemQuery{AuthorID: authorID})
	})
}

// PoemsByCategory returns the category's poems, newest first.
func (s *Service) PoemsByCategory(ctx context.Context, categoryID string) ([]domain.Poem, error) {
	return observe(ctx, s, "poems_by_category", "获取分类作品失败", func(ctx context.Context) ([]domain.Poem, error) {
		return s.store.ListPoems(ctx, domain.PoemQuery{CategoryID: categoryID})
	})
}

// FindOrCreateAuthor returns the author named name, inserting it with dynasty
// when absent.
func (s *Service) FindOrCreateAuthor(ctx context.Context, name, dynasty string) (domain.Author, error) {
	return observe(ctx, s, "find_or_create_author", "查找或创建作者失败", func(ctx context.Context) (domain.Author, error) {
		return s.findOrCreateAuthor(ctx, name, dynasty)
	})
}

func (s *Service) findOrCreateAuthor(ctx context.Context, name, dynasty string) (domain.Author, error) {
	name = strings.TrimSpace(name)
	if author, ok, err := s.store.FindAuthorByName(ctx, name); err != nil || ok {
		return author, err
	}
	author, err := s.store.InsertAuthor(ctx, domain.AuthorChanges{Name: name, Dynasty: dynasty})
	if err == nil {
		s.logger.Info("author created", "author_id", author.ID, "name", name)
		return author, nil
	}
	if !errors.Is(err, domain.ErrConflict) {
		return domain.Author{}, err
	}
	// A concurrent caller inserted the same name first.
	author, ok, lookupErr := s.store.FindAuthorByName(ctx, name)
	if lookupErr != nil {
		return domain.Author{}, lookupErr
	}
	if !ok {
		return domain.Author{}, err
	}
	return author, nil
}

// ListAuthors returns every author with poem counts, ordered by name.
func (s *Service) ListAuthors(ctx context.Context) ([]domain.Author, error) {
	return observe(ctx, s, "list_authors", "获取作者列表失败", func(ctx context.Context) ([]domain.Author, error) {
		return s.store.ListAuthors(ctx)
	})
}

// GetAuthor returns one author.
func (s *Service) GetAuthor(ctx context.Context, id string) (domain.Author, error) {
	return observe(ctx, s, "get_author", "获取作者详情失败", func(ctx context.Context) (domain.Author, error) {
		return s.store.GetAuthor(ctx, id)
	})
}

// AddAuthor inserts an author.
func (s *Service) AddAuthor(ctx context.Context, changes domain.AuthorChanges) (domain.Author, error) {
	return observe(ctx, s, "add_author", "添加作者失败", func(ctx context.Context) (domain.Author, error) {
		return s.store.InsertAuthor(ctx, changes)
	})
}

// UpdateAuthor replaces an author's name and dynasty.
func (s *Service) UpdateAuthor(ctx context.Context, id string, changes domain.AuthorChanges) (domain.Author, error) {
	return observe(ctx, s, "update_author", "更新作者失败", func(ctx context.Context) (domain.Author, error) {
		return s.store.UpdateAuthor(ctx, id, changes)
	})
}

// DeleteAuthor removes an author that no poem references.
func (s *Service) DeleteAuthor(ctx context.Context, id string) error {
	_, err := observe(ctx, s, "delete_author", "删除作者失败", func(ctx context.Context) (struct{}, error) {
		if err := s.guardDelete(ctx, domain.EntityAuthor, id, domain.PoemQuery{AuthorID: id}, AuthorHasPoemsMessage); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, asGuard(s.store.DeleteAuthor(ctx, id), domain.EntityAuthor, id, AuthorHasPoemsMessage)
	})
	return err
}

// ListCategories returns every category with poem counts, ordered by name.
func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return observe(ctx, s, "list_categories", "获取分类列表失败", func(ctx context.Context) ([]domain.Category, error) {
		return s.store.ListCategories(ctx)
	})
}

// GetCategory returns one category.
func (s *Service) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	return observe(ctx, s, "get_category", "获取分类详情失败", func(ctx context.Context) (domain.Category, error) {
		return s.store.GetCategory(ctx, id)
	})
}

// AddCategory inserts a category.
func (s *Service) AddCategory(ctx context.Context, changes domain.CategoryChanges) (domain.Category, error) {
	return observe(ctx, s, "add_category", "添加分类失败", func(ctx context.Context) (domain.Category, error) {
		return s.store.InsertCategory(ctx, changes)
	})
}

// UpdateCategory replaces a category's name and description.
func (s *Service) UpdateCategory(ctx context.Context, id string, changes domain.CategoryChanges) (domain.Category, error) {
	return observe(ctx, s, "update_category", "更新分类失败", func(ctx context.Context) (domain.Category, error) {
		return s.store.UpdateCategory(ctx, id, changes)
	})
}

// DeleteCategory removes a category that no poem references.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	_, err := observe(ctx, s, "delete_category", "删除分类失败", func(ctx context.Context) (struct{}, error) {
		if err := s.guardDelete(ctx, domain.EntityCategory, id, domain.PoemQuery{CategoryID: id}, CategoryHasPoemsMessage); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, asGuard(s.store.DeleteCategory(ctx, id), domain.EntityCategory, id, CategoryHasPoemsMessage)
	})
	return err
}

// guardDelete rejects the delete while any poem still references id. The
// store's foreign keys close the window between count and delete; a rejection
// there is reported with the same guard message.
func (s *Service) guardDelete(ctx context.Context, entity domain.EntityType, id string, q domain.PoemQuery, message string) error {
	n, err := s.store.CountPoems(ctx, q)
	if err != nil {
		return err
	}
	if n > 0 {
		return &GuardError{Entity: entity, ID: id, Count: n, Message: message}
	}
	return nil
}

func asGuard(err error, entity domain.EntityType, id, message string) error {
	if errors.Is(err, domain.ErrReferenced) {
		return &GuardError{Entity: entity, ID: id, Message: message}
	}
	return err
}
