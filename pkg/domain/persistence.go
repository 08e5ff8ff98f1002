package domain

import "context"

// PersistentStore is the configured handle to the relational data service.
// Every backend (hosted REST service, Postgres, SQLite, memory) implements the
// same select/insert/update/delete surface. Implementations classify failures
// into the sentinels in errors.go at the point of origin.
type PersistentStore interface {
	// ListPoems returns joined poems (author name/dynasty, category name)
	// matching q, newest first.
	ListPoems(ctx context.Context, q PoemQuery) ([]Poem, error)
	// CountPoems reports how many poems match q.
	CountPoems(ctx context.Context, q PoemQuery) (int, error)
	// GetPoem returns one poem with fully expanded author and category.
	GetPoem(ctx context.Context, id string) (Poem, error)
	InsertPoem(ctx context.Context, rec PoemRecord) (Poem, error)
	UpdatePoem(ctx context.Context, id string, changes PoemChanges) (Poem, error)
	DeletePoem(ctx context.Context, id string) error

	// ListAuthors returns all authors ordered by name with poem counts.
	ListAuthors(ctx context.Context) ([]Author, error)
	GetAuthor(ctx context.Context, id string) (Author, error)
	// FindAuthorByName reports ok=false when no author has exactly that name.
	FindAuthorByName(ctx context.Context, name string) (author Author, ok bool, err error)
	InsertAuthor(ctx context.Context, changes AuthorChanges) (Author, error)
	UpdateAuthor(ctx context.Context, id string, changes AuthorChanges) (Author, error)
	DeleteAuthor(ctx context.Context, id string) error

	// ListCategories returns all categories ordered by name with poem counts.
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, id string) (Category, error)
	InsertCategory(ctx context.Context, changes CategoryChanges) (Category, error)
	UpdateCategory(ctx context.Context, id string, changes CategoryChanges) (Category, error)
	DeleteCategory(ctx context.Context, id string) error

	Close() error
}
