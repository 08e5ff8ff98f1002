// Package domain defines the persistent entities, query shapes and error
// sentinels shared by every poemhub storage backend.
package domain

import (
	"strings"
	"time"
)

// Table names used by every backend. They match the hosted data service schema.
const (
	TablePoems      = "poems"
	TableAuthors    = "authors"
	TableCategories = "categories"
)

// EntityType identifies the kind of record an error or log entry refers to.
type EntityType string

// Supported entity identifiers.
const (
	EntityPoem     EntityType = "poem"
	EntityAuthor   EntityType = "author"
	EntityCategory EntityType = "category"
)

// Base contains common fields for all stored records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Author is a poet. Name doubles as the natural lookup key when poems are
// created from an author name only.
type Author struct {
	Base
	Name    string `json:"name"`
	Dynasty string `json:"dynasty"`
	// PoemCount is derived by listings and zero elsewhere.
	PoemCount int `json:"poem_count"`
}

// Category groups poems by theme or form.
type Category struct {
	Base
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	PoemCount   int    `json:"poem_count"`
}

// Poem is a single work. Author and Category are populated by joined reads:
// listings fill name/dynasty only, detail reads fill the whole record.
type Poem struct {
	Base
	UpdatedAt  time.Time `json:"updated_at"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Dynasty    string    `json:"dynasty"`
	Tags       []string  `json:"tags"`
	AuthorID   *string   `json:"author_id"`
	CategoryID *string   `json:"category_id"`
	Author     *Author   `json:"authors,omitempty"`
	Category   *Category `json:"categories,omitempty"`
}

// AuthorName returns the joined author name or an empty string.
func (p Poem) AuthorName() string {
	if p.Author == nil {
		return ""
	}
	return p.Author.Name
}

// CategoryName returns the joined category name or an empty string.
func (p Poem) CategoryName() string {
	if p.Category == nil {
		return ""
	}
	return p.Category.Name
}

// PoemRecord is the row written when a poem is inserted.
type PoemRecord struct {
	Title      string
	Content    string
	AuthorID   *string
	CategoryID *string
	Dynasty    string
	Tags       []string
}

// PoemChanges is the full set of mutable poem columns. A poem keeps its author
// for life, so there is no author reference here.
type PoemChanges struct {
	Title      string
	Content    string
	CategoryID *string
	Dynasty    string
	Tags       []string
	UpdatedAt  time.Time
}

// AuthorChanges carries author columns for insert and update.
type AuthorChanges struct {
	Name    string `json:"name"`
	Dynasty string `json:"dynasty"`
}

// CategoryChanges carries category columns for insert and update.
type CategoryChanges struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// PoemQuery filters poem listings. Zero values mean "no filter".
// Results are always ordered by creation time, newest first.
type PoemQuery struct {
	// Search matches title or content, case-insensitively, as a substring.
	Search     string
	Dynasty    string
	AuthorID   string
	CategoryID string
}

// Matches reports whether p satisfies q using the same semantics every
// backend implements remotely.
func (q PoemQuery) Matches(p Poem) bool {
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		if !strings.Contains(strings.ToLower(p.Title), needle) &&
			!strings.Contains(strings.ToLower(p.Content), needle) {
			return false
		}
	}
	if q.Dynasty != "" && p.Dynasty != q.Dynasty {
		return false
	}
	if q.AuthorID != "" && (p.AuthorID == nil || *p.AuthorID != q.AuthorID) {
		return false
	}
	if q.CategoryID != "" && (p.CategoryID == nil || *p.CategoryID != q.CategoryID) {
		return false
	}
	return true
}

// NormalizeTags trims, drops empties and de-duplicates tags while keeping
// their first-seen order. A nil input yields an empty, non-nil slice.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
