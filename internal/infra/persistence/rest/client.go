// Package rest implements domain.PersistentStore against the hosted data
// service's REST query surface (PostgREST conventions: select with embedded
// relations, operator filters and Prefer headers).
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"poemhub/pkg/domain"
)

const (
	restPrefix     = "/rest/v1/"
	defaultTimeout = 15 * time.Second

	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNoRows              = "PGRST116"
)

// Config holds the data service location and anonymous access key.
type Config struct {
	URL string
	Key string
	// HTTPClient overrides the default client (timeout defaultTimeout).
	HTTPClient *http.Client
}

// APIError is the JSON error body returned by the data service.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("data service returned status %d", e.Status)
}

// Unwrap maps well-known codes onto domain sentinels.
// ServiceMessage returns the message the data service sent, if any.
func (e *APIError) ServiceMessage() string { return e.Message }

func (e *APIError) Unwrap() error {
	switch {
	case e.Code == codeUniqueViolation || (e.Status == http.StatusConflict && e.Code == ""):
		return domain.ErrConflict
	case e.Code == codeForeignKeyViolation:
		return domain.ErrReferenced
	case e.Code == codeNoRows || e.Status == http.StatusNotFound:
		return domain.ErrNotFound
	}
	return nil
}

type request struct {
	method string
	table  string
	query  url.Values
	body   any
	// represent asks the service to echo affected rows.
	represent bool
	// count asks for an exact count in Content-Range.
	count bool
}

type response struct {
	body         []byte
	contentRange string
}

func (s *Store) do(ctx context.Context, r request) (response, error) {
	if !s.configured {
		return response{}, domain.ErrNotConfigured
	}
	endpoint := s.baseURL + restPrefix + r.table
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}
	var body io.Reader = http.NoBody
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return response{}, fmt.Errorf("encode %s payload: %w", r.table, err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, body)
	if err != nil {
		return response{}, fmt.Errorf("build %s request: %w", r.table, err)
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	var prefer []string
	if r.represent {
		prefer = append(prefer, "return=representation")
	}
	if r.count {
		prefer = append(prefer, "count=exact")
	}
	if len(prefer) > 0 {
		req.Header.Set("Prefer", strings.Join(prefer, ","))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("%s %s: %w", r.method, r.table, err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, fmt.Errorf("read %s response: %w", r.table, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		return response{}, apiErr
	}
	return response{body: data, contentRange: resp.Header.Get("Content-Range")}, nil
}

func decodeRows[T any](res response, table string) ([]T, error) {
	out := make([]T, 0)
	if len(bytes.TrimSpace(res.body)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(res.body, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", table, err)
	}
	return out, nil
}

// totalFromContentRange parses "0-9/42" or "*/0".
func totalFromContentRange(v string) (int, error) {
	i := strings.LastIndexByte(v, '/')
	if i < 0 || i == len(v)-1 {
		return 0, fmt.Errorf("content-range %q has no total", v)
	}
	n, err := strconv.Atoi(v[i+1:])
	if err != nil {
		return 0, fmt.Errorf("content-range %q: %w", v, err)
	}
	return n, nil
}

// quoteFilterValue wraps a value for use inside or=(...) lists where commas,
// dots and parentheses are reserved.
func quoteFilterValue(v string) string {
	v = strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v)
	return `"` + v + `"`
}

// likePattern builds an ilike operand matching v as a substring. '*' is the
// service's wildcard and cannot be escaped.
func likePattern(v string) string {
	v = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(v)
	return "*" + v + "*"
}

// flexID accepts numeric or string identifiers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

func (f *flexID) ptr() *string {
	if f == nil || *f == "" {
		return nil
	}
	s := string(*f)
	return &s
}

// flexTime accepts timestamps with or without a zone offset.
type flexTime struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

func (f *flexTime) UnmarshalJSON(b []byte) error {
	var s string
	if string(b) == "null" {
		f.Time = time.Time{}
		return nil
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			f.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", s)
}

type countRow struct {
	Count int `json:"count"`
}

func sumCounts(rows []countRow) int {
	n := 0
	for _, r := range rows {
		n += r.Count
	}
	return n
}

type authorRow struct {
	ID        flexID     `json:"id"`
	Name      string     `json:"name"`
	Dynasty   string     `json:"dynasty"`
	CreatedAt flexTime   `json:"created_at"`
	Poems     []countRow `json:"poems"`
}

func (r authorRow) author() domain.Author {
	return domain.Author{
		Base:      domain.Base{ID: string(r.ID), CreatedAt: r.CreatedAt.Time},
		Name:      r.Name,
		Dynasty:   r.Dynasty,
		PoemCount: sumCounts(r.Poems),
	}
}

type categoryRow struct {
	ID          flexID     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	CreatedAt   flexTime   `json:"created_at"`
	Poems       []countRow `json:"poems"`
}

func (r categoryRow) category() domain.Category {
	return domain.Category{
		Base:        domain.Base{ID: string(r.ID), CreatedAt: r.CreatedAt.Time},
		Name:        r.Name,
		Description: r.Description,
		PoemCount:   sumCounts(r.Poems),
	}
}

type poemRow struct {
	ID         flexID       `json:"id"`
	Title      string       `json:"title"`
	Content    string       `json:"content"`
	Dynasty    string       `json:"dynasty"`
	Tags       []string     `json:"tags"`
	AuthorID   *flexID      `json:"author_id"`
	CategoryID *flexID      `json:"category_id"`
	CreatedAt  flexTime     `json:"created_at"`
	UpdatedAt  flexTime     `json:"updated_at"`
	Authors    *authorRow   `json:"authors"`
	Categories *categoryRow `json:"categories"`
}

func (r poemRow) poem() domain.Poem {
	p := domain.Poem{
		Base:       domain.Base{ID: string(r.ID), CreatedAt: r.CreatedAt.Time},
		UpdatedAt:  r.UpdatedAt.Time,
		Title:      r.Title,
		Content:    r.Content,
		Dynasty:    r.Dynasty,
		Tags:       domain.NormalizeTags(r.Tags),
		AuthorID:   r.AuthorID.ptr(),
		CategoryID: r.CategoryID.ptr(),
	}
	if r.Authors != nil {
		a := r.Authors.author()
		p.Author = &a
	}
	if r.Categories != nil {
		c := r.Categories.category()
		p.Category = &c
	}
	return p
}
