// Package export renders the poem anthology into JSON and CSV artifacts and
// stores them through the blob facade.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"poemhub/internal/blob"
	"poemhub/internal/logging"
	"poemhub/pkg/domain"
)

// Format names an artifact encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// KeyPrefix is where every artifact is written.
const KeyPrefix = "exports/"

const keyTimeLayout = "20060102T150405Z"

var csvHeader = []string{"id", "title", "author", "dynasty", "category", "tags", "content", "created_at", "updated_at"}

// PoemLister supplies the joined poem collection.
type PoemLister interface {
	ListPoems(ctx context.Context) ([]domain.Poem, error)
}

// Artifact describes one stored export.
type Artifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Poems       int       `json:"poems"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Document is the JSON artifact body.
type Document struct {
	ExportedAt time.Time     `json:"exported_at"`
	Count      int           `json:"count"`
	Poems      []domain.Poem `json:"poems"`
}

// Exporter writes anthology snapshots.
type Exporter struct {
	poems  PoemLister
	store  blob.Store
	logger logging.Logger
	now    func() time.Time
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the clock used for keys and timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// New builds an exporter reading from poems and writing to store.
func New(poems PoemLister, store blob.Store, opts ...Option) *Exporter {
	e := &Exporter{poems: poems, store: store, logger: logging.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ParseFormat accepts json or csv, case-insensitively.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unknown export format %q", raw)
}

// Export reads the collection once and stores one artifact per format. With
// no formats both JSON and CSV are written.
func (e *Exporter) Export(ctx context.Context, formats ...Format) ([]Artifact, error) {
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatCSV}
	}
	poems, err := e.poems.ListPoems(ctx)
	if err != nil {
		return nil, fmt.Errorf("load poems: %w", err)
	}
	stamp := e.now().UTC()
	artifacts := make([]Artifact, 0, len(formats))
	for _, format := range formats {
		payload, contentType, err := render(format, stamp, poems)
		if err != nil {
			return artifacts, err
		}
		key := fmt.Sprintf("%spoems-%s.%s", KeyPrefix, stamp.Format(keyTimeLayout), format)
		info, err := e.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: contentType,
			Metadata:    map[string]string{"poems": strconv.Itoa(len(poems)), "format": string(format)},
		})
		if err != nil {
			return artifacts, fmt.Errorf("store %s: %w", key, err)
		}
		artifact := Artifact{
			Key:         info.Key,
			Format:      format,
			ContentType: contentType,
			SizeBytes:   info.Size,
			Poems:       len(poems),
			URL:         info.URL,
			CreatedAt:   stamp,
		}
		if url, err := e.store.PresignURL(ctx, key, blob.SignedURLOptions{}); err == nil {
			artifact.URL = url
		} else if !errors.Is(err, blob.ErrUnsupported) {
			e.logger.Warn("presign export failed", "key", key, "error", err)
		}
		e.logger.Info("export written", "key", key, "format", string(format), "poems", len(poems), "bytes", info.Size)
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

// List returns stored artifacts, oldest first.
func (e *Exporter) List(ctx context.Context) ([]blob.Info, error) {
	return e.store.List(ctx, KeyPrefix)
}

func render(format Format, stamp time.Time, poems []domain.Poem) ([]byte, string, error) {
	switch format {
	case FormatJSON:
		if poems == nil {
			poems = []domain.Poem{}
		}
		payload, err := json.MarshalIndent(Document{ExportedAt: stamp, Count: len(poems), Poems: poems}, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("marshal json: %w", err)
		}
		return payload, "application/json", nil
	case FormatCSV:
		buf := &bytes.Buffer{}
		w := csv.NewWriter(buf)
		if err := w.Write(csvHeader); err != nil {
			return nil, "", err
		}
		for _, p := range poems {
			category := ""
			if p.Category != nil {
				category = p.Category.Name
			}
			if err := w.Write([]string{
				p.ID,
				p.Title,
				p.AuthorName(),
				p.Dynasty,
				category,
				strings.Join(p.Tags, ";"),
				p.Content,
				formatTime(p.CreatedAt),
				formatTime(p.UpdatedAt),
			}); err != nil {
				return nil, "", err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "text/csv; charset=utf-8", nil
	}
	return nil, "", fmt.Errorf("unknown export format %q", format)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
