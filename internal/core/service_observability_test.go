package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"poemhub/internal/infra/persistence/memory"
	"poemhub/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct {
	ended []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type logEntry struct {
	level string
	msg   string
	kv    []any
}

type captureLogger struct {
	entries []logEntry
}

func (c *captureLogger) add(level, msg string, kv []any) {
	c.entries = append(c.entries, logEntry{level: level, msg: msg, kv: kv})
}

func (c *captureLogger) Debug(msg string, kv ...any) { c.add("debug", msg, kv) }
func (c *captureLogger) Info(msg string, kv ...any)  { c.add("info", msg, kv) }
func (c *captureLogger) Warn(msg string, kv ...any)  { c.add("warn", msg, kv) }
func (c *captureLogger) Error(msg string, kv ...any) { c.add("error", msg, kv) }

func (c *captureLogger) count(level string) int {
	n := 0
	for _, e := range c.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

func TestServiceReportsEveryOperation(t *testing.T) {
	ctx := context.Background()
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	logger := &captureLogger{}
	svc := NewService(memory.NewStore(), WithMetricsRecorder(metrics), WithTracer(tracer), WithLogger(logger))

	poem, err := svc.AddPoem(ctx, PoemDraft{Title: "静夜思", AuthorName: "李白"})
	if err != nil {
		t.Fatalf("AddPoem: %v", err)
	}
	if _, err := svc.GetPoem(ctx, "missing"); err == nil {
		t.Fatalf("expected not found")
	}
	if err := svc.DeleteAuthor(ctx, *poem.AuthorID); err == nil {
		t.Fatalf("expected guard error")
	}

	for _, want := range []struct {
		op      string
		success bool
	}{{"add_poem", true}, {"get_poem", false}, {"delete_author", false}} {
		if !metrics.has(want.op, want.success) {
			t.Fatalf("missing metrics observation %s success=%v in %+v", want.op, want.success, metrics.calls)
		}
	}
	if len(tracer.ended) != 3 || tracer.ended[1].err == nil || tracer.ended[0].err != nil {
		t.Fatalf("unexpected spans %+v", tracer.ended)
	}
	if logger.count("error") != 2 {
		t.Fatalf("expected one error log per failure, got %+v", logger.entries)
	}
	if logger.count("info") != 1 {
		t.Fatalf("expected author creation to be logged, got %+v", logger.entries)
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("NewPrometheusMetricsRecorder: %v", err)
	}
	svc := NewService(memory.NewStore(), WithMetricsRecorder(rec))
	ctx := context.Background()
	if _, err := svc.ListPoems(ctx); err != nil {
		t.Fatalf("ListPoems: %v", err)
	}
	if _, err := svc.ListPoems(ctx); err != nil {
		t.Fatalf("ListPoems: %v", err)
	}
	if _, err := svc.GetCategory(ctx, "none"); err == nil {
		t.Fatalf("expected not found")
	}
	rec.Observe(ctx, "", true, time.Second)

	if got := testutil.ToFloat64(rec.results.WithLabelValues("list_poems", "success")); got != 2 {
		t.Fatalf("list_poems successes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(rec.results.WithLabelValues("get_category", "error")); got != 1 {
		t.Fatalf("get_category errors = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(rec.durations); n != 2 {
		t.Fatalf("expected 2 histogram series, got %d", n)
	}

	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestJSONTracerWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	svc := NewService(memory.NewStore(), WithTracer(tracer))
	ctx := context.Background()
	if _, err := svc.ListAuthors(ctx); err != nil {
		t.Fatalf("ListAuthors: %v", err)
	}
	if err := svc.DeletePoem(ctx, "missing"); err == nil {
		t.Fatalf("expected delete error")
	}

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(entries))
	}
	if entries[0].Operation != "list_authors" || entries[0].Status != "success" {
		t.Fatalf("unexpected first span %+v", entries[0])
	}
	if entries[1].Status != "error" || entries[1].Error == "" || entries[1].EndedAt.Before(entries[1].StartedAt) {
		t.Fatalf("unexpected error span %+v", entries[1])
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 2 {
		t.Fatalf("expected 2 JSON lines, got %d: %s", lines, buf.String())
	}
	if NewJSONTracer(nil) == nil {
		t.Fatalf("nil writer tracer must still be usable")
	}
}

func TestHandleStoreError(t *testing.T) {
	logger := &captureLogger{}

	err := HandleStoreError(logger, errors.New("duplicate key value"), "添加作者失败")
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) || svcErr.Message != "duplicate key value" {
		t.Fatalf("expected service message, got %#v", err)
	}
	if logger.count("error") != 1 {
		t.Fatalf("raw error must be logged")
	}

	if err := HandleStoreError(nil, nil, ""); err == nil || err.Error() != DefaultErrorMessage {
		t.Fatalf("nil error must still yield the default message, got %v", err)
	}
	if err := HandleStoreError(logger, emptyError{}, "获取分类列表失败"); err.Error() != "获取分类列表失败" {
		t.Fatalf("empty message must fall back to default, got %q", err.Error())
	}

	again := HandleStoreError(logger, err, "other")
	if again != err {
		t.Fatalf("already normalized errors must pass through unchanged")
	}

	notFound := HandleStoreError(logger, domain.NotFoundError{Entity: domain.EntityPoem, ID: "p"}, "")
	if !errors.Is(notFound, domain.ErrNotFound) {
		t.Fatalf("cause must stay reachable via errors.Is")
	}
}

type emptyError struct{}

func (emptyError) Error() string { return "" }
