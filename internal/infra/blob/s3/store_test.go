package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"poemhub/internal/blob/core"
)

// fakeBucket answers the path-style S3 calls the store makes.
type fakeBucket struct {
	mu       sync.Mutex
	objects  map[string]fakeObject
	pageSize int
	requests []string
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string]fakeObject{}, pageSize: 1000}
}

func (f *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req.Method+" "+req.URL.Path)

	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	query := req.URL.Query()
	if req.Method == http.MethodGet && query.Get("list-type") == "2" {
		return f.list(query.Get("prefix"), query.Get("continuation-token")), nil
	}
	switch req.Method {
	case http.MethodHead:
		obj, ok := f.objects[key]
		if !ok {
			return reply(http.StatusNotFound, "", nil), nil
		}
		return reply(http.StatusOK, "", obj.headers()), nil
	case http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			return reply(http.StatusNotFound, errorXML("NoSuchKey"), http.Header{"Content-Type": {"application/xml"}}), nil
		}
		return reply(http.StatusOK, string(obj.body), obj.headers()), nil
	case http.MethodPut:
		if _, exists := f.objects[key]; exists && req.Header.Get("If-None-Match") == "*" {
			return reply(http.StatusPreconditionFailed, errorXML("PreconditionFailed"), http.Header{"Content-Type": {"application/xml"}}), nil
		}
		body, _ := io.ReadAll(req.Body)
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") {
			if decoded, ok := decodeAWSChunked(body); ok {
				body = decoded
			}
		}
		md := map[string]string{}
		for name, values := range req.Header {
			if strings.HasPrefix(strings.ToLower(name), "x-amz-meta-") {
				md[strings.ToLower(strings.TrimPrefix(strings.ToLower(name), "x-amz-meta-"))] = values[0]
			}
		}
		f.objects[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type"), metadata: md}
		return reply(http.StatusOK, "", http.Header{"ETag": {`"put"`}}), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return reply(http.StatusNoContent, "", nil), nil
	}
	return reply(http.StatusNotImplemented, "", nil), nil
}

func (f *fakeBucket) list(prefix, token string) *http.Response {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) && k > token {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	truncated := len(keys) > f.pageSize
	if truncated {
		keys = keys[:f.pageSize]
	}
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult>`)
	fmt.Fprintf(&b, "<IsTruncated>%t</IsTruncated>", truncated)
	if truncated {
		fmt.Fprintf(&b, "<NextContinuationToken>%s</NextContinuationToken>", keys[len(keys)-1])
	}
	for _, k := range keys {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><ETag>&quot;e-%s&quot;</ETag><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(f.objects[k].body), k)
	}
	b.WriteString("</ListBucketResult>")
	return reply(http.StatusOK, b.String(), http.Header{"Content-Type": {"application/xml"}})
}

func (o fakeObject) headers() http.Header {
	h := http.Header{
		"Content-Length": {strconv.Itoa(len(o.body))},
		"Content-Type":   {o.contentType},
		"ETag":           {`"etag123"`},
		"Last-Modified":  {time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat)},
	}
	for k, v := range o.metadata {
		h.Set("X-Amz-Meta-"+k, v)
	}
	return h
}

func (f *fakeBucket) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func reply(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Header: header, Body: io.NopCloser(strings.NewReader(body)), ContentLength: int64(len(body))}
}

func errorXML(code string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><Error><Code>` + code + `</Code><Message>` + code + `</Message></Error>`
}

// decodeAWSChunked strips aws-chunked framing: <hex-size>[;ext]\r\n<data>\r\n ... 0\r\n<trailers>.
func decodeAWSChunked(b []byte) ([]byte, bool) {
	var out []byte
	for {
		i := bytes.Index(b, []byte("\r\n"))
		if i < 0 {
			return nil, false
		}
		field := string(b[:i])
		if j := strings.IndexByte(field, ';'); j >= 0 {
			field = field[:j]
		}
		n, err := strconv.ParseInt(field, 16, 64)
		if err != nil {
			return nil, false
		}
		b = b[i+2:]
		if n == 0 {
			return out, true
		}
		if int64(len(b)) < n+2 {
			return nil, false
		}
		out = append(out, b[:n]...)
		b = b[n+2:]
	}
}

func newFakeStore(t *testing.T) (*Store, *fakeBucket) {
	t.Helper()
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	bucket := newFakeBucket()
	store, err := New(context.Background(), Config{
		Bucket:          "anthologies",
		Endpoint:        "https://s3.test.local",
		PathStyle:       true,
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		HTTPClient:      &http.Client{Transport: bucket},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return store, bucket
}

func TestStoreBasicFlow(t *testing.T) {
	ctx := context.Background()
	store, _ := newFakeStore(t)

	info, err := store.Put(ctx, "exports/poems.json", strings.NewReader(`[{"title":"静夜思"}]`), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"count": "1"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "exports/poems.json" || info.ContentType != "application/json" || info.ETag != "etag123" {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.Metadata["count"] != "1" {
		t.Fatalf("expected metadata round trip, got %+v", info.Metadata)
	}

	_, rc, err := store.Get(ctx, "exports/poems.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != `[{"title":"静夜思"}]` {
		t.Fatalf("get mismatch: %q", data)
	}

	url, err := store.PresignURL(ctx, "exports/poems.json", core.SignedURLOptions{Expiry: time.Minute})
	if err != nil || !strings.Contains(url, "X-Amz-Signature") {
		t.Fatalf("presign: %v %s", err, url)
	}
	if _, err := store.PresignURL(ctx, "exports/poems.json", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}

	if ok, err := store.Delete(ctx, "exports/poems.json"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "exports/poems.json"); err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
}

func TestStorePutIsCreateOnly(t *testing.T) {
	ctx := context.Background()
	store, _ := newFakeStore(t)
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("one")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("two")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := store.Put(ctx, "", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestStoreMissingKeys(t *testing.T) {
	ctx := context.Background()
	store, _ := newFakeStore(t)
	if _, err := store.Head(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from head, got %v", err)
	}
	if _, _, err := store.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
}

func TestStoreListPaginates(t *testing.T) {
	ctx := context.Background()
	store, bucket := newFakeStore(t)
	bucket.pageSize = 2
	for _, key := range []string{"exports/c", "exports/a", "exports/b", "other/x"} {
		if _, err := store.Put(ctx, key, strings.NewReader(key), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	list, err := store.List(ctx, "exports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var keys []string
	for _, info := range list {
		keys = append(keys, info.Key)
	}
	if strings.Join(keys, ",") != "exports/a,exports/b,exports/c" {
		t.Fatalf("unexpected keys %v", keys)
	}
	if list[0].ETag != "e-exports/a" {
		t.Fatalf("expected unquoted etag, got %q", list[0].ETag)
	}
	pages := 0
	for _, call := range bucket.calls() {
		if call == "GET /anthologies" || call == "GET /anthologies/" {
			pages++
		}
	}
	if pages != 2 {
		t.Fatalf("expected two list pages, got %d (%v)", pages, bucket.calls())
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
}

func TestDecodeAWSChunked(t *testing.T) {
	if _, ok := decodeAWSChunked([]byte("not-chunked")); ok {
		t.Fatalf("expected plain body to be rejected")
	}
	if _, ok := decodeAWSChunked([]byte("5\r\nabc\r\n0\r\n")); ok {
		t.Fatalf("expected short chunk to be rejected")
	}
	got, ok := decodeAWSChunked([]byte("5\r\nhello\r\n0\r\nx-amz-checksum-crc32:abc=\r\n\r\n"))
	if !ok || string(got) != "hello" {
		t.Fatalf("expected hello, got %q %v", got, ok)
	}
}
