// Package chatbot posts user messages to the n8n webhook chatbot and resolves
// its loosely shaped replies into a tagged result.
package chatbot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"poemhub/internal/logging"
)

const (
	// DefaultURL is the hosted webhook endpoint.
	DefaultURL = "https://zjf123.app.n8n.cloud/webhook/chatbot"
	// DefaultTimeout bounds one request end to end, body included.
	DefaultTimeout = 30 * time.Second
	// Source tags every payload sent by this client.
	Source = "poem-app"
	// ConnectionTestMessage is sent by TestConnection.
	ConnectionTestMessage = "测试连接"

	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
	maxResponseSize = 1 << 20
)

// Payload is the JSON body posted to the webhook.
type Payload struct {
	Message   string         `json:"message"`
	Context   map[string]any `json:"context"`
	Timestamp string         `json:"timestamp"`
	Source    string         `json:"source"`
}

// Client talks to one webhook URL.
type Client struct {
	url     string
	timeout time.Duration
	http    *http.Client
	logger  logging.Logger
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithURL overrides the webhook endpoint.
func WithURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.url = url
		}
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient swaps the transport.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger routes request failures to l.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the payload timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds a client for DefaultURL unless overridden.
func New(opts ...Option) *Client {
	c := &Client{
		url:     DefaultURL,
		timeout: DefaultTimeout,
		http:    &http.Client{},
		logger:  logging.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the configured endpoint.
func (c *Client) URL() string { return c.url }

// SendMessage posts text with conversation context and returns the bot's
// reply. Failures are always *Error.
func (c *Client) SendMessage(ctx context.Context, text string, convo map[string]any) (string, error) {
	result, err := c.send(ctx, text, convo)
	if err != nil {
		c.logger.Error("chatbot request failed", "url", c.url, "kind", kindOf(err).String(), "error", err)
		return "", err
	}
	switch r := result.(type) {
	case Reply:
		return r.Text, nil
	case Malformed:
		c.logger.Warn("chatbot reply malformed", "url", c.url, "raw", string(r.Raw))
		return "", &Error{Kind: KindMalformed, Err: errInvalidFormat}
	}
	return "", &Error{Kind: KindMalformed, Err: errInvalidFormat}
}

// TestConnection sends ConnectionTestMessage and reports whether a reply came back.
func (c *Client) TestConnection(ctx context.Context) bool {
	if _, err := c.SendMessage(ctx, ConnectionTestMessage, nil); err != nil {
		c.logger.Warn("chatbot connection test failed", "url", c.url, "error", err.Error())
		return false
	}
	return true
}

func (c *Client) send(ctx context.Context, text string, convo map[string]any) (Result, error) {
	if convo == nil {
		convo = map[string]any{}
	}
	payload, err := json.Marshal(Payload{
		Message:   text,
		Context:   convo,
		Timestamp: c.now().UTC().Format(timestampLayout),
		Source:    Source,
	})
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Err: fmt.Errorf("encode payload: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, transportError(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Kind: KindUnavailable, Err: fmt.Errorf("HTTP错误: %s", resp.Status)}
	}
	return resolve(body), nil
}

// transportError classifies a failed round trip. Only our own deadline (or the
// caller's) counts as a timeout.
func transportError(ctx context.Context, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindUnavailable, Err: err}
}

func kindOf(err error) Kind {
	var chatErr *Error
	if errors.As(err, &chatErr) {
		return chatErr.Kind
	}
	return KindUnavailable
}
