package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// TokenSource supplies the bearer token for each request. Sources that
// re-read their backing store hand out a rotated token on the next call,
// which is what the 401 refresh relies on.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// RetryPolicy bounds how transient failures are retried.
type RetryPolicy struct {
	MaxRetries int           // retries after the first attempt
	Backoff    time.Duration // first delay, doubled per retry with jitter
}

// DefaultRetryPolicy is used unless WithRetryPolicy overrides it.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, Backoff: time.Second}

// Client provides access to the venue REST API.
type Client struct {
	baseURL   string
	tokens    TokenSource
	http      *http.Client
	retry     RetryPolicy
	userAgent string
	logger    *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a venue API client. tokens may be nil for
// unauthenticated use.
func NewClient(baseURL string, tokens TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    &http.Client{Timeout: 30 * time.Second},
		retry:   DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "api")
	return c
}

// WithTimeout bounds each HTTP round trip.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// WithRetryPolicy replaces DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) { c.retry = p }
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient replaces the HTTP client. WithTimeout applied after it
// changes the given client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}
