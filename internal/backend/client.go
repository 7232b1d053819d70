package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"curator/internal/config"
	"curator/internal/logging"
)

const (
	defaultHTTPTimeout = 20 * time.Second
	defaultUserAgent   = "curator/1"
	maxErrorBody       = 2048
	requestIDHeader    = "X-Request-ID"
)

// HTTPDoer describes the HTTP client used to reach the backend.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config captures the connection settings for the backend.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	UserAgent         string
}

// Client issues requests against the curation server.
type Client struct {
	baseURL   string
	userAgent string
	http      HTTPDoer
	limiter   *rate.Limiter
	logger    *slog.Logger
	observe   func(method, path string, status int, elapsed time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

// WithLogger attaches a logger for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver registers a callback invoked after every completed request.
// Status is 0 when the request failed before a response arrived.
func WithObserver(fn func(method, path string, status int, elapsed time.Duration)) Option {
	return func(c *Client) {
		c.observe = fn
	}
}

// NewClient constructs a client for cfg.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	client := &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		userAgent: userAgent,
		http:      &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(limit, burst),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// NewFromConfig builds a client from the application configuration.
func NewFromConfig(cfg *config.Config, opts ...Option) *Client {
	if cfg == nil {
		return NewClient(Config{}, opts...)
	}
	return NewClient(Config{
		BaseURL:           cfg.Backend.BaseURL,
		Timeout:           time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
		Burst:             cfg.Backend.Burst,
	}, opts...)
}

// BaseURL returns the normalized server root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &NetworkError{Method: method, Path: path, Err: err}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	requestID, ok := logging.RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
	}
	req.Header.Set(requestIDHeader, requestID)

	started := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(started)
	if err != nil {
		c.record(method, path, 0, elapsed)
		c.logger.Debug("backend request failed",
			logging.String("method", method),
			logging.String("path", path),
			logging.String(logging.FieldRequestID, requestID),
			logging.Error(err),
		)
		return &NetworkError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()
	c.record(method, path, resp.StatusCode, elapsed)
	c.logger.Debug("backend request",
		logging.String("method", method),
		logging.String("path", path),
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", elapsed),
		logging.String(logging.FieldRequestID, requestID),
	)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: string(snippet)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) record(method, path string, status int, elapsed time.Duration) {
	if c.observe != nil {
		c.observe(method, path, status, elapsed)
	}
}
