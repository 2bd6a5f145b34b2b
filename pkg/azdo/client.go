// Package azdo provides Azure DevOps REST API client functionality.
package azdo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// API versions used by the dashboard.
const (
	apiVersion           = "5.0"
	propertiesAPIVersion = "5.1-preview.1"
)

// Client defaults.
const (
	// DefaultTimeout bounds every API call, including its retries.
	DefaultTimeout    = 5 * time.Second
	defaultAttempts   = 3
	initialRetryDelay = 200 * time.Millisecond
	maxRetryDelay     = 2 * time.Second
)

// ErrNotFound is returned when the API responds with 404.
var ErrNotFound = errors.New("not found")

// errRetryable marks failures worth another attempt: rate limits, server errors, network errors.
var errRetryable = errors.New("retryable")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	URL    string
	Body   string
	Code   int
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}

// Client handles all Azure DevOps API interactions.
type Client struct {
	httpClient HTTPDoer
	auth       Credentials
	baseURL    string
	timeout    time.Duration
	attempts   uint
}

// Config holds configuration for creating a new client.
type Config struct {
	HTTPClient  HTTPDoer    // optional; defaults to an http.Client
	Credentials Credentials // optional; cookies or ambient auth are not supported
	BaseURL     string      // collection URL, e.g. https://dev.azure.com/org
	Timeout     time.Duration
	Attempts    uint
}

// New creates a new Azure DevOps API client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}

	c := &Client{
		httpClient: cfg.HTTPClient,
		auth:       cfg.Credentials,
		baseURL:    base,
		timeout:    cfg.Timeout,
		attempts:   cfg.Attempts,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.attempts == 0 {
		c.attempts = defaultAttempts
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c, nil
}

// BaseURL returns the collection URL all requests are made against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// drainAndCloseBody drains and closes an HTTP response body to prevent resource leaks.
func drainAndCloseBody(body io.ReadCloser) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		slog.Warn("Failed to drain response body", "component", "http", "error", err)
	}
	if err := body.Close(); err != nil {
		slog.Warn("Failed to close response body", "component", "http", "error", err)
	}
}

// withVersion appends the api-version query parameter.
func withVersion(rawURL, version string) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + "api-version=" + version
}

// request describes a single API call.
type request struct {
	body        any
	method      string
	url         string
	contentType string
}

// do makes an HTTP request with retry logic, bounded by the client timeout.
// The caller owns the returned body.
func (c *Client) do(ctx context.Context, r request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	var bodyBytes []byte
	if r.body != nil {
		var err error
		bodyBytes, err = json.Marshal(r.body)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	slog.Debug("HTTP request", "component", "http", "method", r.method, "url", r.url)

	var resp *http.Response
	err := c.retryWithBackoff(ctx, r.method+" "+r.url, func() error {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(ctx, r.method, r.url, bodyReader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if bodyBytes != nil {
			ct := r.contentType
			if ct == "" {
				ct = "application/json"
			}
			req.Header.Set("Content-Type", ct)
		}
		c.auth.apply(req)

		localResp, err := c.httpClient.Do(req) //nolint:bodyclose // body is closed by the caller or drained below
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			return fmt.Errorf("request failed: %w: %w", errRetryable, err)
		}

		if localResp.StatusCode == http.StatusTooManyRequests {
			drainAndCloseBody(localResp.Body)
			slog.Warn("Rate limited - will retry with backoff", "component", "http", "method", r.method, "url", r.url)
			return fmt.Errorf("http %d: %w: rate limited", localResp.StatusCode, errRetryable)
		}

		if localResp.StatusCode >= http.StatusInternalServerError && localResp.StatusCode < 600 {
			drainAndCloseBody(localResp.Body)
			slog.Warn("Server error - will retry with backoff", "component", "http", "method", r.method, "url", r.url, "status", localResp.StatusCode)
			return fmt.Errorf("http %d: %w: server error", localResp.StatusCode, errRetryable)
		}

		resp = localResp
		return nil
	})
	if err != nil {
		cancel()
		return nil, err
	}

	slog.Debug("HTTP response", "component", "http", "method", r.method, "url", r.url, "status", resp.StatusCode)
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose releases the request context once the caller is done with the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// retryWithBackoff executes fn with exponential backoff and jitter.
func (c *Client) retryWithBackoff(ctx context.Context, operation string, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(initialRetryDelay),
		retry.MaxDelay(maxRetryDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(initialRetryDelay/4),
		retry.OnRetry(func(n uint, err error) {
			slog.Info("Retry attempt", "component", "retry", "operation", operation, "attempt", n+1, "max_attempts", c.attempts, "error", err)
		}),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, errRetryable)
		}),
	)
}

// getJSON performs a GET and decodes a 2xx response into dst.
func (c *Client) getJSON(ctx context.Context, apiURL string, dst any) error {
	return c.sendJSON(ctx, request{method: http.MethodGet, url: apiURL}, dst)
}

// sendJSON performs a request and decodes a 2xx response into dst (if non-nil).
func (c *Client) sendJSON(ctx context.Context, r request, dst any) error {
	resp, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 512))
		if err != nil {
			body = nil
		}
		return &StatusError{Method: r.method, URL: r.url, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding %s %s: %w", r.method, r.url, err)
	}
	return nil
}
