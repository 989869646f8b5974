// Package remote provides the shared HTTP plumbing for REST-backed source
// plugins: JSON requests with bounded rate-limit retries, auth-failure and
// not-found mapping, and the fixed inter-page delay used while paginating.
package remote

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
	"strconv"
	"strings"
	"time"

	"github.com/randalmurphal/tasksync/internal/plugin"
)

// ErrNotFound marks a 404 on a single-record fetch. Callers treat it as
// valid absence, not a failure: a deleted contact or owner is optional data.
var ErrNotFound = errors.New("not found")

const (
	// defaultPageDelay is the pause between pagination requests. A few
	// hundred milliseconds keeps sustained scans under provider limits.
	defaultPageDelay = 300 * time.Millisecond

	// maxRateLimitRetries bounds how often a single request is retried after
	// an HTTP 429 before the rate limit is surfaced.
	maxRateLimitRetries = 3

	// defaultRetryAfter applies when a 429 carries no usable Retry-After.
	defaultRetryAfter = 2 * time.Second

	requestTimeout = 30 * time.Second
)

// Client issues authenticated JSON requests against one REST API.
type Client struct {
	base    string
	httpc   *http.Client
	headers map[string]string
	delay   time.Duration
	log     *slog.Logger

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client (tests, custom
// transports).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

// WithPageDelay overrides the inter-page delay.
func WithPageDelay(d time.Duration) Option {
	return func(c *Client) { c.delay = d }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers[key] = value }
}

// WithLogger sets the client's logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a Client for the given base URL, authenticating every request
// with the bearer token when non-empty.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		base:    strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: requestTimeout},
		headers: map[string]string{},
		delay:   defaultPageDelay,
		log:     slog.Default(),
		sleep:   sleepCtx,
	}
	if token != "" {
		c.headers["Authorization"] = "Bearer " + token
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON issues a GET and decodes the response into out (which may be nil).
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.DoJSON(ctx, http.MethodGet, path, query, nil, out)
}

// PostJSON issues a POST with a JSON body and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	return c.DoJSON(ctx, http.MethodPost, path, nil, body, out)
}

// PatchJSON issues a PATCH with a JSON body and decodes the response into out.
func (c *Client) PatchJSON(ctx context.Context, path string, body, out any) error {
	return c.DoJSON(ctx, http.MethodPatch, path, nil, body, out)
}

// DoJSON issues one logical request. On 429 it honors the provider's
// Retry-After hint and retries up to maxRateLimitRetries times before
// surfacing ErrRateLimited. 401/403 map to plugin.ErrAuthFailed and 404 to
// ErrNotFound so callers can branch with errors.Is.
func (c *Client) DoJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}

		data, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("%s %s: read response: %w", method, path, readErr)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			if attempt >= maxRateLimitRetries {
				return fmt.Errorf("%s %s after %d attempts: %w", method, path, attempt+1, plugin.ErrRateLimited)
			}
			wait := retryAfter(resp.Header)
			c.log.Warn("rate limited, backing off",
				"method", method, "path", path, "wait", wait, "attempt", attempt+1)
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
			continue

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%s %s (status %d): %w", method, path, resp.StatusCode, plugin.ErrAuthFailed)

		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)

		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, truncate(data, 200))
		}

		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("%s %s: decode response: %w", method, path, err)
			}
		}
		return nil
	}
}

// PageDelay pauses between pagination requests. It returns early only when
// the context is cancelled.
func (c *Client) PageDelay(ctx context.Context) error {
	return c.sleep(ctx, c.delay)
}

// retryAfter parses the Retry-After header: delay-seconds or an HTTP date.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return defaultRetryAfter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(data []byte, n int) string {
	s := strings.TrimSpace(string(data))
	if len(s) <= n {
		return s
	}
	return s[:n] + "...[truncated]"
}

// Pace sleeps the default inter-page delay. SDK-backed clients (go-github,
// gitlab) use it between pages since they bypass Client.
func Pace(ctx context.Context) error {
	return sleepCtx(ctx, defaultPageDelay)
}
