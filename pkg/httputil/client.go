// Package httputil wraps net/http with bounded exponential-backoff retry,
// rate limiting, and request logging. All provider HTTP traffic goes
// through this client.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/wonny/gridflow/internal/ratelimit"
	"github.com/wonny/gridflow/pkg/config"
	"github.com/wonny/gridflow/pkg/logger"
)

// ErrRetriesExhausted is returned after the last allowed attempt fails with
// a retryable error. It always wraps the last underlying failure.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Client is an HTTP client bound to one data source. Every attempt passes
// through the source's rate limiter before hitting the network.
type Client struct {
	httpClient *http.Client
	logger     *logger.Logger
	limiter    *ratelimit.Limiter
	source     string
	policy     config.RetryConfig
	headers    map[string]string
}

// New creates a client for the given source using the shared retry policy.
func New(source string, cfg *config.Config, log *logger.Logger, limiter *ratelimit.Limiter) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:  log.WithField("source", source),
		limiter: limiter,
		source:  source,
		policy:  cfg.Retry,
		headers: make(map[string]string),
	}
}

// WithHeader sets a header applied to every request (auth tokens, etc).
func (c *Client) WithHeader(key, value string) *Client {
	c.headers[key] = value
	return c
}

// WithTimeout overrides the per-attempt timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient.Timeout = timeout
	return c
}

// Get performs a GET request with retry. The returned response may carry a
// terminal (non-retryable) error status; callers check StatusCode.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create GET request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	return c.do(req)
}

// GetBody performs a GET request and reads the full response body.
// A terminal error status is returned as an error carrying the status code.
func (c *Client) GetBody(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}

// do executes the request with rate limiting, retry, and logging.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	startTime := time.Now()
	url := req.URL.String()

	resp, err := c.doWithRetry(req)

	duration := time.Since(startTime)
	if err != nil {
		c.logger.WithFields(map[string]interface{}{
			"url":      url,
			"duration": duration,
			"error":    err.Error(),
		}).Error("HTTP request failed")
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"url":         url,
		"status_code": resp.StatusCode,
		"duration":    duration,
	}).Debug("HTTP request completed")

	return resp, nil
}

// doWithRetry runs up to policy.MaxAttempts attempts with exponential
// backoff and jitter. Transport errors, 429, and 5xx are retryable; any
// other status short-circuits immediately.
func (c *Client) doWithRetry(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if err := c.limiter.Acquire(req.Context(), c.source); err != nil {
			// Rate-limit timeouts are caller-visible, never swallowed into
			// the retry loop.
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		switch {
		case err != nil:
			lastErr = err
		case isRetryableStatus(resp.StatusCode):
			lastErr = fmt.Errorf("retryable status code: %d", resp.StatusCode)
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		default:
			return resp, nil
		}

		if attempt == c.policy.MaxAttempts {
			break
		}

		delay := c.backoffDelay(attempt)
		c.logger.WithFields(map[string]interface{}{
			"attempt": attempt,
			"delay":   delay,
			"url":     req.URL.String(),
			"error":   lastErr.Error(),
		}).Warn("Retrying HTTP request")

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, c.policy.MaxAttempts, lastErr)
}

// backoffDelay computes base*multiplier^(attempt-1) plus random jitter,
// capped at the configured ceiling.
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := float64(c.policy.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= c.policy.Multiplier
	}
	if max := float64(c.policy.MaxDelay); delay > max {
		delay = max
	}

	jitter := delay * c.policy.JitterFrac * rand.Float64()
	return time.Duration(delay + jitter)
}

// isRetryableStatus reports whether a status code warrants another attempt.
func isRetryableStatus(statusCode int) bool {
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}
