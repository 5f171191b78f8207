package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/spec-kit/lifecycle-service/pkg/util"
)

// Options configures a Client for one target system.
type Options struct {
	BaseURL           string
	Headers           map[string]string
	Timeout           time.Duration
	MaxConcurrent     int
	RequestsPerSecond float64
	MaxRetries        int
}

// Client wraps outbound calls to a single external system with a global
// concurrency ceiling, a request rate limit, and bounded retry with backoff.
// The ceiling is shared by every caller holding the same Client, so the
// fetcher and phase actions hitting one system cannot collectively exceed
// its limit.
type Client struct {
	http       *http.Client
	baseURL    string
	headers    map[string]string
	limiter    *rate.Limiter
	inflight   *semaphore.Weighted
	maxRetries int
	logger     *zap.Logger
}

// New builds a client for one target system.
func New(opts Options, logger *zap.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Client{
		http:       &http.Client{Timeout: timeout},
		baseURL:    opts.BaseURL,
		headers:    opts.Headers,
		limiter:    rate.NewLimiter(rate.Limit(rps), maxConcurrent),
		inflight:   semaphore.NewWeighted(int64(maxConcurrent)),
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// GetJSON performs a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, out, time.Now().UnixNano())
}

// GetJSONSeeded is GetJSON with a caller-supplied jitter seed, so callers
// retrying many requests concurrently (one per page) do not back off in
// lockstep.
func (c *Client) GetJSONSeeded(ctx context.Context, path string, query url.Values, out any, seed int64) error {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, out, seed)
}

// PostJSON performs a POST with a JSON body and decodes the response.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, nil, body, out, time.Now().UnixNano())
}

// PutJSON performs a PUT with a JSON body and decodes the response.
func (c *Client) PutJSON(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, nil, body, out, time.Now().UnixNano())
}

// DeleteJSON performs a DELETE and decodes any response body.
func (c *Client) DeleteJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil, out, time.Now().UnixNano())
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any, seed int64) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return util.NewInternalError(fmt.Errorf("encode request body: %w", err))
		}
		payload = encoded
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = 30 * time.Second
	policy.RandomizationFactor = 0
	rng := rand.New(rand.NewSource(seed))

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := policy.NextBackOff()
			if delay == backoff.Stop {
				break
			}
			if wait, ok := retryAfterHint(lastErr); ok && wait > delay {
				delay = wait
			}
			// Spread concurrent retries: up to ±50% seeded jitter.
			delay += time.Duration((rng.Float64() - 0.5) * float64(delay))
			select {
			case <-ctx.Done():
				return util.NewTransient("request cancelled", ctx.Err())
			case <-time.After(delay):
			}
		}

		lastErr = c.attempt(ctx, method, path, query, payload, out)
		if lastErr == nil {
			return nil
		}
		if !util.IsTransient(lastErr) {
			return lastErr
		}
		c.logger.Debug("retrying request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
	}
	return util.NewTransient(fmt.Sprintf("%s %s: retry budget exhausted", method, path), lastErr)
}

func (c *Client) attempt(ctx context.Context, method, path string, query url.Values, payload []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return util.NewTransient("rate limiter wait", err)
	}
	if err := c.inflight.Acquire(ctx, 1); err != nil {
		return util.NewTransient("concurrency ceiling wait", err)
	}
	defer c.inflight.Release(1)

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return util.NewInternalError(err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return util.NewTransient(fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return util.NewRateLimited(parseRetryAfter(resp.Header.Get("Retry-After")))
	case resp.StatusCode == http.StatusNotFound:
		return util.NewNotFound(fmt.Sprintf("%s %s", method, path))
	case resp.StatusCode >= 500:
		return util.NewTransient(fmt.Sprintf("%s %s: status %d", method, path, resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return util.NewPhaseFailure(fmt.Sprintf("%s %s: status %d: %s", method, path, resp.StatusCode, snippet), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return util.NewInternalError(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func parseRetryAfter(header string) float64 {
	if header == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(header, 64)
	if err != nil {
		return 0
	}
	return seconds
}

func retryAfterHint(err error) (time.Duration, bool) {
	domainErr := util.ToDomainError(err)
	if domainErr == nil || domainErr.Code != "RATE_LIMITED" {
		return 0, false
	}
	seconds, ok := domainErr.Details["retry_after_seconds"].(float64)
	if !ok || seconds <= 0 {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}
