// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package apiclient is the shared HTTP transport of the external source
// adapters.
//
// Every request passes through, in order:
//
//   - a circuit breaker per provider (sony/gobreaker)
//   - a minimum inter-request interval chosen by API tier (x/time/rate)
//   - bounded retry on HTTP 429 honoring Retry-After, else exponential backoff
//
// After MaxRetries rate-limited attempts the call fails with ErrRateLimited;
// adapters treat that as "no data" so the pipeline degrades gracefully.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/marquee/internal/metrics"
)

// Sentinel errors returned by Client.
var (
	// ErrRateLimited is returned once the 429 retry budget is exhausted.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrCircuitOpen is returned while the provider's breaker rejects calls.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrNotFound is returned for HTTP 404.
	ErrNotFound = errors.New("resource not found")
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 10 << 20

// StatusError is returned for unexpected non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Tier is the API plan of a provider account.
type Tier string

const (
	TierFree     Tier = "free"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// MinInterval returns the minimum spacing between requests for a tier.
func (t Tier) MinInterval() time.Duration {
	switch t {
	case TierPremium:
		return 25 * time.Millisecond
	case TierStandard:
		return 100 * time.Millisecond
	default:
		return 250 * time.Millisecond
	}
}

// Config configures a Client.
type Config struct {
	// Name labels metrics, logs and the circuit breaker.
	Name string

	BaseURL string

	// Timeout is the hard per-attempt HTTP timeout.
	Timeout time.Duration

	Tier Tier

	// MinInterval overrides the tier interval when non-zero.
	MinInterval time.Duration

	// MaxRetries is the number of retries after a 429.
	MaxRetries int

	// BaseBackoff is the first exponential backoff step; MaxBackoff caps it.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// Headers are added to every request (auth, API version).
	Headers map[string]string

	// HTTPClient replaces the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client performs rate-limited, retried JSON GET requests.
type Client struct {
	name        string
	baseURL     string
	http        *http.Client
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[[]byte]
	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	headers     map[string]string
	logger      zerolog.Logger
}

// New creates a Client, applying defaults for unset fields.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func New(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	interval := cfg.MinInterval
	if interval <= 0 {
		interval = cfg.Tier.MinInterval()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		name:        cfg.Name,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		http:        httpClient,
		limiter:     rate.NewLimiter(rate.Every(interval), 1),
		breaker:     newBreaker(cfg.Name, logger),
		maxRetries:  cfg.MaxRetries,
		baseBackoff: cfg.BaseBackoff,
		maxBackoff:  cfg.MaxBackoff,
		headers:     cfg.Headers,
		logger:      logger.With().Str("component", "apiclient").Str("source", cfg.Name).Logger(),
	}
}

// Name returns the client name.
func (c *Client) Name() string {
	return c.name
}

// GetJSON issues GET baseURL+path?query and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.GetJSONWithHeaders(ctx, path, query, nil, out)
}

// GetJSONWithHeaders is GetJSON with extra request headers, e.g. a per-user
// bearer token. Extra headers override the configured ones.
func (c *Client) GetJSONWithHeaders(ctx context.Context, path string, query url.Values, headers map[string]string, out interface{}) error {
	start := time.Now()

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.doWithRetry(ctx, path, query, headers)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%s: %w", c.name, ErrCircuitOpen)
		}
		metrics.RecordSourceRequest(c.name, statusLabel(err), time.Since(start))
		return err
	}
	metrics.RecordSourceRequest(c.name, "success", time.Since(start))

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.name, err)
	}
	return nil
}

func (c *Client) doWithRetry(ctx context.Context, path string, query url.Values, extra map[string]string) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}
		for k, v := range extra {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s request failed: %w", c.name, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := resp.Header.Get("Retry-After")
			_ = resp.Body.Close()
			metrics.SourceRateLimited.WithLabelValues(c.name).Inc()

			if attempt >= c.maxRetries {
				return nil, fmt.Errorf("%s: %w after %d retries", c.name, ErrRateLimited, c.maxRetries)
			}

			delay := c.backoff(attempt, retryAfter, time.Now())
			c.logger.Debug().Int("attempt", attempt+1).Dur("delay", delay).Msg("rate limited, backing off")

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
			continue
		}

		return readBody(resp)
	}
}

// backoff returns the wait before the next attempt. A parseable Retry-After
// (seconds or HTTP date) wins over the exponential schedule; both are capped.
func (c *Client) backoff(attempt int, retryAfter string, now time.Time) time.Duration {
	delay := c.baseBackoff << uint(attempt)
	if retryAfter != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs >= 0 {
			delay = time.Duration(secs) * time.Second
		} else if at, err := http.ParseTime(retryAfter); err == nil {
			delay = max(at.Sub(now), 0)
		}
	}
	if delay > c.maxBackoff || delay < 0 {
		delay = c.maxBackoff
	}
	return delay
}

func readBody(resp *http.Response) ([]byte, error) {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		snippet := string(body)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

func statusLabel(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
