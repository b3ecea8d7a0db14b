package eutils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/pubmed-search-service/internal/domain"
	"github.com/helixir/pubmed-search-service/internal/observability"
)

// maxResponseSize caps how much of an upstream body is read (10 MiB).
const maxResponseSize = 10 << 20

// TransportConfig configures the upstream transport.
type TransportConfig struct {
	// BaseURL is the E-utilities base URL.
	BaseURL string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// MaxRetries is the number of retry attempts after the first try.
	// The attempt ceiling is therefore MaxRetries+1.
	MaxRetries int

	// RetryDelay is the base delay between retries; it doubles per attempt
	// with jitter, capped at MaxRetryDelay.
	RetryDelay time.Duration

	// MaxRetryDelay caps the backoff delay.
	MaxRetryDelay time.Duration

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// Tool and Contact identify the caller to NCBI; both are sent as
	// query parameters per the E-utilities usage policy.
	Tool    string
	Contact string

	// APIKey is the optional NCBI API key, sent as the api_key parameter.
	APIKey string

	// RateLimit is the sustained requests-per-second budget.
	RateLimit float64

	// Burst is the token bucket capacity.
	Burst int
}

// applyDefaults applies default values to the config.
func (c *TransportConfig) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.MaxRetryDelay == 0 {
		c.MaxRetryDelay = 10 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "pubmed-search-service/1.0"
	}
	if c.RateLimit == 0 {
		if c.APIKey != "" {
			c.RateLimit = 10
		} else {
			c.RateLimit = 3
		}
	}
	if c.Burst == 0 {
		c.Burst = int(c.RateLimit)
		if c.Burst < 1 {
			c.Burst = 1
		}
	}
}

// Transport performs rate-limited GET requests against the E-utilities
// API with bounded timeouts and retry with exponential backoff. All three
// public operations are read-only queries, so every failure mode is safe
// to retry. Safe for concurrent use.
type Transport struct {
	client  *http.Client
	limiter *RateLimiter
	config  TransportConfig
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewTransport creates a transport. Every retry attempt re-acquires a
// rate-limiter token, so retries consume budget like first attempts.
func NewTransport(cfg TransportConfig, logger zerolog.Logger, metrics *observability.Metrics) *Transport {
	cfg.applyDefaults()

	return &Transport{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: NewRateLimiter(cfg.RateLimit, cfg.Burst),
		config:  cfg,
		logger:  logger.With().Str("component", "eutils-transport").Logger(),
		metrics: metrics,
	}
}

// Limiter exposes the transport's rate limiter for monitoring.
func (t *Transport) Limiter() *RateLimiter {
	return t.limiter
}

// Get performs a GET against the named E-utilities endpoint (for example
// "esearch.fcgi") with the given query parameters and returns the raw
// response body.
//
// Transient failures (timeout, network error, 429, 5xx) are retried with
// exponential backoff up to the attempt ceiling and then surface as a
// domain.TransientUpstreamError. Non-retryable 4xx responses fail
// immediately with a domain.InvalidRequestError. Context cancellation is
// returned as-is.
func (t *Transport) Get(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	u, err := url.Parse(t.config.BaseURL + "/" + endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	q := make(url.Values, len(query)+3)
	for k, vs := range query {
		q[k] = vs
	}
	if t.config.Tool != "" {
		q.Set("tool", t.config.Tool)
	}
	if t.config.Contact != "" {
		q.Set("email", t.config.Contact)
	}
	if t.config.APIKey != "" {
		q.Set("api_key", t.config.APIKey)
	}
	u.RawQuery = q.Encode()

	attempts := t.config.MaxRetries + 1

	var lastErr error
	var lastStatus int
	var retryAfter time.Duration

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if t.metrics != nil {
				t.metrics.UpstreamRetries.WithLabelValues(endpoint).Inc()
			}
		}

		if err := t.waitForToken(ctx); err != nil {
			return nil, err
		}

		body, status, hdr, err := t.attempt(ctx, endpoint, u.String())
		if err == nil && status == http.StatusOK {
			return body, nil
		}
		retryAfter = RetryAfterDelay(hdr)

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = err
			lastStatus = 0
			t.countFailure(endpoint, "network")
		} else {
			lastStatus = status
			lastErr = fmt.Errorf("upstream returned status %d", status)

			if !retryableStatus(status) {
				t.countFailure(endpoint, "invalid")
				return nil, domain.NewInvalidRequestError(endpoint,
					fmt.Sprintf("upstream rejected request with status %d: %s", status, truncate(string(body), 200)))
			}

			if status == http.StatusTooManyRequests {
				t.countFailure(endpoint, "rate_limited")
				if t.metrics != nil {
					t.metrics.UpstreamRateLimited.WithLabelValues(endpoint).Inc()
				}
			} else {
				t.countFailure(endpoint, "status_5xx")
			}
		}

		if attempt < attempts-1 {
			delay := t.backoff(attempt)
			if retryAfter > delay {
				delay = retryAfter
			}
			t.logger.Debug().
				Str("endpoint", endpoint).
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Err(lastErr).
				Msg("retrying upstream request")
			if err := sleepContext(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	return nil, domain.NewTransientUpstreamError(endpoint, attempts, lastStatus, lastErr)
}

// attempt issues a single HTTP request. The returned error is nil whenever
// a response was received, regardless of status; the third return value is
// the Retry-After header for rate-limited responses.
func (t *Transport) attempt(ctx context.Context, endpoint, fullURL string) ([]byte, int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, 0, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", t.config.UserAgent)

	start := time.Now()
	if t.metrics != nil {
		t.metrics.UpstreamRequestsTotal.WithLabelValues(endpoint).Inc()
	}

	resp, err := t.client.Do(req)
	if t.metrics != nil {
		t.metrics.UpstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, 0, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, 0, "", fmt.Errorf("failed to read response: %w", err)
	}

	return body, resp.StatusCode, resp.Header.Get("Retry-After"), nil
}

// waitForToken blocks on the rate limiter, recording the wait duration.
func (t *Transport) waitForToken(ctx context.Context) error {
	start := time.Now()
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}
	if t.metrics != nil {
		t.metrics.RateLimitWaitDuration.Observe(time.Since(start).Seconds())
	}
	return nil
}

// backoff returns the jittered exponential delay for the given attempt.
func (t *Transport) backoff(attempt int) time.Duration {
	delay := t.config.RetryDelay << uint(attempt)
	if delay > t.config.MaxRetryDelay {
		delay = t.config.MaxRetryDelay
	}
	// Up to 25% jitter to avoid synchronized retries.
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}

// RetryAfterDelay parses a Retry-After header value into a delay, or zero
// when absent or unparseable.
func RetryAfterDelay(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.ParseInt(header, 10, 64); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// retryableStatus reports whether the status code indicates a transient
// condition: 429 from the upstream's own limiter or any 5xx.
func retryableStatus(status int) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500 && status < 600
}

// sleepContext waits for the duration, respecting context cancellation.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// countFailure increments the failed-request counter for a reason label.
func (t *Transport) countFailure(endpoint, reason string) {
	if t.metrics != nil {
		t.metrics.UpstreamRequestsFailed.WithLabelValues(endpoint, reason).Inc()
	}
}

// truncate shortens s for inclusion in error messages.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
