package eutils

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter wraps a token bucket rate limiter for controlling request
// rates to the E-utilities API. It is safe for concurrent use because the
// underlying rate.Limiter is goroutine-safe for all operations, and waiting
// callers are served in FIFO order so no caller starves while tokens are
// being granted to others.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a new rate limiter.
// ratePerSecond is the sustained rate of requests per second.
// burst is the maximum burst size (number of tokens that can be consumed at once).
//
// NCBI budgets:
//   - NewRateLimiter(3, 3) without an API key
//   - NewRateLimiter(10, 10) with an API key
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Wait blocks until a request is allowed or the context is canceled.
// It returns an error only if the context is canceled or the deadline is
// exceeded; it never fails because the bucket is empty.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow returns true if a request is allowed without waiting.
// It consumes one token if allowed, and returns false if no tokens are available.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// SetRate updates the rate limit while preserving the current burst size.
func (r *RateLimiter) SetRate(ratePerSecond float64) {
	r.limiter.SetLimit(rate.Limit(ratePerSecond))
}

// SetBurst updates the burst size.
func (r *RateLimiter) SetBurst(burst int) {
	r.limiter.SetBurst(burst)
}

// Tokens returns the current number of available tokens. The count never
// exceeds the configured burst and is useful for monitoring and tests that
// assert cache hits consume no budget.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
