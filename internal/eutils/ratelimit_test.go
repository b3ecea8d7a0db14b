package eutils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	t.Run("allows up to burst immediately", func(t *testing.T) {
		limiter := NewRateLimiter(1, 3)

		assert.True(t, limiter.Allow())
		assert.True(t, limiter.Allow())
		assert.True(t, limiter.Allow())
		assert.False(t, limiter.Allow())
	})

	t.Run("tokens replenish over time", func(t *testing.T) {
		limiter := NewRateLimiter(100, 1)
		require.True(t, limiter.Allow())
		require.False(t, limiter.Allow())

		time.Sleep(20 * time.Millisecond)
		assert.True(t, limiter.Allow())
	})
}

func TestRateLimiter_Wait(t *testing.T) {
	t.Run("returns immediately when tokens are available", func(t *testing.T) {
		limiter := NewRateLimiter(3, 3)

		start := time.Now()
		err := limiter.Wait(context.Background())
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("blocks until a token becomes available", func(t *testing.T) {
		limiter := NewRateLimiter(20, 1)
		require.True(t, limiter.Allow())

		start := time.Now()
		err := limiter.Wait(context.Background())
		require.NoError(t, err)
		// At 20 rps the next token is ~50ms away.
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		limiter := NewRateLimiter(0.1, 1)
		require.True(t, limiter.Allow())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := limiter.Wait(ctx)
		assert.Error(t, err)
	})
}

func TestRateLimiter_Tokens(t *testing.T) {
	limiter := NewRateLimiter(3, 3)
	assert.InDelta(t, 3, limiter.Tokens(), 0.1)

	require.True(t, limiter.Allow())
	assert.InDelta(t, 2, limiter.Tokens(), 0.1)
}

func TestRateLimiter_SetRate(t *testing.T) {
	limiter := NewRateLimiter(3, 3)
	limiter.SetRate(10)
	limiter.SetBurst(10)

	// The raised budget admits a larger burst once refilled.
	time.Sleep(time.Second + 100*time.Millisecond)
	allowed := 0
	for i := 0; i < 12; i++ {
		if limiter.Allow() {
			allowed++
		}
	}
	assert.GreaterOrEqual(t, allowed, 9)
	assert.LessOrEqual(t, allowed, 10)
}
