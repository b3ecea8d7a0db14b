package eutils

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/pubmed-search-service/internal/observability"
)

func TestInFlightRegistry_Do(t *testing.T) {
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())

	t.Run("single caller invokes the producer once", func(t *testing.T) {
		registry := NewInFlightRegistry(metrics)

		var calls int32
		v, shared, err := registry.Do("fp", func() (interface{}, error) {
			atomic.AddInt32(&calls, 1)
			return "result", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "result", v)
		assert.False(t, shared)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("concurrent callers share one producer invocation", func(t *testing.T) {
		registry := NewInFlightRegistry(metrics)

		var calls int32
		started := make(chan struct{})
		release := make(chan struct{})

		producer := func() (interface{}, error) {
			atomic.AddInt32(&calls, 1)
			close(started)
			<-release
			return "shared-result", nil
		}

		const callers = 10
		results := make([]interface{}, callers)
		errs := make([]error, callers)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[0], _, errs[0] = registry.Do("fp", producer)
		}()
		<-started

		for i := 1; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], _, errs[i] = registry.Do("fp", producer)
			}(i)
		}
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		for i := 0; i < callers; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, "shared-result", results[i])
		}
	})

	t.Run("errors propagate to every attached caller", func(t *testing.T) {
		registry := NewInFlightRegistry(metrics)

		boom := errors.New("upstream exploded")
		_, _, err := registry.Do("fp", func() (interface{}, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("entries do not persist after settlement", func(t *testing.T) {
		registry := NewInFlightRegistry(metrics)

		var calls int32
		producer := func() (interface{}, error) {
			return atomic.AddInt32(&calls, 1), nil
		}

		v1, _, err := registry.Do("fp", producer)
		require.NoError(t, err)
		v2, _, err := registry.Do("fp", producer)
		require.NoError(t, err)

		// Sequential calls each invoke the producer: not a cache.
		assert.Equal(t, int32(1), v1)
		assert.Equal(t, int32(2), v2)
	})

	t.Run("distinct fingerprints never share", func(t *testing.T) {
		registry := NewInFlightRegistry(metrics)

		var calls int32

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				fp := string(rune('a' + i))
				_, _, _ = registry.Do(fp, func() (interface{}, error) {
					atomic.AddInt32(&calls, 1)
					return fp, nil
				})
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	})
}
