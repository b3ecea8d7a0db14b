package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the PubMed search service.
// Metrics are organized by subsystem: operations (the public Search /
// FetchSummary / GetFullText surface), upstream (E-utilities HTTP calls),
// cache, and in-flight deduplication. All collectors are registered on the
// supplied registerer via promauto.
type Metrics struct {
	// OperationsTotal counts public operations, labeled by operation.
	OperationsTotal *prometheus.CounterVec

	// OperationsFailed counts public operations that returned an error,
	// labeled by operation and error kind.
	OperationsFailed *prometheus.CounterVec

	// OperationDuration observes public operation duration in seconds,
	// labeled by operation.
	OperationDuration *prometheus.HistogramVec

	// UpstreamRequestsTotal counts HTTP requests issued to the E-utilities
	// API, labeled by endpoint. Each retry attempt counts separately.
	UpstreamRequestsTotal *prometheus.CounterVec

	// UpstreamRequestsFailed counts upstream requests that failed, labeled
	// by endpoint and error kind.
	UpstreamRequestsFailed *prometheus.CounterVec

	// UpstreamRequestDuration observes upstream request duration in
	// seconds, labeled by endpoint.
	UpstreamRequestDuration *prometheus.HistogramVec

	// UpstreamRetries counts retry attempts, labeled by endpoint.
	UpstreamRetries *prometheus.CounterVec

	// UpstreamRateLimited counts 429 responses from upstream, labeled by endpoint.
	UpstreamRateLimited *prometheus.CounterVec

	// RateLimitWaitDuration observes time spent waiting for a rate-limiter
	// token before an upstream attempt, in seconds.
	RateLimitWaitDuration prometheus.Histogram

	// CacheHits counts cache hits, labeled by tier (memory, disk).
	CacheHits *prometheus.CounterVec

	// CacheMisses counts cache misses (absent or expired).
	CacheMisses prometheus.Counter

	// CacheWriteFailures counts swallowed persistence-tier write failures.
	CacheWriteFailures prometheus.Counter

	// InFlightShared counts callers that attached to an already in-flight
	// identical request instead of issuing their own upstream call.
	InFlightShared prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all collectors registered
// on reg. The namespace is used as a prefix for all metric names. Tests
// pass a fresh prometheus.NewRegistry so multiple instances can coexist.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of public operations served",
		}, []string{"operation"}),
		OperationsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_failed_total",
			Help:      "Total number of public operations that returned an error",
		}, []string{"operation", "reason"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of public operations in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),

		UpstreamRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of HTTP requests issued to the E-utilities API",
		}, []string{"endpoint"}),
		UpstreamRequestsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_failed_total",
			Help:      "Total number of failed E-utilities requests",
		}, []string{"endpoint", "reason"}),
		UpstreamRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Duration of E-utilities requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),
		UpstreamRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_retries_total",
			Help:      "Total number of retry attempts against the E-utilities API",
		}, []string{"endpoint"}),
		UpstreamRateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_rate_limited_total",
			Help:      "Total number of 429 responses received from upstream",
		}, []string{"endpoint"}),

		RateLimitWaitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limit_wait_duration_seconds",
			Help:      "Time spent waiting for a rate-limiter token in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		}, []string{"tier"}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses (absent or expired)",
		}),
		CacheWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_write_failures_total",
			Help:      "Total number of swallowed persistence-tier write failures",
		}),

		InFlightShared: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inflight_shared_total",
			Help:      "Total number of callers that shared an in-flight identical request",
		}),
	}
}
