package eutils

import (
	"golang.org/x/sync/singleflight"

	"github.com/helixir/pubmed-search-service/internal/observability"
)

// InFlightRegistry ensures at most one outstanding upstream call per
// fingerprint. Concurrent callers sharing a fingerprint attach to the same
// pending outcome instead of issuing a second upstream call. Entries are
// removed when the underlying call settles, success or failure, so this is
// not a cache: it only collapses concurrent duplicates and holds nothing
// after settlement.
type InFlightRegistry struct {
	group   singleflight.Group
	metrics *observability.Metrics
}

// NewInFlightRegistry creates an in-flight registry.
func NewInFlightRegistry(metrics *observability.Metrics) *InFlightRegistry {
	return &InFlightRegistry{metrics: metrics}
}

// Do invokes producer for the first caller of the fingerprint and hands
// every concurrent duplicate caller the same outcome. shared reports
// whether this caller received a result produced by another caller's
// invocation.
func (r *InFlightRegistry) Do(fingerprint string, producer func() (interface{}, error)) (v interface{}, shared bool, err error) {
	v, err, shared = r.group.Do(fingerprint, producer)
	if shared && r.metrics != nil {
		r.metrics.InFlightShared.Inc()
	}
	return v, shared, err
}
