// Package eutils provides the access layer that mediates every call to
// the NCBI E-utilities API.
//
// The layer composes four pieces:
//
//   - RateLimiter: token-bucket budget (3 req/s, 10 req/s with an API key)
//   - ResponseCache: TTL cache with an optional fingerprint-keyed disk tier
//   - InFlightRegistry: collapses concurrent identical requests into one call
//   - Transport: HTTP GET with bounded timeout and retry with backoff
//
// Callers compute a request fingerprint, consult the cache, attach to any
// identical in-flight call, and only then issue a rate-limited upstream
// request. Cache hits never consume a rate-limiter token; every retry
// attempt does.
package eutils
