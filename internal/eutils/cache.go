package eutils

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/pubmed-search-service/internal/domain"
	"github.com/helixir/pubmed-search-service/internal/observability"
)

// DefaultCacheTTL is applied when a persistence directory is configured
// but no TTL is given.
const DefaultCacheTTL = 24 * time.Hour

// CacheEntry is the stored form of one cached value. An entry is valid iff
// now < StoredAt + TTLSeconds; expired entries are treated as absent and
// purged lazily on read.
type CacheEntry struct {
	Fingerprint string          `json:"fingerprint"`
	Value       json.RawMessage `json:"value"`
	StoredAt    time.Time       `json:"stored_at"`
	TTLSeconds  int             `json:"ttl_seconds"`
}

// Expired reports whether the entry is past its TTL at the given instant.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.StoredAt.Add(time.Duration(e.TTLSeconds) * time.Second))
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	// TTL is the lifetime of cached values. A zero or negative TTL with no
	// directory disables caching entirely.
	TTL time.Duration

	// Dir is an optional directory for the persistent tier. Entries are
	// mirrored there as one JSON file per fingerprint. Empty disables
	// persistence without altering in-memory semantics.
	Dir string
}

// ResponseCache maps request fingerprints to previously fetched, parsed
// results with expiration. It has an in-memory tier and an optional disk
// tier; disk I/O failures degrade caching and are never surfaced to the
// calling operation. Safe for concurrent use.
type ResponseCache struct {
	mu      sync.RWMutex
	entries map[string]*CacheEntry

	ttl     time.Duration
	dir     string
	useDisk bool

	logger  zerolog.Logger
	metrics *observability.Metrics

	// now is swappable in tests to exercise expiry without sleeping.
	now func() time.Time
}

// NewResponseCache creates a response cache. Caching is enabled when a TTL
// is configured, or when a directory is configured (in which case
// DefaultCacheTTL applies if no TTL was given). An unusable directory
// degrades the cache to in-memory only.
func NewResponseCache(cfg CacheConfig, logger zerolog.Logger, metrics *observability.Metrics) *ResponseCache {
	ttl := cfg.TTL
	if ttl <= 0 && cfg.Dir != "" {
		ttl = DefaultCacheTTL
	}

	c := &ResponseCache{
		entries: make(map[string]*CacheEntry),
		ttl:     ttl,
		dir:     cfg.Dir,
		logger:  logger.With().Str("component", "response-cache").Logger(),
		metrics: metrics,
		now:     time.Now,
	}

	if c.dir != "" && c.Enabled() {
		if err := os.MkdirAll(c.dir, 0o755); err != nil {
			c.logger.Warn().Err(err).Str("dir", c.dir).
				Msg("cache directory unusable, persistence disabled")
		} else {
			c.useDisk = true
		}
	}

	return c
}

// Enabled reports whether caching is active. When false, Get always misses
// and Set is a no-op.
func (c *ResponseCache) Enabled() bool {
	return c.ttl > 0
}

// TTL returns the configured entry lifetime.
func (c *ResponseCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached value for the fingerprint, or absent for missing
// or expired entries. An in-memory miss falls through to the disk tier
// before declaring absence; disk hits are promoted back into memory.
func (c *ResponseCache) Get(fingerprint string) (json.RawMessage, bool) {
	if !c.Enabled() {
		return nil, false
	}

	now := c.now()

	c.mu.RLock()
	entry, ok := c.entries[fingerprint]
	c.mu.RUnlock()

	if ok {
		if !entry.Expired(now) {
			if c.metrics != nil {
				c.metrics.CacheHits.WithLabelValues("memory").Inc()
			}
			return entry.Value, true
		}
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have
		// refreshed the entry.
		if cur, still := c.entries[fingerprint]; still && cur.Expired(now) {
			delete(c.entries, fingerprint)
		}
		c.mu.Unlock()
	}

	if value, ok := c.readDisk(fingerprint, now); ok {
		if c.metrics != nil {
			c.metrics.CacheHits.WithLabelValues("disk").Inc()
		}
		return value, true
	}

	if c.metrics != nil {
		c.metrics.CacheMisses.Inc()
	}
	return nil, false
}

// Set stores the value under the fingerprint in both tiers, overwriting
// any prior entry. A no-op when caching is disabled.
func (c *ResponseCache) Set(fingerprint string, value json.RawMessage) {
	if !c.Enabled() {
		return
	}

	entry := &CacheEntry{
		Fingerprint: fingerprint,
		Value:       value,
		StoredAt:    c.now(),
		TTLSeconds:  int(c.ttl / time.Second),
	}

	c.mu.Lock()
	c.entries[fingerprint] = entry
	c.mu.Unlock()

	c.writeDisk(entry)
}

// entryPath returns the disk location for a fingerprint. Fingerprints are
// hex digests, so they are safe to use as filenames directly.
func (c *ResponseCache) entryPath(fingerprint string) string {
	return filepath.Join(c.dir, fingerprint+".json")
}

// readDisk attempts a backing-store read. Any failure is treated as a miss.
func (c *ResponseCache) readDisk(fingerprint string, now time.Time) (json.RawMessage, bool) {
	if !c.useDisk {
		return nil, false
	}

	path := c.entryPath(fingerprint)
	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn().Err(domain.NewCacheIOError("read", path, err)).
				Msg("cache read degraded to in-memory only")
		}
		return nil, false
	}

	var entry CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("discarding corrupt cache file")
		_ = os.Remove(path)
		return nil, false
	}

	if entry.Expired(now) {
		_ = os.Remove(path)
		return nil, false
	}

	c.mu.Lock()
	c.entries[fingerprint] = &entry
	c.mu.Unlock()

	return entry.Value, true
}

// writeDisk mirrors the entry to the persistent tier. Failures are logged
// and swallowed; concurrent writers are safe because the rename makes the
// last writer's value authoritative.
func (c *ResponseCache) writeDisk(entry *CacheEntry) {
	if !c.useDisk {
		return
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn().Err(err).Str("fingerprint", entry.Fingerprint).
			Msg("cache entry not serializable, skipping persistence")
		return
	}

	path := c.entryPath(entry.Fingerprint)
	tmp, err := os.CreateTemp(c.dir, "entry-*.tmp")
	if err != nil {
		c.recordWriteFailure(domain.NewCacheIOError("create", path, err))
		return
	}

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		c.recordWriteFailure(domain.NewCacheIOError("write", path, err))
		return
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		c.recordWriteFailure(domain.NewCacheIOError("close", path, err))
		return
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		c.recordWriteFailure(domain.NewCacheIOError("rename", path, err))
	}
}

func (c *ResponseCache) recordWriteFailure(err error) {
	if c.metrics != nil {
		c.metrics.CacheWriteFailures.Inc()
	}
	c.logger.Warn().Err(err).Msg("cache persistence write failed")
}
