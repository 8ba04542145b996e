package apiguard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// DefaultCacheTTL matches the hosting application's default validity period.
const DefaultCacheTTL = time.Hour

const defaultCachePrefix = "cache"

// ResponseCache memoizes the results of idempotent, deterministic calls in
// the shared store for a bounded time. Caching is best-effort, never a
// correctness dependency: when the store is unreachable, or a value fails to
// encode or decode, the wrapped operation simply runs and its result is
// returned; the failure is logged at warning level and contained.
type ResponseCache struct {
	store   Store
	prefix  string
	ttl     time.Duration
	logger  Logger
	metrics *Collector
}

// NewResponseCache creates a cache over store with the given default TTL.
// store may be nil, which turns every lookup into a miss and every Wrap into
// a plain invocation. A nil logger disables logging; metrics may be nil.
func NewResponseCache(store Store, ttl time.Duration, logger Logger, metrics *Collector) *ResponseCache {
	if logger == nil {
		logger = NopLogger()
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ResponseCache{
		store:   store,
		prefix:  defaultCachePrefix,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

// Key derives a deterministic cache key from a logical operation name and
// its ordered arguments. Equal arguments always produce equal keys:
// encoding/json canonicalizes map key order, and positional order is
// preserved as given. Unencodable arguments (NaN, channels, ...) cannot be
// keyed; Key degrades to the operation name alone, but Wrap and Cached
// bypass the cache entirely for such calls so distinct arguments never share
// an entry.
func (c *ResponseCache) Key(name string, parts ...any) string {
	key, err := c.key(name, parts)
	if err != nil {
		c.logger.Warn("cache key derivation failed", "name", name, "error", err)
		sum := sha256.Sum256(nil)
		return c.prefix + ":" + name + ":" + hex.EncodeToString(sum[:])
	}
	return key
}

func (c *ResponseCache) key(name string, parts []any) (string, error) {
	payload, err := json.Marshal(parts)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return c.prefix + ":" + name + ":" + hex.EncodeToString(sum[:]), nil
}

// Get returns the raw bytes stored at key. A store error or an expired entry
// reads as a miss.
func (c *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.store == nil {
		return nil, false
	}
	value, err := c.store.Get(ctx, key)
	if err == ErrNotFound {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	return value, true
}

// Set stores raw bytes at key for ttl (the cache default when ttl <= 0).
// Failures are logged and swallowed.
func (c *ResponseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if c.store == nil {
		return false
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	if err := c.store.Set(ctx, key, value, ttl); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
		return false
	}
	return true
}

// Delete removes a single entry.
func (c *ResponseCache) Delete(ctx context.Context, key string) bool {
	if c.store == nil {
		return false
	}
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.Warn("cache delete failed", "key", key, "error", err)
		return false
	}
	return true
}

// DeleteMatching bulk-evicts entries whose keys match a glob-style pattern,
// e.g. cache.DeleteMatching(ctx, "cache:search:*").
func (c *ResponseCache) DeleteMatching(ctx context.Context, pattern string) int64 {
	if c.store == nil {
		return 0
	}
	deleted, err := c.store.DeleteMatching(ctx, pattern)
	if err != nil {
		c.logger.Warn("cache pattern delete failed", "pattern", pattern, "error", err)
	}
	return deleted
}

// Wrap memoizes op under the key derived from name and parts. On a hit the
// stored value is returned without invoking op; on a miss op runs and, if it
// succeeds, its JSON-encoded result is stored for ttl. Errors from op are
// returned as-is and nothing is stored.
func (c *ResponseCache) Wrap(ctx context.Context, name string, parts []any, ttl time.Duration, op func(context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	return Cached(ctx, c, name, parts, ttl, op)
}

// Cached is the typed form of ResponseCache.Wrap. Values must round-trip
// through JSON; a value that fails to decode is treated as a miss and a
// value that fails to encode is returned uncached.
func Cached[T any](ctx context.Context, c *ResponseCache, name string, parts []any, ttl time.Duration, op func(context.Context) (T, error)) (T, error) {
	if c == nil || c.store == nil {
		return op(ctx)
	}

	// A call whose arguments cannot be keyed must not share an entry with
	// any other call, so the cache is bypassed for it entirely.
	key, err := c.key(name, parts)
	if err != nil {
		c.logger.Warn("cache key derivation failed, bypassing cache", "name", name, "error", err)
		return op(ctx)
	}

	if raw, ok := c.Get(ctx, key); ok {
		var value T
		err := json.Unmarshal(raw, &value)
		if err == nil {
			c.recordCache(true)
			return value, nil
		}
		c.logger.Warn("cache decode failed, treating as miss", "key", key, "error", err)
	}
	c.recordCache(false)

	value, err := op(ctx)
	if err != nil {
		return value, err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache encode failed, result not cached", "key", key, "error", err)
		return value, nil
	}
	c.Set(ctx, key, raw, ttl)
	return value, nil
}

func (c *ResponseCache) recordCache(hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCache(hit)
	}
}
