package apiguard

import (
	"context"
	"time"
)

// Store is the shared key-value store consumed by the rate limiter and the
// response cache. Any store offering these primitives is substitutable; the
// store's own atomicity (not application-level locking) is what coordinates
// concurrent processes.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Incr atomically increments the counter at key and returns the
	// post-increment value. When the returned value is 1 the counter's
	// time-to-live is set to window, establishing a fixed window whose
	// boundary is the first request after the previous window expired.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)

	// GetCount returns the current counter value, or 0 if the key is absent.
	GetCount(ctx context.Context, key string) (int64, error)

	// Get returns the value stored at key, or ErrNotFound on a miss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value at key with the given time-to-live.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// DeleteMatching removes all keys matching a glob-style pattern and
	// returns the number removed.
	DeleteMatching(ctx context.Context, pattern string) (int64, error)

	// Ping reports store reachability.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
