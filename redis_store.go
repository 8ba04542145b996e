package apiguard

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a Redis client. Counter atomicity is
// delegated to a Lua script so concurrent processes observe a strict total
// order of admission decisions.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing Redis client. The caller keeps ownership
// of connection pool configuration and timeouts.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisStoreAddr dials addr and verifies connectivity before returning.
func NewRedisStoreAddr(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

// incrScript increments the counter and arms its TTL only when the counter is
// new, so the window boundary is pinned to the first request of the window.
var incrScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Incr implements Store.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	res, err := incrScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Result()
	if err != nil {
		return 0, err
	}
	count, ok := res.(int64)
	if !ok {
		return 0, errors.New("apiguard: unexpected INCR reply type")
	}
	return count, nil
}

// GetCount implements Store.
func (s *RedisStore) GetCount(ctx context.Context, key string) (int64, error) {
	count, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// DeleteMatching implements Store. It walks the keyspace with SCAN rather
// than KEYS so large instances are not blocked.
func (s *RedisStore) DeleteMatching(ctx context.Context, pattern string) (int64, error) {
	var deleted int64
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			deleted += n
			if err != nil {
				return deleted, err
			}
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
