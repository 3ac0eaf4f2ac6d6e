package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable wraps backend failures so callers can treat a broken
// limiter store distinctly from a denied request.
var ErrStoreUnavailable = errors.New("ratelimit: store unavailable")

// incrScript bumps the counter and arms the window TTL on the first hit,
// returning the count and the remaining TTL in milliseconds. Running it as
// one script keeps the counter and its expiry consistent across instances.
var incrScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// RedisStore keeps window counters in Redis so every daemon instance
// enforces the same budget.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store. Keys are namespaced under prefix; an empty
// prefix defaults to "ratelimit".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}

func (s *RedisStore) IncrementAndGet(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	raw, err := incrScript.Run(ctx, s.client, []string{s.key(key)}, window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, errors.Join(ErrStoreUnavailable, err)
	}

	vals, ok := raw.([]any)
	if !ok || len(vals) != 2 {
		return 0, 0, ErrStoreUnavailable
	}
	count, _ := vals[0].(int64)
	ttlMillis, _ := vals[1].(int64)
	return count, time.Duration(ttlMillis) * time.Millisecond, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}
