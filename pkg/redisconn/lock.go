package redisconn

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Mutex is a best-effort distributed lock over SET NX PX. It guards
// operations that must run on at most one replica at a time, such as the
// monitor's optimization sweep. It is advisory: the TTL bounds how long a
// crashed holder can block others.
type Mutex struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	owner  string
}

// NewMutex creates a mutex on the given key with the given TTL.
func NewMutex(client *redis.Client, key string, ttl time.Duration) *Mutex {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Mutex{
		client: client,
		key:    key,
		ttl:    ttl,
		owner:  uuid.NewString(),
	}
}

// TryLock attempts to acquire the lock without blocking. Returns false when
// another owner holds it.
func (m *Mutex) TryLock(ctx context.Context) (bool, error) {
	return m.client.SetNX(ctx, m.key, m.owner, m.ttl).Result()
}

// Unlock releases the lock if this instance still owns it. A lock that
// expired and was re-acquired elsewhere is left alone.
func (m *Mutex) Unlock(ctx context.Context) error {
	const script = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`
	return m.client.Eval(ctx, script, []string{m.key}, m.owner).Err()
}
