package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0
`)

// Locker implements best-effort mutual exclusion with Redis SetNX. Locks
// expire after TTL, so an owner that never releases cannot wedge a key.
type Locker struct {
	R      *redis.Client
	TTL    time.Duration
	Prefix string
}

// Acquire attempts to take the lock. ok reports whether this caller now
// owns it; the returned token is required to release.
func (l Locker) Acquire(ctx context.Context, key string) (string, bool, error) {
	if l.R == nil {
		return "", true, nil
	}
	token := uuid.NewString()
	ok, err := l.R.SetNX(ctx, l.name(key), token, l.ttl()).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return token, ok, nil
}

// Release frees the lock if the token still owns it. Releasing a lock that
// expired or changed hands is a no-op.
func (l Locker) Release(ctx context.Context, key, token string) error {
	if l.R == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, l.R, []string{l.name(key)}, token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

func (l Locker) name(key string) string {
	prefix := l.Prefix
	if prefix == "" {
		prefix = "lock:"
	}
	return prefix + key
}

func (l Locker) ttl() time.Duration {
	if l.TTL <= 0 {
		return time.Minute
	}
	return l.TTL
}
