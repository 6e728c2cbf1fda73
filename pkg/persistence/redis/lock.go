package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another owner holds the lock.
var ErrLockHeld = errors.New("lock is held by another owner")

var unlockScript = backend.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Locker guards execution ownership across processes with SET NX PX.
type Locker struct {
	client *backend.Client
	prefix string
}

func NewLocker(client *backend.Client, prefix string) *Locker {
	return &Locker{
		client: client,
		prefix: prefix,
	}
}

// TryLock acquires key for ttl without waiting and returns the function that
// releases it. The lock value is a random token so only the owner can release it.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(ctx context.Context) error, error) {
	lockKey := l.prefix + "lock:" + key
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error acquiring lock: %w", err)
	}

	if !acquired {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
	}

	return func(ctx context.Context) error {
		return unlockScript.Run(ctx, l.client, []string{lockKey}, token).Err()
	}, nil
}
