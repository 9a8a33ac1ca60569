package alert

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/document-alerts/internal/models"
	"github.com/feichai0017/document-alerts/pkg/logger"
)

// Locker serializes work on a key. The returned function releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

const (
	defaultLockTTL = 30 * time.Second
	minLockWait    = 10 * time.Millisecond
	maxLockWait    = 200 * time.Millisecond
)

// deletes the lease only while it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds a lease per key in Redis so that processes sharing an
// alert store reconcile a document one at a time. A lease that is not
// released expires after ttl.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger logger.Logger
}

func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration, log logger.Logger) *RedisLocker {
	if prefix == "" {
		prefix = "docalert"
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: log.Named("lock.redis"),
	}
}

func (l *RedisLocker) leaseKey(key string) string {
	return l.prefix + ":lock:" + key
}

// Lock polls until the lease for key is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lease := l.leaseKey(key)
	token := uuid.New().String()

	wait := minLockWait
	for {
		ok, err := l.client.SetNX(ctx, lease, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, models.StoreError("lock", err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if wait *= 2; wait > maxLockWait {
			wait = maxLockWait
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			rctx := context.WithoutCancel(ctx)
			if err := releaseScript.Run(rctx, l.client, []string{lease}, token).Err(); err != nil {
				l.logger.Warn("Failed to release lock",
					logger.String("key", lease),
					logger.Error(err),
				)
			}
		})
	}, nil
}
