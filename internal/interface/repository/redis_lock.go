package repository

import (
	"context"
	"fmt"
	"time"

	"rental-notify-service/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if this holder still owns it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX leases
type RedisLocker struct {
	client    redis.UniversalClient
	namespace string
}

// NewRedisLocker creates a lease locker under namespace
func NewRedisLocker(client redis.UniversalClient, namespace string) repository.Locker {
	return &RedisLocker{client: client, namespace: namespace}
}

// TryLock acquires key for ttl. A nil release with nil error means another holder has it.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	fullKey := l.namespace + ":" + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", fullKey, err)
	}
	if !ok {
		return nil, nil
	}

	return func() {
		// The lease may already have expired; releasing is best effort.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{fullKey}, token).Err()
	}, nil
}

// LocalLocker always grants the lease; used for single-replica deployments without Redis
type LocalLocker struct{}

func (LocalLocker) TryLock(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}
