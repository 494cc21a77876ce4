package repository

import (
	"context"
	"time"
)

// Locker grants a named lease to a single holder across replicas
type Locker interface {
	// TryLock returns a release func when the lease was acquired, nil otherwise
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
