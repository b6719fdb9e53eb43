package dispatch

import (
	"context"
	"time"

	"dialer-platform/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RunLock is a redis lease ensuring only one replica runs a dispatch pass at
// a time. The state store's conditional updates keep concurrent passes safe
// anyway; the lock just avoids wasted provider calls losing those races.
type RunLock struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewRunLock(rdb *redis.Client, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RunLock{rdb: rdb, key: "dispatch:run-lock", ttl: ttl}
}

// Acquire takes the lease. On success the returned release func gives it
// back; release is safe to call after the TTL already expired.
func (l *RunLock) Acquire(ctx context.Context) (bool, func(), error) {
	token := uuid.NewString()
	held, err := utils.AcquireRunLock(ctx, l.rdb, l.key, token, l.ttl)
	if err != nil || !held {
		return false, nil, err
	}
	release := func() {
		_ = utils.ReleaseRunLock(context.WithoutCancel(ctx), l.rdb, l.key, token)
	}
	return true, release, nil
}
