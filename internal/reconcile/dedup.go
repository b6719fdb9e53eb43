package reconcile

import (
	"context"
	"time"

	"dialer-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RedisFilter implements DeliveryFilter with a per-call-id marker that is set
// only after the report has been durably handled. The TTL only needs to
// outlive the provider's redelivery horizon.
type RedisFilter struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisFilter(rdb *redis.Client, ttl time.Duration) *RedisFilter {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisFilter{rdb: rdb, ttl: ttl}
}

func deliveryKey(callID string) string { return "webhook:delivery:" + callID }

func (f *RedisFilter) Seen(ctx context.Context, callID string) (bool, error) {
	n, err := f.rdb.Exists(ctx, deliveryKey(callID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (f *RedisFilter) MarkDelivered(ctx context.Context, callID string) error {
	_, err := utils.MarkFirstDelivery(ctx, f.rdb, deliveryKey(callID), f.ttl)
	return err
}
