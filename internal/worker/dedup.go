package worker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisDedup struct {
	rdb *redis.Client
}

func NewRedisDedup(rdb *redis.Client) *RedisDedup {
	return &RedisDedup{rdb: rdb}
}

func (d *RedisDedup) Seen(ctx context.Context, key string) (bool, error) {
	n, err := d.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *RedisDedup) Mark(ctx context.Context, key string, ttl time.Duration) error {
	return d.rdb.Set(ctx, key, "true", ttl).Err()
}
