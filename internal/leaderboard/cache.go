package leaderboard

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const globalKey = "leaderboard:global"

// RedisCache stores the global window as JSON under a single key.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context) ([]Entry, bool) {
	raw, err := c.rdb.Get(ctx, globalKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("Failed to read leaderboard cache", zap.Error(err))
		}
		return nil, false
	}

	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		zap.L().Warn("Corrupt leaderboard cache entry", zap.Error(err))
		return nil, false
	}
	return entries, true
}

func (c *RedisCache) Set(ctx context.Context, entries []Entry) {
	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, globalKey, raw, c.ttl).Err(); err != nil {
		zap.L().Warn("Failed to write leaderboard cache", zap.Error(err))
	}
}
