package settings

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a read-through cache in front of another Source. Redis failures are logged
// and fall through to the next source so slot listing keeps working without the cache.
type RedisCache struct {
	rdb    redis.Cmdable
	next   Source
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewRedisCache(rdb redis.Cmdable, next Source, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisCache{rdb: rdb, next: next, ttl: ttl, prefix: "sched-settings:", logger: logger}
}

func (c *RedisCache) Settings(ctx context.Context, providerID string) (SchedulingSettings, error) {
	key := c.prefix + providerID
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached SchedulingSettings
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			return cached, nil
		}
		c.logger.Warn("settings cache entry corrupt", "provider_id", providerID)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("settings cache read failed", "provider_id", providerID, "err", err)
	}

	s, err := c.next.Settings(ctx, providerID)
	if err != nil {
		return SchedulingSettings{}, err
	}
	if encoded, err := json.Marshal(s); err == nil {
		if err := c.rdb.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			c.logger.Warn("settings cache write failed", "provider_id", providerID, "err", err)
		}
	}
	return s, nil
}

func (c *RedisCache) Invalidate(ctx context.Context, providerID string) error {
	return c.rdb.Del(ctx, c.prefix+providerID).Err()
}
