package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKV is the subset of redis.Cmdable used by RedisCache.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisCache stores entries as JSON strings under a key prefix, letting Redis
// expire them.
type RedisCache struct {
	rc     redisKV
	prefix string
}

// NewRedisCache wraps a Redis client. prefix is prepended to every key.
func NewRedisCache(rc redisKV, prefix string) *RedisCache {
	return &RedisCache{rc: rc, prefix: prefix}
}

// Get implements Cache. A missing key is a miss, not an error.
func (c *RedisCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := c.rc.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode cached entry: %w", err)
	}
	if e.Kind != KindFound && e.Kind != KindNotFound {
		return Entry{}, false, fmt.Errorf("cached entry has unknown kind %q", e.Kind)
	}
	return e, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, e Entry, ttl time.Duration) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := c.rc.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
