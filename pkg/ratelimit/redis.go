package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter is a fixed-window counter shared by every instance
type RedisLimiter struct {
	redis  redis.UniversalClient
	config Config
}

// NewRedisLimiter creates a Redis-backed limiter
func NewRedisLimiter(client redis.UniversalClient, cfg Config) *RedisLimiter {
	return &RedisLimiter{redis: client, config: cfg.withDefaults()}
}

func (rl *RedisLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", rl.config.Prefix, key)
}

// Allow increments the window counter for key. On Redis errors the result
// is allowed and the error is returned so the caller can log it.
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	redisKey := rl.key(key)

	pipe := rl.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{Allowed: true, Limit: rl.config.Limit}, fmt.Errorf("redis error: %w", err)
	}

	resetAfter := ttl.Val()
	// A fresh counter, or one left without expiry by a crashed writer,
	// starts a new window.
	if resetAfter < 0 {
		if err := rl.redis.PExpire(ctx, redisKey, rl.config.Window).Err(); err != nil {
			return Result{Allowed: true, Limit: rl.config.Limit}, fmt.Errorf("redis error: %w", err)
		}
		resetAfter = rl.config.Window
	}

	count := int(incr.Val())
	remaining := rl.config.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:    count <= rl.config.Limit,
		Limit:      rl.config.Limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
	}, nil
}

// Reset clears the counter for a key
func (rl *RedisLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.key(key)).Err()
}

// TTL returns the time until the window for key resets
func (rl *RedisLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return rl.redis.PTTL(ctx, rl.key(key)).Result()
}
