package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLimiter(t *testing.T) {
	ctx := context.Background()

	t.Run("admits up to the limit", func(t *testing.T) {
		_, client := setupRedis(t)
		rl := NewRedisLimiter(client, Config{Limit: 3, Window: time.Minute, Prefix: "test"})

		for i := 0; i < 3; i++ {
			res, err := rl.Allow(ctx, "org:1")
			require.NoError(t, err)
			assert.True(t, res.Allowed, "request %d", i)
			assert.Equal(t, 2-i, res.Remaining)
		}

		res, err := rl.Allow(ctx, "org:1")
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining)
		assert.Greater(t, res.ResetAfter, time.Duration(0))

		res, err = rl.Allow(ctx, "org:2")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("window expiry resets the counter", func(t *testing.T) {
		mr, client := setupRedis(t)
		rl := NewRedisLimiter(client, Config{Limit: 1, Window: time.Minute, Prefix: "test"})

		res, err := rl.Allow(ctx, "org:1")
		require.NoError(t, err)
		require.True(t, res.Allowed)

		res, err = rl.Allow(ctx, "org:1")
		require.NoError(t, err)
		require.False(t, res.Allowed)

		mr.FastForward(61 * time.Second)

		res, err = rl.Allow(ctx, "org:1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("window is fixed, not sliding", func(t *testing.T) {
		mr, client := setupRedis(t)
		rl := NewRedisLimiter(client, Config{Limit: 10, Window: time.Minute, Prefix: "test"})

		_, err := rl.Allow(ctx, "org:1")
		require.NoError(t, err)
		mr.FastForward(40 * time.Second)
		_, err = rl.Allow(ctx, "org:1")
		require.NoError(t, err)

		ttl, err := rl.TTL(ctx, "org:1")
		require.NoError(t, err)
		assert.LessOrEqual(t, ttl, 20*time.Second)
	})

	t.Run("reset", func(t *testing.T) {
		_, client := setupRedis(t)
		rl := NewRedisLimiter(client, Config{Limit: 1, Window: time.Minute, Prefix: "test"})

		_, _ = rl.Allow(ctx, "org:1")
		require.NoError(t, rl.Reset(ctx, "org:1"))
		res, err := rl.Allow(ctx, "org:1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("fails open on redis errors", func(t *testing.T) {
		mr, client := setupRedis(t)
		rl := NewRedisLimiter(client, Config{Limit: 1, Window: time.Minute})
		mr.Close()

		res, err := rl.Allow(ctx, "org:1")
		assert.Error(t, err)
		assert.True(t, res.Allowed)
	})
}

func TestLocalLimiter(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	l := NewLocalLimiter(Config{Limit: 2, Window: time.Hour})
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, "org:1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := l.Allow(ctx, "org:1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 30*time.Minute, res.ResetAfter)

	other, err := l.Allow(ctx, "org:2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	now = now.Add(30 * time.Minute)
	res, err = l.Allow(ctx, "org:1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultInviteConfig(), cfg)

	res, err := Unlimited{}.Allow(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
