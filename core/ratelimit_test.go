package core

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limit int) (*FixedWindowLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	limiter, err := NewFixedWindowLimiter(client, "test:ratelimit", limit, time.Minute)
	require.NoError(t, err)
	// pin the clock so the test never straddles a window boundary
	now := time.Date(2024, 1, 1, 12, 0, 30, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	return limiter, mr
}

func TestFixedWindowLimiter(t *testing.T) {
	ctx := context.Background()

	t.Run("blocks after the limit", func(t *testing.T) {
		limiter, _ := newTestLimiter(t, 2)
		for i := 0; i < 2; i++ {
			ok, err := limiter.Allow(ctx, "send:1")
			require.NoError(t, err)
			assert.True(t, ok)
		}
		ok, err := limiter.Allow(ctx, "send:1")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = limiter.Allow(ctx, "send:2")
		require.NoError(t, err)
		assert.True(t, ok, "keys are counted separately")
	})

	t.Run("next window resets", func(t *testing.T) {
		limiter, _ := newTestLimiter(t, 1)
		ok, _ := limiter.Allow(ctx, "send:1")
		assert.True(t, ok)
		ok, _ = limiter.Allow(ctx, "send:1")
		assert.False(t, ok)

		later := limiter.now().Add(time.Minute)
		limiter.now = func() time.Time { return later }
		ok, err := limiter.Allow(ctx, "send:1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("keys expire", func(t *testing.T) {
		limiter, mr := newTestLimiter(t, 5)
		_, err := limiter.Allow(ctx, "send:1")
		require.NoError(t, err)

		keys := mr.Keys()
		require.Len(t, keys, 1)
		assert.Greater(t, mr.TTL(keys[0]), time.Duration(0))
	})

	t.Run("redis failure", func(t *testing.T) {
		limiter, mr := newTestLimiter(t, 5)
		mr.Close()
		ok, err := limiter.Allow(ctx, "send:1")
		assert.Error(t, err)
		assert.False(t, ok)
	})

	t.Run("nil limiter allows", func(t *testing.T) {
		var limiter *FixedWindowLimiter
		ok, err := limiter.Allow(ctx, "send:1")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestNewFixedWindowLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	_, err := NewFixedWindowLimiter(nil, "", 1, time.Second)
	assert.Error(t, err)
	_, err = NewFixedWindowLimiter(client, "", 0, time.Second)
	assert.Error(t, err)
	_, err = NewFixedWindowLimiter(client, "", 1, time.Microsecond)
	assert.Error(t, err)

	limiter, err := NewFixedWindowLimiter(client, " ", 1, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "riverchat:ratelimit", limiter.prefix)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	client.Close()

	_, err = NewRedisClient(context.Background(), "not a url")
	assert.Error(t, err)
}
