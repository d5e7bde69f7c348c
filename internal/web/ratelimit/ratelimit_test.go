package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		errMsg string
	}{
		{"zero limit", Config{Limit: 0, Window: time.Second}, "limit must be greater than 0"},
		{"negative limit", Config{Limit: -1, Window: time.Second}, "limit must be greater than 0"},
		{"zero window", Config{Limit: 1, Window: 0}, "window must be greater than 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTokenBucket(tt.config, 0)
			assert.ErrorContains(t, err, tt.errMsg)

			_, err = NewRedisLimiter(&redis.Client{}, tt.config, "")
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}

	_, err := NewRedisLimiter(nil, DefaultConfig(), "")
	assert.ErrorContains(t, err, "redis client is required")
}

func TestTokenBucket_Allow(t *testing.T) {
	clk := newClock()
	tb, err := newTokenBucket(Config{Limit: 3, Window: 3 * time.Second}, 0, clk.Now)
	require.NoError(t, err)
	defer tb.Close()
	ctx := context.Background()

	for i := 2; i >= 0; i-- {
		info, err := tb.Allow(ctx, "org:1")
		require.NoError(t, err)
		assert.True(t, info.Allowed)
		assert.Equal(t, i, info.Remaining)
		assert.Equal(t, 3, info.Limit)
	}

	info, err := tb.Allow(ctx, "org:1")
	require.NoError(t, err)
	assert.False(t, info.Allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.Equal(t, clk.Now().Add(time.Second), info.ResetAt)

	// other keys have their own bucket
	info, err = tb.Allow(ctx, "org:2")
	require.NoError(t, err)
	assert.True(t, info.Allowed)

	// one token per second
	clk.Advance(time.Second)
	info, err = tb.Allow(ctx, "org:1")
	require.NoError(t, err)
	assert.True(t, info.Allowed)
	info, err = tb.Allow(ctx, "org:1")
	require.NoError(t, err)
	assert.False(t, info.Allowed)
}

func TestTokenBucket_RefillIsCapped(t *testing.T) {
	clk := newClock()
	tb, err := newTokenBucket(Config{Limit: 2, Window: time.Second}, 0, clk.Now)
	require.NoError(t, err)
	defer tb.Close()

	_, err = tb.Allow(context.Background(), "k")
	require.NoError(t, err)
	clk.Advance(time.Hour)

	info, err := tb.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Remaining)
}

func TestTokenBucket_RemoveIdle(t *testing.T) {
	clk := newClock()
	tb, err := newTokenBucket(Config{Limit: 1, Window: time.Second}, 0, clk.Now)
	require.NoError(t, err)
	defer tb.Close()

	tb.Allow(context.Background(), "a")
	clk.Advance(500 * time.Millisecond)
	tb.Allow(context.Background(), "b")
	require.Equal(t, 2, tb.Len())

	clk.Advance(700 * time.Millisecond)
	tb.removeIdle()
	assert.Equal(t, 1, tb.Len())
}

func TestTokenBucket_CloseTwice(t *testing.T) {
	tb, err := NewTokenBucket(DefaultConfig(), time.Millisecond)
	require.NoError(t, err)
	assert.NoError(t, tb.Close())
	assert.NoError(t, tb.Close())
}

func setupRedis(t *testing.T, config Config) (*RedisLimiter, *miniredis.Miniredis, *clock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	limiter, err := NewRedisLimiter(client, config, "metricsd:")
	require.NoError(t, err)
	clk := newClock()
	limiter.now = clk.Now
	return limiter, mr, clk
}

func TestRedisLimiter_Allow(t *testing.T) {
	limiter, mr, clk := setupRedis(t, Config{Limit: 2, Window: time.Minute})
	ctx := context.Background()

	info, err := limiter.Allow(ctx, "org:1")
	require.NoError(t, err)
	assert.True(t, info.Allowed)
	assert.Equal(t, 1, info.Remaining)
	assert.True(t, mr.Exists("metricsd:ratelimit:org:1"))

	clk.Advance(10 * time.Second)
	info, err = limiter.Allow(ctx, "org:1")
	require.NoError(t, err)
	assert.True(t, info.Allowed)
	assert.Equal(t, 0, info.Remaining)

	first := clk.Now().Add(-10 * time.Second)
	info, err = limiter.Allow(ctx, "org:1")
	require.NoError(t, err)
	assert.False(t, info.Allowed)
	assert.WithinDuration(t, first.Add(time.Minute), info.ResetAt, time.Millisecond)

	// the first request leaves the window
	clk.Advance(51 * time.Second)
	info, err = limiter.Allow(ctx, "org:1")
	require.NoError(t, err)
	assert.True(t, info.Allowed)
}

func TestRedisLimiter_Reset(t *testing.T) {
	limiter, _, _ := setupRedis(t, Config{Limit: 1, Window: time.Minute})
	ctx := context.Background()

	info, err := limiter.Allow(ctx, "org:1")
	require.NoError(t, err)
	require.True(t, info.Allowed)
	info, err = limiter.Allow(ctx, "org:1")
	require.NoError(t, err)
	require.False(t, info.Allowed)

	require.NoError(t, limiter.Reset(ctx, "org:1"))
	info, err = limiter.Allow(ctx, "org:1")
	require.NoError(t, err)
	assert.True(t, info.Allowed)
}

func TestRedisLimiter_ConnectionError(t *testing.T) {
	limiter, mr, _ := setupRedis(t, DefaultConfig())
	mr.Close()

	_, err := limiter.Allow(context.Background(), "org:1")
	assert.ErrorContains(t, err, "redis rate limit check failed")
}
