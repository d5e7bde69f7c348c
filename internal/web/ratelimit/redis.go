package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow records a request in a sorted set if fewer than limit
// requests fall in the window. It returns {allowed, count, oldest}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local member = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local current = redis.call('ZCARD', key)
local allowed = 0
if current < limit then
	redis.call('ZADD', key, now, member)
	current = current + 1
	allowed = 1
end
redis.call('PEXPIRE', key, ttl)

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldest_score = now
if oldest[2] then
	oldest_score = tonumber(oldest[2])
end
return {allowed, current, tostring(oldest_score)}
`)

// RedisLimiter is a sliding window limiter shared by every metricsd
// instance using the same Redis
type RedisLimiter struct {
	client *redis.Client
	config Config
	prefix string
	now    func() time.Time
}

// NewRedisLimiter creates a Redis backed limiter. Keys are namespaced by
// prefix.
func NewRedisLimiter(client *redis.Client, config Config, prefix string) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &RedisLimiter{
		client: client,
		config: config,
		prefix: prefix + "ratelimit:",
		now:    time.Now,
	}, nil
}

// Allow records a request for key if the window has room
func (r *RedisLimiter) Allow(ctx context.Context, key string) (Info, error) {
	now := r.now()
	windowStart := now.Add(-r.config.Window)
	result, err := slidingWindow.Run(ctx, r.client, []string{r.prefix + key},
		now.UnixNano(),
		windowStart.UnixNano(),
		r.config.Limit,
		r.config.Window.Milliseconds(),
		uuid.NewString(),
	).Slice()
	if err != nil {
		return Info{}, fmt.Errorf("redis rate limit check failed: %w", err)
	}
	if len(result) != 3 {
		return Info{}, errors.New("unexpected redis script result")
	}

	allowed, ok1 := result[0].(int64)
	count, ok2 := result[1].(int64)
	oldestRaw, ok3 := result[2].(string)
	if !ok1 || !ok2 || !ok3 {
		return Info{}, errors.New("unexpected redis script result")
	}
	oldest, err := strconv.ParseFloat(oldestRaw, 64)
	if err != nil {
		return Info{}, fmt.Errorf("unexpected redis script result: %w", err)
	}

	info := Info{
		Limit:     r.config.Limit,
		Window:    r.config.Window,
		Remaining: r.config.Limit - int(count),
		Allowed:   allowed == 1,
		ResetAt:   now,
	}
	if info.Remaining < 0 {
		info.Remaining = 0
	}
	if !info.Allowed {
		info.ResetAt = time.Unix(0, int64(oldest)).Add(r.config.Window)
	}
	return info, nil
}

// Reset forgets every request recorded for key
func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}
