package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// TokenBucket is an in-process limiter refilling Limit tokens per Window.
// It suits a single metricsd instance.
type TokenBucket struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	config  Config
	now     func() time.Time

	done chan struct{}
	once sync.Once
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewTokenBucket creates a limiter. Idle buckets are swept every
// cleanupEvery; zero disables the sweeper.
func NewTokenBucket(config Config, cleanupEvery time.Duration) (*TokenBucket, error) {
	return newTokenBucket(config, cleanupEvery, time.Now)
}

func newTokenBucket(config Config, cleanupEvery time.Duration, now func() time.Time) (*TokenBucket, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	tb := &TokenBucket{
		buckets: make(map[string]*bucket),
		config:  config,
		now:     now,
		done:    make(chan struct{}),
	}
	if cleanupEvery > 0 {
		go tb.cleanupLoop(cleanupEvery)
	}
	return tb, nil
}

func (c Config) validate() error {
	if c.Limit <= 0 {
		return errors.New("limit must be greater than 0")
	}
	if c.Window <= 0 {
		return errors.New("window must be greater than 0")
	}
	return nil
}

// Allow takes a token from key's bucket
func (tb *TokenBucket) Allow(_ context.Context, key string) (Info, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	capacity := float64(tb.config.Limit)
	perToken := tb.config.Window / time.Duration(tb.config.Limit)

	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: capacity, lastRefill: now}
		tb.buckets[key] = b
	}

	if elapsed := now.Sub(b.lastRefill); elapsed > 0 {
		b.tokens += capacity * elapsed.Seconds() / tb.config.Window.Seconds()
		if b.tokens > capacity {
			b.tokens = capacity
		}
		b.lastRefill = now
	}

	info := Info{Limit: tb.config.Limit, Window: tb.config.Window}
	if b.tokens >= 1 {
		b.tokens--
		info.Allowed = true
		info.Remaining = int(b.tokens)
		info.ResetAt = now
		return info, nil
	}

	missing := 1 - b.tokens
	info.ResetAt = now.Add(time.Duration(missing * float64(perToken)))
	return info, nil
}

func (tb *TokenBucket) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tb.removeIdle()
		case <-tb.done:
			return
		}
	}
}

// removeIdle drops buckets that have refilled completely
func (tb *TokenBucket) removeIdle() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	for key, b := range tb.buckets {
		if now.Sub(b.lastRefill) > tb.config.Window {
			delete(tb.buckets, key)
		}
	}
}

// Len returns the number of tracked keys
func (tb *TokenBucket) Len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.buckets)
}

// Close stops the sweeper
func (tb *TokenBucket) Close() error {
	tb.once.Do(func() { close(tb.done) })
	return nil
}
