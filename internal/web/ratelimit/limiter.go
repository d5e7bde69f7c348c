// Package ratelimit limits how often an organization may call the metrics
// endpoints
package ratelimit

import (
	"context"
	"time"
)

// RateLimiter decides whether a request under key may proceed
type RateLimiter interface {
	Allow(ctx context.Context, key string) (Info, error)
}

// Info is the state of a key's limit after a call to Allow
type Info struct {
	// Limit is the number of requests allowed per window
	Limit int
	// Window is the length of the window
	Window time.Duration
	// Remaining is the number of requests left in the current window
	Remaining int
	// ResetAt is when the next request will be allowed again
	ResetAt time.Time
	Allowed bool
}

// Config holds the limit shared by all backends
type Config struct {
	Limit  int
	Window time.Duration
}

// DefaultConfig allows 40 requests per second, the budget of the metrics
// data endpoint
func DefaultConfig() Config {
	return Config{Limit: 40, Window: time.Second}
}
