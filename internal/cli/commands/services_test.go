package commands

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conduit-lang/metricsd/internal/cache"
	"github.com/conduit-lang/metricsd/internal/cli/config"
	"github.com/conduit-lang/metricsd/internal/web/ratelimit"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	inTempDir(t)
	t.Setenv("METRICSD_DATABASE_DRIVER", "sqlite3")
	t.Setenv("METRICSD_DATABASE_URL", ":memory:")
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestNewServices(t *testing.T) {
	cfg := testConfig(t)

	svc, err := newServices(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	assert.NotNil(t, svc.Catalog)
	assert.NotNil(t, svc.Metrics)
	assert.NotNil(t, svc.Projects)
	assert.NotNil(t, svc.Incidents)
	assert.NotNil(t, svc.CodeMappings)
	assert.NotNil(t, svc.Codeowners)
	require.NotNil(t, svc.Gatherer)

	families, err := svc.Gatherer.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	_, ok := svc.Limiter.(*ratelimit.TokenBucket)
	assert.True(t, ok, "memory backend limits in process")

	// primary, analytics, the memory cache and the token bucket
	assert.Len(t, svc.closers, 4)
	assert.NoError(t, svc.Close())
	assert.Empty(t, svc.closers)

	deps := svc.dependencies()
	assert.Equal(t, svc.Metrics, deps.Metrics)
}

func TestNewCache(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := newCache(context.Background(), config.CacheConfig{Backend: "redis", Addr: mr.Addr(), Prefix: "test:"})
	require.NoError(t, err)
	_, ok := c.(*cache.RedisCache)
	assert.True(t, ok)

	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), 0))
	assert.True(t, mr.Exists("test:k"))

	c, err = newCache(context.Background(), config.CacheConfig{Backend: "memory"})
	require.NoError(t, err)
	_, ok = c.(*cache.MemoryCache)
	assert.True(t, ok)

	_, err = newCache(context.Background(), config.CacheConfig{Backend: "memcached"})
	assert.Error(t, err)
}

func TestOpenDB_UnknownDriver(t *testing.T) {
	_, err := openDB("oracle", "x", config.DatabaseConfig{})
	assert.Error(t, err)
}

func TestNewServices_RateLimitDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.Enabled = false

	svc, err := newServices(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer svc.Close()

	assert.Nil(t, svc.Limiter)
	assert.Len(t, svc.closers, 3)
}

func TestNewRateLimiter_SharesRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := newCache(context.Background(), config.CacheConfig{Backend: "redis", Addr: mr.Addr(), Prefix: "metricsd:"})
	require.NoError(t, err)
	defer c.(*cache.RedisCache).Close()

	limiter, err := newRateLimiter(c, config.RateLimitConfig{Enabled: true, Limit: 1, Window: time.Minute}, "metricsd:")
	require.NoError(t, err)
	_, ok := limiter.(*ratelimit.RedisLimiter)
	require.True(t, ok)

	info, err := limiter.Allow(context.Background(), "org:1")
	require.NoError(t, err)
	assert.True(t, info.Allowed)
	assert.True(t, mr.Exists("metricsd:ratelimit:org:1"))
}
