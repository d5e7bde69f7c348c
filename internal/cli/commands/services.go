package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/conduit-lang/metricsd/internal/api"
	"github.com/conduit-lang/metricsd/internal/cache"
	"github.com/conduit-lang/metricsd/internal/cli/config"
	"github.com/conduit-lang/metricsd/internal/executor"
	"github.com/conduit-lang/metricsd/internal/indexer"
	"github.com/conduit-lang/metricsd/internal/integrations"
	"github.com/conduit-lang/metricsd/internal/metrics/datasource"
	"github.com/conduit-lang/metricsd/internal/metrics/fields"
	"github.com/conduit-lang/metricsd/internal/models"
	"github.com/conduit-lang/metricsd/internal/web/ratelimit"
)

// services is the wired application shared by serve and meta
type services struct {
	Catalog      *fields.Catalog
	Metrics      api.MetricsService
	Projects     api.ProjectLoader
	Incidents    api.IncidentService
	CodeMappings api.CodeMappingLoader
	Codeowners   api.CodeownersFetcher
	Gatherer     prometheus.Gatherer
	// Limiter is nil when rate limiting is disabled
	Limiter ratelimit.RateLimiter

	closers []io.Closer
}

// Close releases connections in reverse order of creation
func (s *services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *services) dependencies() api.Dependencies {
	return api.Dependencies{
		Metrics:      s.Metrics,
		Projects:     s.Projects,
		Incidents:    s.Incidents,
		CodeMappings: s.CodeMappings,
		Codeowners:   s.Codeowners,
	}
}

func newServices(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*services, error) {
	svc := &services{}

	primary, err := openDB(cfg.Database.Driver, cfg.Database.URL, cfg.Database)
	if err != nil {
		return nil, err
	}
	svc.closers = append(svc.closers, primary)

	analytics, err := openDB("pgx", cfg.Analytics.URL, cfg.Database)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.closers = append(svc.closers, analytics)

	c, err := newCache(ctx, cfg.Cache)
	if err != nil {
		svc.Close()
		return nil, err
	}
	if closer, ok := c.(io.Closer); ok {
		svc.closers = append(svc.closers, closer)
	}

	if cfg.RateLimit.Enabled {
		limiter, err := newRateLimiter(c, cfg.RateLimit, cfg.Cache.Prefix)
		if err != nil {
			svc.Close()
			return nil, err
		}
		if closer, ok := limiter.(io.Closer); ok {
			svc.closers = append(svc.closers, closer)
		}
		svc.Limiter = limiter
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	svc.Gatherer = registry

	var exec executor.Executor = executor.NewSQLExecutor(analytics,
		executor.WithLogger(logger),
		executor.WithSlowQueryThreshold(cfg.Analytics.SlowQueryThreshold),
	)
	if cfg.Analytics.ResultTTL > 0 {
		exec = executor.NewCachingExecutor(exec, c, cfg.Analytics.ResultTTL, logger)
	}
	exec = executor.NewInstrumentedExecutor(exec, registry)

	idx := indexer.NewCachedIndexer(indexer.NewSQLIndexer(primary, logger), c, cfg.Cache.IndexerTTL, logger)

	svc.Catalog = fields.NewDefaultCatalog()
	svc.Metrics = datasource.New(datasource.NewRunner(exec), idx, svc.Catalog, logger)
	svc.Projects = models.NewProjectStore(primary)
	svc.Incidents = models.NewIncidentStore(primary)
	svc.CodeMappings = models.NewCodeMappingStore(primary)

	providers := integrations.NewRegistry()
	providers.Register(integrations.ProviderGitHub, integrations.NewGitHubProvider(integrations.GitHubConfig{
		BaseURL: cfg.GitHub.BaseURL,
		Token:   cfg.GitHub.Token,
		Timeout: cfg.GitHub.Timeout,
	}))
	svc.Codeowners = providers

	return svc, nil
}

// openDB opens a pool without connecting
func openDB(driver, url string, pool config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(driver, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	return db, nil
}

func newCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	base := cache.Config{DefaultTTL: cfg.DefaultTTL, Prefix: cfg.Prefix}
	switch cfg.Backend {
	case "redis":
		return cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			Cache:    base,
		})
	case "memory":
		return cache.NewMemoryCacheWithConfig(base), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// newRateLimiter shares Redis with the cache when the cache lives there,
// so every instance counts against the same budget
func newRateLimiter(c cache.Cache, cfg config.RateLimitConfig, prefix string) (ratelimit.RateLimiter, error) {
	limit := ratelimit.Config{Limit: cfg.Limit, Window: cfg.Window}
	if rc, ok := c.(*cache.RedisCache); ok {
		return ratelimit.NewRedisLimiter(rc.Client(), limit, prefix)
	}
	return ratelimit.NewTokenBucket(limit, time.Minute)
}
