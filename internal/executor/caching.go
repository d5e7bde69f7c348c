package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/metricsd/internal/cache"
	"github.com/conduit-lang/metricsd/internal/metrics/snql"
)

// CachingExecutor serves repeated queries from a cache. Queries are keyed by
// their rendered SQL, which embeds the query window, so a result is reused
// only for the same window.
type CachingExecutor struct {
	next   Executor
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachingExecutor wraps next with a result cache
func NewCachingExecutor(next Executor, c cache.Cache, ttl time.Duration, logger *zap.Logger) *CachingExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingExecutor{
		next:   next,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

// Execute returns the cached result of q when useCache is set and one is
// stored, and runs q otherwise. Cache failures never fail the query.
func (e *CachingExecutor) Execute(ctx context.Context, q *snql.Query, referrer string, useCache bool) (*Result, error) {
	if !useCache {
		return e.next.Execute(ctx, q, referrer, useCache)
	}

	query, err := q.SQL()
	if err != nil {
		return nil, fmt.Errorf("failed to render query: %w", err)
	}
	key := cache.QueryKey("query", q.Dataset, query)

	var cached Result
	err = cache.GetJSON(ctx, e.cache, key, &cached)
	switch {
	case err == nil:
		if cached.Data == nil {
			cached.Data = []map[string]interface{}{}
		}
		return &cached, nil
	case !cache.IsCacheMiss(err):
		e.logger.Warn("failed to read query cache", zap.String("key", key), zap.Error(err))
	}

	result, err := e.next.Execute(ctx, q, referrer, useCache)
	if err != nil {
		return nil, err
	}

	if err := cache.SetJSON(ctx, e.cache, key, result, e.ttl); err != nil {
		e.logger.Warn("failed to write query cache", zap.String("key", key), zap.Error(err))
	}
	return result, nil
}
