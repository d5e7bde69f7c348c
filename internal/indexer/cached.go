package indexer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/metricsd/internal/cache"
)

// CachedIndexer caches the lookups of another indexer. Misses are not
// cached since a name can be indexed at any time.
type CachedIndexer struct {
	next   Indexer
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedIndexer wraps next with c. A zero ttl uses the cache default.
func NewCachedIndexer(next Indexer, c cache.Cache, ttl time.Duration, logger *zap.Logger) *CachedIndexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedIndexer{
		next:   next,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *CachedIndexer) ResolveWeak(ctx context.Context, name string) (int64, bool) {
	key := cache.IndexerKey(name)

	var id int64
	err := cache.GetJSON(ctx, c.cache, key, &id)
	if err == nil {
		return id, true
	}
	if !cache.IsCacheMiss(err) {
		c.logger.Warn("indexer cache read failed", zap.String("key", key), zap.Error(err))
	}

	id, ok := c.next.ResolveWeak(ctx, name)
	if ok {
		c.store(ctx, key, id)
	}
	return id, ok
}

func (c *CachedIndexer) ReverseResolve(ctx context.Context, id int64) (string, error) {
	key := cache.ReverseIndexerKey(id)

	var name string
	err := cache.GetJSON(ctx, c.cache, key, &name)
	if err == nil {
		return name, nil
	}
	if !cache.IsCacheMiss(err) {
		c.logger.Warn("indexer cache read failed", zap.String("key", key), zap.Error(err))
	}

	name, err = c.next.ReverseResolve(ctx, id)
	if err != nil {
		return "", err
	}
	c.store(ctx, key, name)
	return name, nil
}

// Record delegates to the wrapped indexer, which must be a Recorder
func (c *CachedIndexer) Record(ctx context.Context, name string) (int64, error) {
	recorder, ok := c.next.(Recorder)
	if !ok {
		return 0, errors.New("wrapped indexer cannot record")
	}
	id, err := recorder.Record(ctx, name)
	if err != nil {
		return 0, err
	}
	c.store(ctx, cache.IndexerKey(name), id)
	c.store(ctx, cache.ReverseIndexerKey(id), name)
	return id, nil
}

func (c *CachedIndexer) store(ctx context.Context, key string, value interface{}) {
	if err := cache.SetJSON(ctx, c.cache, key, value, c.ttl); err != nil {
		c.logger.Warn("indexer cache write failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}
