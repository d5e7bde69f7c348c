package cache

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestMemoryCache(t *testing.T) (*MemoryCache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	mc := newMemoryCache(DefaultConfig(), time.Hour, clock.Now)
	t.Cleanup(func() { mc.Close() })
	return mc, clock
}

func TestMemoryCache_SetAndGet(t *testing.T) {
	mc, _ := newTestMemoryCache(t)
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "q", []byte("rows"), time.Minute))

	value, err := mc.Get(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, []byte("rows"), value)

	exists, err := mc.Exists(ctx, "q")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemoryCache_Miss(t *testing.T) {
	mc, _ := newTestMemoryCache(t)

	_, err := mc.Get(context.Background(), "absent")
	require.Error(t, err)
	assert.True(t, IsCacheMiss(err))

	exists, err := mc.Exists(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryCache_Expiry(t *testing.T) {
	mc, clock := newTestMemoryCache(t)
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "short", []byte("1"), time.Minute))
	require.NoError(t, mc.Set(ctx, "default", []byte("2"), 0))
	require.NoError(t, mc.Set(ctx, "forever", []byte("3"), -1))

	clock.Advance(2 * time.Minute)
	_, err := mc.Get(ctx, "short")
	assert.True(t, IsCacheMiss(err))

	_, err = mc.Get(ctx, "default")
	assert.NoError(t, err)

	clock.Advance(10 * time.Minute)
	_, err = mc.Get(ctx, "default")
	assert.True(t, IsCacheMiss(err))

	_, err = mc.Get(ctx, "forever")
	assert.NoError(t, err)

	assert.Equal(t, 3, mc.Len())
	mc.removeExpired()
	assert.Equal(t, 1, mc.Len())
}

func TestMemoryCache_DeleteAndClear(t *testing.T) {
	mc, _ := newTestMemoryCache(t)
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, mc.Set(ctx, "b", []byte("2"), time.Minute))

	require.NoError(t, mc.Delete(ctx, "a"))
	_, err := mc.Get(ctx, "a")
	assert.True(t, IsCacheMiss(err))

	require.NoError(t, mc.Clear(ctx))
	assert.Zero(t, mc.Len())
}

func TestMemoryCache_CopiesValues(t *testing.T) {
	mc, _ := newTestMemoryCache(t)
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, mc.Set(ctx, "k", value, time.Minute))
	value[0] = 'x'

	stored, err := mc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), stored)
}

func TestMemoryCache_CanceledContext(t *testing.T) {
	mc, _ := newTestMemoryCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, mc.Set(ctx, "k", []byte("v"), time.Minute), context.Canceled)
	_, err := mc.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJSONHelpers(t *testing.T) {
	mc, _ := newTestMemoryCache(t)
	ctx := context.Background()

	rows := []map[string]interface{}{{"metric_id": int64(9007199254740993)}}
	require.NoError(t, SetJSON(ctx, mc, "rows", rows, time.Minute))

	var decoded []map[string]interface{}
	require.NoError(t, GetJSON(ctx, mc, "rows", &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, json.Number("9007199254740993"), decoded[0]["metric_id"])

	err := GetJSON(ctx, mc, "absent", &decoded)
	assert.True(t, IsCacheMiss(err))
}

func TestQueryKey(t *testing.T) {
	a := QueryKey("query", "SELECT 1", "referrer")
	b := QueryKey("query", "SELECT 1", "referrer")
	c := QueryKey("query", "SELECT 2", "referrer")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, len("query:")+32)
	assert.NotEqual(t, QueryKey("q", "ab", "c"), QueryKey("q", "a", "bc"))
}
