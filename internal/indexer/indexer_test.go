package indexer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticIndexer(t *testing.T) {
	ctx := context.Background()
	idx := NewStaticIndexer("sentry.sessions.session", "session.status")

	id, ok := idx.ResolveWeak(ctx, "session.status")
	require.True(t, ok)
	assert.Equal(t, int64(2), id)

	_, ok = idx.ResolveWeak(ctx, "release")
	assert.False(t, ok)

	name, err := idx.ReverseResolve(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "sentry.sessions.session", name)

	_, err = idx.ReverseResolve(ctx, 99)
	assert.ErrorIs(t, err, ErrUnknownID)

	id, err = idx.Record(ctx, "release")
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)

	id, err = idx.Record(ctx, "release")
	require.NoError(t, err)
	assert.Equal(t, int64(3), id, "recording twice keeps the first id")

	assert.Equal(t, []string{"release", "sentry.sessions.session", "session.status"}, idx.Names())
}

func TestResolveOrUnresolved(t *testing.T) {
	ctx := context.Background()
	idx := NewStaticIndexer("init")

	assert.Equal(t, int64(1), ResolveOrUnresolved(ctx, idx, "init"))
	assert.Equal(t, UnresolvedID, ResolveOrUnresolved(ctx, idx, "crashed"))
}
