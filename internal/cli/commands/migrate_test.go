package commands

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateCommands(t *testing.T) {
	inTempDir(t)
	t.Setenv("METRICSD_DATABASE_DRIVER", "sqlite3")
	t.Setenv("METRICSD_DATABASE_URL", filepath.Join(t.TempDir(), "metricsd.db"))
	t.Setenv("METRICSD_LOG_LEVEL", "error")
	ctx := context.Background()

	out, _, err := execute(ctx, t, defaultOptions(), "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "create_metrics_indexer")
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "(0 applied, 1 pending)")

	out, _, err = execute(ctx, t, defaultOptions(), "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 1 migration(s)")

	out, _, err = execute(ctx, t, defaultOptions(), "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 0 migration(s)")

	out, _, err = execute(ctx, t, defaultOptions(), "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "(1 applied, 0 pending)")

	out, _, err = execute(ctx, t, defaultOptions(), "migrate", "down")
	require.NoError(t, err)
	assert.Contains(t, out, "Rolled back create_metrics_indexer")

	_, stderr, err := execute(ctx, t, defaultOptions(), "migrate", "down")
	require.NoError(t, err)
	assert.Contains(t, stderr, "No migrations to roll back")
}
