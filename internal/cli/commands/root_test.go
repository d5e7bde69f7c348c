package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conduit-lang/metricsd/internal/cli/config"
	"github.com/conduit-lang/metricsd/internal/metrics"
	"github.com/conduit-lang/metricsd/internal/metrics/datasource"
	"github.com/conduit-lang/metricsd/internal/metrics/fields"
	"github.com/conduit-lang/metricsd/internal/orm"
	"github.com/conduit-lang/metricsd/internal/web/auth"
)

// inTempDir runs the test from an empty directory so no metricsd.yaml is
// picked up
func inTempDir(t *testing.T) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(old) })
}

func execute(ctx context.Context, t *testing.T, opts *rootOptions, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand(opts)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args, "--no-color"))
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

type fakeMetrics struct {
	meta     metrics.MetricMetaWithTagKeys
	err      error
	projects []metrics.Project
}

func (f *fakeMetrics) GetSingleMetricInfo(_ context.Context, projects []metrics.Project, name string) (metrics.MetricMetaWithTagKeys, error) {
	f.projects = projects
	if f.err != nil {
		return metrics.MetricMetaWithTagKeys{}, f.err
	}
	meta := f.meta
	meta.Name = name
	return meta, nil
}

func (f *fakeMetrics) GetTotals(context.Context, []metrics.Project, datasource.QueryDefinition) (datasource.Totals, error) {
	return datasource.Totals{}, nil
}

type fakeProjects struct {
	err error
}

func (f fakeProjects) GetProjects(_ context.Context, orgID int64, ids []int64) ([]metrics.Project, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(ids) == 0 {
		ids = []int64{10, 11}
	}
	projects := make([]metrics.Project, len(ids))
	for i, id := range ids {
		projects[i] = metrics.Project{ID: id, OrganizationID: orgID}
	}
	return projects, nil
}

func fakeOptions(m *fakeMetrics, p fakeProjects) *rootOptions {
	opts := defaultOptions()
	opts.newServices = func(context.Context, *config.Config, *zap.Logger) (*services, error) {
		return &services{
			Catalog:  fields.NewDefaultCatalog(),
			Metrics:  m,
			Projects: p,
		}, nil
	}
	opts.askMetric = func([]string) (string, error) {
		return "", fmt.Errorf("unexpected prompt")
	}
	return opts
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	assert.Equal(t, "metricsd", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, expected := range []string{"version", "serve", "meta", "catalog", "token", "migrate"} {
		assert.Contains(t, names, expected)
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestVersionCommand(t *testing.T) {
	Version = "1.0.0-test"
	GitCommit = "abc123"
	BuildDate = "2026-01-01"
	GoVersion = "go1.23"

	out, _, err := execute(context.Background(), t, defaultOptions(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "metricsd version: 1.0.0-test")
	assert.Contains(t, out, "Git commit: abc123")
	assert.Contains(t, out, "Go version: go1.23")
}

func TestCatalogList(t *testing.T) {
	out, _, err := execute(context.Background(), t, defaultOptions(), "catalog", "list")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2+fields.NewDefaultCatalog().Len())
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.Contains(t, out, "crash_free_percentage")
	assert.Contains(t, out, "crashed_sessions, init_sessions")
}

func TestCatalogShow(t *testing.T) {
	out, _, err := execute(context.Background(), t, defaultOptions(), "catalog", "show", "crash_free_percentage")
	require.NoError(t, err)

	assert.Contains(t, out, "Unit:    percentage")
	assert.Contains(t, out, "Evaluation order")
	assert.Contains(t, out, "1. init_sessions\n2. crashed_sessions\n3. crash_free_percentage\n")
}

func TestCatalogShow_Unknown(t *testing.T) {
	_, stderr, err := execute(context.Background(), t, defaultOptions(), "catalog", "show", "crash_fre_percentage")
	require.Error(t, err)
	assert.Contains(t, stderr, "METRIC NOT FOUND")
	assert.Contains(t, stderr, "Did you mean: crash_free_percentage?")
}

func TestMetaCommand(t *testing.T) {
	inTempDir(t)
	unit := "percentage"
	m := &fakeMetrics{meta: metrics.MetricMetaWithTagKeys{
		MetricMeta: metrics.MetricMeta{Type: "numeric", Operations: []string{}, Unit: &unit},
		Tags:       []metrics.Tag{{Key: "release"}, {Key: "environment"}},
	}}

	out, _, err := execute(context.Background(), t, fakeOptions(m, fakeProjects{}), "meta", "crash_free_percentage", "--org", "1", "-p", "3", "-p", "4")
	require.NoError(t, err)

	assert.Contains(t, out, "Name:       crash_free_percentage")
	assert.Contains(t, out, "Unit:       percentage")
	assert.Contains(t, out, "Tags:       environment, release")
	assert.Equal(t, []metrics.Project{{ID: 3, OrganizationID: 1}, {ID: 4, OrganizationID: 1}}, m.projects)
}

func TestMetaCommand_JSON(t *testing.T) {
	inTempDir(t)
	m := &fakeMetrics{meta: metrics.MetricMetaWithTagKeys{
		MetricMeta: metrics.MetricMeta{Type: "distribution", Operations: []string{"avg", "max"}},
		Tags:       []metrics.Tag{},
	}}

	out, _, err := execute(context.Background(), t, fakeOptions(m, fakeProjects{}), "meta", "session.duration", "--org", "1", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "session.duration"`)
	assert.Contains(t, out, `"unit": null`)
	assert.Len(t, m.projects, 2, "all projects of the organization")
}

func TestMetaCommand_NotFound(t *testing.T) {
	inTempDir(t)
	m := &fakeMetrics{err: fmt.Errorf("%w: init_session", metrics.ErrInvalidParams)}

	_, stderr, err := execute(context.Background(), t, fakeOptions(m, fakeProjects{}), "meta", "init_session", "--org", "1")
	require.ErrorIs(t, err, metrics.ErrInvalidParams)
	assert.Contains(t, stderr, "Cannot find metric 'init_session'.")
	assert.Contains(t, stderr, "init_sessions")
}

func TestMetaCommand_UnknownProject(t *testing.T) {
	inTempDir(t)
	_, _, err := execute(context.Background(), t, fakeOptions(&fakeMetrics{}, fakeProjects{err: orm.ErrNotFound}), "meta", "x", "--org", "1", "-p", "99")
	require.Error(t, err)
	assert.True(t, orm.IsNotFound(err))
	assert.Contains(t, err.Error(), "organization 1")
}

func TestMetaCommand_Prompt(t *testing.T) {
	inTempDir(t)
	m := &fakeMetrics{meta: metrics.MetricMetaWithTagKeys{MetricMeta: metrics.MetricMeta{Type: "numeric"}}}
	opts := fakeOptions(m, fakeProjects{})

	var offered []string
	opts.askMetric = func(names []string) (string, error) {
		offered = names
		return "init_sessions", nil
	}

	out, _, err := execute(context.Background(), t, opts, "meta", "--org", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Name:       init_sessions")
	assert.Contains(t, offered, "crash_free_percentage")
}

func TestMetaCommand_RequiresOrg(t *testing.T) {
	inTempDir(t)
	_, _, err := execute(context.Background(), t, fakeOptions(&fakeMetrics{}, fakeProjects{}), "meta", "x")
	assert.ErrorContains(t, err, "org")
}

func TestTokenCommand(t *testing.T) {
	inTempDir(t)
	t.Setenv("METRICSD_AUTH_SECRET", "test-secret")

	out, _, err := execute(context.Background(), t, defaultOptions(), "token", "--user", "7", "--org", "1", "--org", "2")
	require.NoError(t, err)

	principal, err := auth.NewTokenService("test-secret", time.Hour).ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, int64(7), principal.UserID)
	assert.Equal(t, []int64{1, 2}, principal.OrgIDs)
}

func TestTokenCommand_RequiresSecret(t *testing.T) {
	inTempDir(t)
	_, _, err := execute(context.Background(), t, defaultOptions(), "token", "--user", "7")
	assert.ErrorContains(t, err, "auth.secret")
}

func TestServeCommand_RequiresSecret(t *testing.T) {
	inTempDir(t)
	_, _, err := execute(context.Background(), t, defaultOptions(), "serve")
	assert.ErrorContains(t, err, "auth.secret")
}

func TestServeCommand_GracefulShutdown(t *testing.T) {
	inTempDir(t)
	t.Setenv("METRICSD_AUTH_SECRET", "test-secret")
	t.Setenv("METRICSD_DATABASE_DRIVER", "sqlite3")
	t.Setenv("METRICSD_DATABASE_URL", ":memory:")
	t.Setenv("METRICSD_LOG_LEVEL", "error")

	opts := defaultOptions()
	var built *services
	opts.newServices = func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*services, error) {
		svc, err := newServices(ctx, cfg, logger)
		built = svc
		return svc, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := execute(ctx, t, opts, "serve", "--address", "127.0.0.1:0")
	require.NoError(t, err)
	require.NotNil(t, built)
	assert.Empty(t, built.closers, "shutdown closes every connection")
}
