// Package datasource runs metrics queries against the analytical store and
// assembles API results from them
package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/conduit-lang/metricsd/internal/executor"
	"github.com/conduit-lang/metricsd/internal/metrics"
	"github.com/conduit-lang/metricsd/internal/metrics/snql"
)

// Dataset is the dataset every metrics query targets
const Dataset = "metrics"

// Row is a single result row, keyed by column or alias
type Row = map[string]interface{}

// RunParams describes one query against one entity
type RunParams struct {
	Entity   metrics.EntityKey
	Select   []snql.Expression
	Where    []snql.Condition
	GroupBy  []snql.Expression
	OrderBy  []snql.OrderBy
	Limit    *int
	Projects []metrics.Project
	OrgID    int64
	Referrer string
}

// Runner scopes queries to an organisation, its projects and the trailing
// query window, then submits them to the executor
type Runner struct {
	executor executor.Executor
	now      func() time.Time
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithClock replaces the wall clock used to compute the query window
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner creates a runner submitting queries to exec
func NewRunner(exec executor.Executor, opts ...RunnerOption) *Runner {
	r := &Runner{
		executor: exec,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Query builds the query Run submits. The window end is truncated to the
// minute so that repeated queries within a minute are identical and can be
// served from cache.
func (r *Runner) Query(params RunParams) *snql.Query {
	end := r.now().UTC().Truncate(time.Minute)
	start := end.Add(-metrics.QueryWindow)

	where := make([]snql.Condition, 0, len(params.Where)+4)
	where = append(where,
		snql.NewCondition(snql.NewColumn("org_id"), snql.OpEqual, snql.Int(params.OrgID)),
		snql.NewCondition(snql.NewColumn("project_id"), snql.OpIn, snql.IntList(metrics.ProjectIDs(params.Projects))),
		snql.NewCondition(snql.NewColumn(metrics.TimestampColumn), snql.OpGreaterThanOrEqual, snql.Time(start)),
		snql.NewCondition(snql.NewColumn(metrics.TimestampColumn), snql.OpLessThan, snql.Time(end)),
	)
	where = append(where, params.Where...)

	return &snql.Query{
		Dataset:     Dataset,
		Match:       string(params.Entity),
		Select:      params.Select,
		GroupBy:     params.GroupBy,
		Where:       where,
		OrderBy:     params.OrderBy,
		Granularity: metrics.Granularity,
		Limit:       params.Limit,
	}
}

// Run executes the query described by params and returns the rows verbatim
func (r *Runner) Run(ctx context.Context, params RunParams) ([]Row, error) {
	result, err := r.executor.Execute(ctx, r.Query(params), params.Referrer, true)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", params.Entity, err)
	}
	if result == nil {
		return []Row{}, nil
	}
	return result.Data, nil
}
