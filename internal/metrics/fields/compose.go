package fields

import (
	"context"
	"fmt"

	"github.com/conduit-lang/metricsd/internal/indexer"
	"github.com/conduit-lang/metricsd/internal/metrics/snql"
)

const (
	sessionStatusTag = "session.status"
	statusAlias      = "status"
)

// sessionStatusEquals matches rows whose session.status tag has the given value
func sessionStatusEquals(ctx context.Context, idx indexer.Indexer, status string) snql.Function {
	return snql.NewFunction("equals",
		snql.NewAliasedFunction("arrayElement", statusAlias,
			snql.NewColumn("tags.value"),
			snql.NewFunction("indexOf",
				snql.NewColumn("tags.key"),
				snql.Int(indexer.ResolveOrUnresolved(ctx, idx, sessionStatusTag)),
			),
		),
		snql.Int(indexer.ResolveOrUnresolved(ctx, idx, status)),
	)
}

func metricIDIn(metricIDs []int64) snql.Function {
	return snql.NewFunction("in", snql.NewColumn("metric_id"), snql.IntList(metricIDs))
}

func aliasOr(alias, fallback string) string {
	if alias != "" {
		return alias
	}
	return fallback
}

// InitSessions sums the sessions that were started
func InitSessions(ctx context.Context, idx indexer.Indexer, _ []int64, alias string) snql.Function {
	return snql.NewAliasedFunction("sumMergeIf", aliasOr(alias, "init_sessions"),
		snql.NewColumn("value"),
		sessionStatusEquals(ctx, idx, "init"),
	)
}

// CrashedSessions sums the sessions that ended in a crash
func CrashedSessions(ctx context.Context, idx indexer.Indexer, _ []int64, alias string) snql.Function {
	return snql.NewAliasedFunction("sumMergeIf", aliasOr(alias, "crashed_sessions"),
		snql.NewColumn("value"),
		sessionStatusEquals(ctx, idx, "crashed"),
	)
}

// ErroredPreaggrSessions sums the pre-aggregated errored sessions of the
// given metrics
func ErroredPreaggrSessions(ctx context.Context, idx indexer.Indexer, metricIDs []int64, alias string) snql.Function {
	return snql.NewAliasedFunction("sumMergeIf", aliasOr(alias, "errored_preaggr"),
		snql.NewColumn("value"),
		snql.NewFunction("and",
			sessionStatusEquals(ctx, idx, "errored_preaggr"),
			metricIDIn(metricIDs),
		),
	)
}

// SessionsErroredSet counts the distinct errored sessions of the given metrics
func SessionsErroredSet(_ context.Context, _ indexer.Indexer, metricIDs []int64, alias string) snql.Function {
	return snql.NewAliasedFunction("uniqCombined64MergeIf", aliasOr(alias, "sessions_errored_set"),
		snql.NewColumn("value"),
		metricIDIn(metricIDs),
	)
}

// Percentage computes 100 * (1 - numerator / denominator)
func Percentage(numerator, denominator snql.Expression, alias string) snql.Function {
	return snql.NewAliasedFunction("multiply", aliasOr(alias, "percentage"),
		snql.Int(100),
		snql.NewFunction("minus",
			snql.Int(1),
			snql.NewFunction("divide", numerator, denominator),
		),
	)
}

type sessionFragment func(ctx context.Context, idx indexer.Indexer, metricIDs []int64, alias string) snql.Function

// composeSessions adapts a session fragment to a ComposeFunc
func composeSessions(fn sessionFragment) ComposeFunc {
	return func(ctx context.Context, idx indexer.Indexer, args ComposeArgs) (snql.Expression, error) {
		return fn(ctx, idx, args.MetricIDs, args.Alias), nil
	}
}

// composePercentage adapts Percentage to a ComposeFunc over exactly two
// derived children
func composePercentage(alias string) ComposeFunc {
	return func(_ context.Context, _ indexer.Indexer, args ComposeArgs) (snql.Expression, error) {
		if len(args.Children) != 2 {
			return nil, fmt.Errorf("percentage expects 2 arguments, got %d", len(args.Children))
		}
		return Percentage(args.Children[0], args.Children[1], aliasOr(args.Alias, alias)), nil
	}
}
