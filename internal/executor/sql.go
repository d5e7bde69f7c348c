package executor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/metricsd/internal/metrics/snql"
)

// DefaultSlowQueryThreshold is the duration above which a query is logged as slow
const DefaultSlowQueryThreshold = 5 * time.Second

// SQLExecutor renders queries to SQL and runs them on a database/sql
// connection to the analytical store. It does not retry.
type SQLExecutor struct {
	db            *sql.DB
	logger        *zap.Logger
	slowThreshold time.Duration
}

// SQLOption configures a SQLExecutor
type SQLOption func(*SQLExecutor)

// WithLogger sets the logger queries are reported to
func WithLogger(logger *zap.Logger) SQLOption {
	return func(e *SQLExecutor) {
		e.logger = logger
	}
}

// WithSlowQueryThreshold sets the slow query threshold
func WithSlowQueryThreshold(d time.Duration) SQLOption {
	return func(e *SQLExecutor) {
		e.slowThreshold = d
	}
}

// NewSQLExecutor creates an executor on db
func NewSQLExecutor(db *sql.DB, opts ...SQLOption) *SQLExecutor {
	e := &SQLExecutor{
		db:            db,
		logger:        zap.NewNop(),
		slowThreshold: DefaultSlowQueryThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute renders and runs q. useCache is ignored; wrap the executor in a
// CachingExecutor to cache results.
func (e *SQLExecutor) Execute(ctx context.Context, q *snql.Query, referrer string, _ bool) (*Result, error) {
	query, err := q.SQL()
	if err != nil {
		return nil, fmt.Errorf("failed to render query: %w", err)
	}

	e.logger.Debug("executing metrics query",
		zap.String("referrer", referrer),
		zap.String("entity", q.Match),
		zap.String("query", query),
	)

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		e.logger.Error("metrics query failed",
			zap.String("referrer", referrer),
			zap.String("query", query),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to execute %s query: %w", referrer, err)
	}
	defer rows.Close()

	data, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s query results: %w", referrer, err)
	}

	if duration := time.Since(start); duration > e.slowThreshold {
		e.logger.Info("slow metrics query detected",
			zap.String("referrer", referrer),
			zap.String("query", query),
			zap.Duration("duration", duration),
		)
	}

	return &Result{Data: data}, nil
}

// scanRows reads every row into a column -> value map. Byte slices are
// converted to strings.
func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := []map[string]interface{}{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
				continue
			}
			record[col] = values[i]
		}
		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
