// Package executor submits metrics queries to the analytical store
package executor

import (
	"context"

	"github.com/conduit-lang/metricsd/internal/metrics/snql"
)

// Executor runs a query and returns its rows
type Executor interface {
	// Execute runs q. The referrer identifies the caller in logs and
	// metrics; useCache allows a cached result to be returned.
	Execute(ctx context.Context, q *snql.Query, referrer string, useCache bool) (*Result, error)
}

// Result holds the rows of an executed query, in the order the store
// returned them
type Result struct {
	Data []map[string]interface{} `json:"data"`
}

// ExecutorFunc adapts a function to the Executor interface
type ExecutorFunc func(ctx context.Context, q *snql.Query, referrer string, useCache bool) (*Result, error)

// Execute calls f
func (f ExecutorFunc) Execute(ctx context.Context, q *snql.Query, referrer string, useCache bool) (*Result, error) {
	return f(ctx, q, referrer, useCache)
}
