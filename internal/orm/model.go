// Package orm provides generic create and update helpers over database/sql.
// Statements use $N placeholders and RETURNING, which PostgreSQL and SQLite
// both accept.
package orm

import (
	"context"
	"database/sql"
	"sort"
	"time"
)

// DB is the subset of *sql.DB the helpers use
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// SaveEvent describes a successful write. Values holds the columns that were
// written, auto-now columns included.
type SaveEvent struct {
	Model   *Model
	Key     interface{}
	Values  map[string]interface{}
	Created bool
}

// Hook runs after a record was saved
type Hook func(ctx context.Context, event SaveEvent) error

// Model describes a table
type Model struct {
	Table string

	// PrimaryKey defaults to "id"
	PrimaryKey string

	// AutoNow columns are set to the current time on every write unless a
	// value is given
	AutoNow []string

	// AfterSave hooks run once a single row was created or updated
	AfterSave []Hook

	// Now overrides the clock used for AutoNow columns
	Now func() time.Time
}

func (m *Model) primaryKey() string {
	if m.PrimaryKey == "" {
		return "id"
	}
	return m.PrimaryKey
}

func (m *Model) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// withAutoNow copies values and fills missing auto-now columns
func (m *Model) withAutoNow(values map[string]interface{}) map[string]interface{} {
	record := make(map[string]interface{}, len(values)+len(m.AutoNow))
	for k, v := range values {
		record[k] = v
	}
	if len(m.AutoNow) > 0 {
		now := m.now()
		for _, col := range m.AutoNow {
			if _, ok := record[col]; !ok {
				record[col] = now
			}
		}
	}
	return record
}

func (m *Model) runAfterSave(ctx context.Context, event SaveEvent) error {
	for _, hook := range m.AfterSave {
		if err := hook(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// sortedColumns returns the keys of values in a stable order
func sortedColumns(values map[string]interface{}) []string {
	cols := make([]string, 0, len(values))
	for col := range values {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}
