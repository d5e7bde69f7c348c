package indexer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/metricsd/internal/orm"
)

// Table is the table the SQL indexer reads and writes
const Table = "metrics_indexer"

// SQLIndexer stores ids in the metrics_indexer table
type SQLIndexer struct {
	db     orm.DB
	model  *orm.Model
	logger *zap.Logger
}

// NewSQLIndexer creates an indexer over db
func NewSQLIndexer(db orm.DB, logger *zap.Logger) *SQLIndexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLIndexer{
		db:     db,
		model:  &orm.Model{Table: Table},
		logger: logger,
	}
}

// ResolveWeak looks name up. Database errors are logged and reported as a
// miss.
func (s *SQLIndexer) ResolveWeak(ctx context.Context, name string) (int64, bool) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT "id" FROM "metrics_indexer" WHERE "string" = $1`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false
	}
	if err != nil {
		s.logger.Warn("indexer lookup failed",
			zap.String("name", name),
			zap.Error(err),
		)
		return 0, false
	}
	return id, true
}

// ReverseResolve returns the string stored under id
func (s *SQLIndexer) ReverseResolve(ctx context.Context, id int64) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT "string" FROM "metrics_indexer" WHERE "id" = $1`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to reverse resolve %d: %w", id, orm.ConvertDBError(err))
	}
	return name, nil
}

// Record returns the id of name, inserting it when it is new. A concurrent
// insert of the same name is resolved by reading the winner's id.
func (s *SQLIndexer) Record(ctx context.Context, name string) (int64, error) {
	if id, ok := s.ResolveWeak(ctx, name); ok {
		return id, nil
	}

	id, err := orm.Create(ctx, s.db, s.model, map[string]interface{}{"string": name})
	if orm.IsUniqueViolation(err) {
		if id, ok := s.ResolveWeak(ctx, name); ok {
			return id, nil
		}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to record %q: %w", name, err)
	}

	s.logger.Debug("indexed string", zap.String("name", name), zap.Int64("id", id))
	return id, nil
}
