package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// ErrNothingToRollback is returned by MigrateDown when no migration is applied
var ErrNothingToRollback = errors.New("no migrations to rollback")

// Runner executes migrations with transaction support
type Runner struct {
	db      *sql.DB
	dialect Dialect
	tracker *Tracker
	logger  *zap.Logger
}

// NewRunner creates a new migration runner
func NewRunner(db *sql.DB, dialect Dialect, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		db:      db,
		dialect: dialect,
		tracker: NewTracker(db),
		logger:  logger,
	}
}

// Initialize sets up the migration tracking table
func (r *Runner) Initialize(ctx context.Context) error {
	return r.tracker.Initialize(ctx)
}

// MigrateUp applies all pending migrations in version order and returns how
// many were applied
func (r *Runner) MigrateUp(ctx context.Context, migrations []*Migration) (int, error) {
	pending, err := r.tracker.GetPending(ctx, sorted(migrations))
	if err != nil {
		return 0, fmt.Errorf("failed to get pending migrations: %w", err)
	}

	if len(pending) == 0 {
		r.logger.Info("no pending migrations")
		return 0, nil
	}

	for i, migration := range pending {
		if err := r.apply(ctx, migration); err != nil {
			return i, fmt.Errorf("migration %s failed: %w", migration.Name, err)
		}
	}
	return len(pending), nil
}

// MigrateDown rolls back the last applied migration
func (r *Runner) MigrateDown(ctx context.Context, migrations []*Migration) (*Migration, error) {
	last, err := r.tracker.GetLast(ctx)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, ErrNothingToRollback
	}

	migration := find(migrations, last.Version)
	if migration == nil {
		return nil, fmt.Errorf("applied migration %d (%s) is unknown", last.Version, last.Name)
	}
	if migration.Down == "" {
		return nil, fmt.Errorf("migration %s has no down migration", migration.Name)
	}

	if err := r.rollback(ctx, migration); err != nil {
		return nil, fmt.Errorf("rollback failed: %w", err)
	}
	return migration, nil
}

func (r *Runner) apply(ctx context.Context, migration *Migration) error {
	if migration.Up == "" {
		return fmt.Errorf("migration has no up SQL")
	}

	start := time.Now()
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.dialect.Rewrite(migration.Up)); err != nil {
			return fmt.Errorf("failed to execute migration SQL: %w", err)
		}
		return r.tracker.Record(ctx, tx, migration)
	})
	if err != nil {
		return err
	}

	r.logger.Info("applied migration",
		zap.Int64("version", migration.Version),
		zap.String("name", migration.Name),
		zap.Duration("took", time.Since(start)))
	return nil
}

func (r *Runner) rollback(ctx context.Context, migration *Migration) error {
	start := time.Now()
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.dialect.Rewrite(migration.Down)); err != nil {
			return fmt.Errorf("failed to execute rollback SQL: %w", err)
		}
		return r.tracker.Remove(ctx, tx, migration.Version)
	})
	if err != nil {
		return err
	}

	r.logger.Info("rolled back migration",
		zap.Int64("version", migration.Version),
		zap.String("name", migration.Name),
		zap.Duration("took", time.Since(start)))
	return nil
}

func (r *Runner) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			r.logger.Warn("failed to rollback transaction", zap.Error(err))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Status returns the current migration status
func (r *Runner) Status(ctx context.Context, all []*Migration) (*Status, error) {
	applied, err := r.tracker.GetApplied(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	pending, err := r.tracker.GetPending(ctx, sorted(all))
	if err != nil {
		return nil, fmt.Errorf("failed to get pending migrations: %w", err)
	}

	return &Status{Total: len(all), Applied: applied, Pending: pending}, nil
}

// Status represents the current state of migrations
type Status struct {
	Total   int
	Applied []*Migration
	Pending []*Migration
}

// Summary returns a human-readable summary
func (s *Status) Summary() string {
	return fmt.Sprintf("Total: %d migrations (%d applied, %d pending)",
		s.Total,
		len(s.Applied),
		len(s.Pending))
}

func sorted(migrations []*Migration) []*Migration {
	out := append([]*Migration(nil), migrations...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

func find(migrations []*Migration, version int64) *Migration {
	for _, m := range migrations {
		if m.Version == version {
			return m
		}
	}
	return nil
}
