package orm

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/lib/pq"
)

// Update writes values to the row whose primary key is key and returns the
// number of rows affected, 0 or 1. After-save hooks run when a row changed.
func Update(ctx context.Context, db DB, model *Model, key interface{}, values map[string]interface{}) (int64, error) {
	if isZeroKey(key) {
		return 0, ErrNotCreated
	}

	record := model.withAutoNow(values)
	affected, err := updateWhere(ctx, db, model, map[string]interface{}{model.primaryKey(): key}, record)
	if err != nil {
		return 0, err
	}

	if affected == 1 {
		if err := model.runAfterSave(ctx, SaveEvent{Model: model, Key: key, Values: record}); err != nil {
			return affected, fmt.Errorf("after save hook failed: %w", err)
		}
	}
	return affected, nil
}

// Create inserts a row in a transaction and returns its primary key
func Create(ctx context.Context, db DB, model *Model, values map[string]interface{}) (int64, error) {
	record := model.withAutoNow(values)

	var id int64
	err := WithTransaction(ctx, db, func(tx *sql.Tx) error {
		var err error
		id, err = insert(ctx, tx, model, record)
		return err
	})
	if err != nil {
		return 0, err
	}

	if err := model.runAfterSave(ctx, SaveEvent{Model: model, Key: id, Values: record, Created: true}); err != nil {
		return id, fmt.Errorf("after save hook failed: %w", err)
	}
	return id, nil
}

// CreateOrUpdate updates the row matching lookup, or creates it from lookup
// and values when there is none. It reports whether a row was created.
func CreateOrUpdate(ctx context.Context, db DB, model *Model, lookup, values map[string]interface{}) (bool, error) {
	if len(lookup) == 0 {
		return false, fmt.Errorf("create or update on %s needs a lookup", model.Table)
	}

	record := model.withAutoNow(values)
	affected, err := updateWhere(ctx, db, model, lookup, record)
	if err != nil {
		return false, err
	}
	if affected == 1 {
		if err := model.runAfterSave(ctx, SaveEvent{Model: model, Key: lookup, Values: record}); err != nil {
			return false, fmt.Errorf("after save hook failed: %w", err)
		}
		return false, nil
	}

	insertValues := make(map[string]interface{}, len(lookup)+len(values))
	for k, v := range values {
		insertValues[k] = v
	}
	for k, v := range lookup {
		insertValues[k] = v
	}

	_, err = Create(ctx, db, model, insertValues)
	if IsUniqueViolation(err) {
		// a concurrent writer created the row first
		if _, err := updateWhere(ctx, db, model, lookup, record); err != nil {
			return false, err
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// WithTransaction runs fn in a transaction, committing on success and
// rolling back on error or panic
func WithTransaction(ctx context.Context, db DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", ConvertDBError(err))
	}
	return nil
}

func updateWhere(ctx context.Context, db DB, model *Model, lookup, values map[string]interface{}) (int64, error) {
	if len(values) == 0 {
		return 0, ErrNoValues
	}

	cols := sortedColumns(values)
	args := make([]interface{}, 0, len(cols)+len(lookup))
	sets := make([]string, len(cols))
	for i, col := range cols {
		args = append(args, values[col])
		sets[i] = fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(col), len(args))
	}

	lookupCols := sortedColumns(lookup)
	conds := make([]string, len(lookupCols))
	for i, col := range lookupCols {
		args = append(args, lookup[col])
		conds[i] = fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(col), len(args))
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		pq.QuoteIdentifier(model.Table),
		strings.Join(sets, ", "),
		strings.Join(conds, " AND "),
	)

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", model.Table, ConvertDBError(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	switch {
	case affected < 0:
		return 0, fmt.Errorf("%s: %w", model.Table, ErrNegativeRowsUpdated)
	case affected > 1:
		return affected, fmt.Errorf("%s: %w (%d)", model.Table, ErrMultipleRowsUpdated, affected)
	}
	return affected, nil
}

func insert(ctx context.Context, tx *sql.Tx, model *Model, values map[string]interface{}) (int64, error) {
	if len(values) == 0 {
		return 0, ErrNoValues
	}

	cols := sortedColumns(values)
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, col := range cols {
		quoted[i] = pq.QuoteIdentifier(col)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[col]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		pq.QuoteIdentifier(model.Table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
		pq.QuoteIdentifier(model.primaryKey()),
	)

	var id int64
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", model.Table, ConvertDBError(err))
	}
	return id, nil
}

func isZeroKey(key interface{}) bool {
	if key == nil {
		return true
	}
	v := reflect.ValueOf(key)
	return v.IsZero()
}
