package orm

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE incident_seen (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		incident_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		last_seen TIMESTAMP NOT NULL,
		UNIQUE (incident_id, user_id)
	)`)
	require.NoError(t, err)
	return db
}

func TestSQLite_CreateOrUpdate(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	lookup := map[string]interface{}{"incident_id": 3, "user_id": 9}

	created, err := CreateOrUpdate(ctx, db, seenModel(), lookup, nil)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = CreateOrUpdate(ctx, db, seenModel(), lookup, nil)
	require.NoError(t, err)
	assert.False(t, created)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM incident_seen`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSQLite_UniqueViolation(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	values := map[string]interface{}{"incident_id": 1, "user_id": 2}

	id, err := Create(ctx, db, seenModel(), values)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	_, err = Create(ctx, db, seenModel(), values)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	affected, err := Update(ctx, db, seenModel(), id, map[string]interface{}{"user_id": 5})
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	affected, err = Update(ctx, db, seenModel(), int64(99), map[string]interface{}{"user_id": 5})
	require.NoError(t, err)
	assert.Zero(t, affected)
}
