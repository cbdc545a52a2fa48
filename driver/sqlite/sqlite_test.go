package sqlite_test

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root-talis/dankai/driver"
	"github.com/root-talis/dankai/driver/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)

	// Every pooled connection of an in-memory DSN gets its own database,
	// so pin the pool to a single connection.
	db.SetMaxOpenConns(1)

	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestVersionOfFreshDatabaseIsZero(t *testing.T) {
	t.Parallel()

	drv := sqlite.New(newTestDB(t))

	v, err := drv.Version()

	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestVersionReadsTamperedCounter(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	_, err := db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)

	v, err := sqlite.New(db).Version()

	require.NoError(t, err)
	assert.Equal(t, int64(99), v)
}

func TestSetVersionVisibleAfterCommit(t *testing.T) {
	t.Parallel()

	drv := sqlite.New(newTestDB(t))

	tx, err := drv.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.SetVersion(3))

	inTx, err := tx.Version()
	require.NoError(t, err)
	assert.Equal(t, int64(3), inTx, "the write must be visible inside the transaction")

	require.NoError(t, tx.Commit())

	v, err := drv.Version()
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestRollbackRevertsStatementsAndVersion(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	drv := sqlite.New(db)

	tx, err := drv.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.Exec("CREATE TABLE animals (name TEXT);"))
	require.NoError(t, tx.SetVersion(1))
	require.NoError(t, tx.Rollback())

	v, err := drv.Version()
	require.NoError(t, err)
	assert.Equal(t, int64(0), v, "user_version write must roll back with the transaction")

	_, err = db.Exec("INSERT INTO animals (name) VALUES ('dog')")
	assert.Error(t, err, "the table created inside the rolled back transaction must not exist")
}

func TestExecRunsMultiStatementBatch(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	drv := sqlite.New(db)

	tx, err := drv.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.Exec(
		"CREATE TABLE animals (name TEXT);"+
			"CREATE TABLE food (name TEXT);"+
			"INSERT INTO food (name) VALUES ('carrot');",
	))
	require.NoError(t, tx.Commit())

	var count int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM food").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestCheckForeignKeysReportsViolations(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	drv := sqlite.New(db)

	tx, err := drv.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.Exec(
		"CREATE TABLE parent (id INTEGER PRIMARY KEY);"+
			"CREATE TABLE child (parent_id INTEGER REFERENCES parent(id));"+
			// foreign_keys is OFF by default, so the orphan goes in
			"INSERT INTO child (parent_id) VALUES (42);",
	))

	checker, ok := tx.(driver.ForeignKeyChecker)
	require.True(t, ok, "sqlite transactions must support foreign key checks")

	violations, err := checker.CheckForeignKeys()
	require.NoError(t, err)
	assert.Equal(t, []driver.ForeignKeyViolation{
		{Table: "child", RowID: 1, Parent: "parent", FKID: 0},
	}, violations)

	require.NoError(t, tx.Rollback())
}

func TestCheckForeignKeysCleanDatabase(t *testing.T) {
	t.Parallel()

	drv := sqlite.New(newTestDB(t))

	tx, err := drv.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.Exec(
		"CREATE TABLE parent (id INTEGER PRIMARY KEY);"+
			"CREATE TABLE child (parent_id INTEGER REFERENCES parent(id));"+
			"INSERT INTO parent (id) VALUES (1);"+
			"INSERT INTO child (parent_id) VALUES (1);",
	))

	checker, ok := tx.(driver.ForeignKeyChecker)
	require.True(t, ok)

	violations, err := checker.CheckForeignKeys()
	require.NoError(t, err)
	assert.Empty(t, violations)

	require.NoError(t, tx.Commit())
}
