// Package sqlite persists the schema version in the user_version header
// field of a SQLite database, through database/sql and the pure-Go
// modernc.org/sqlite engine. The header field is read and written with
// PRAGMA statements, so opening a database never touches or creates any
// user table.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/root-talis/dankai/driver"
)

type sqliteDriver struct {
	db *sql.DB
}

// Open opens (or creates) the database at dsn. Use ":memory:" for a
// throwaway in-memory database.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	return db, nil
}

// New creates a Driver on top of an open database handle. The handle must
// not have an explicit transaction open when migrations run.
func New(db *sql.DB) driver.Driver {
	return &sqliteDriver{db: db}
}

func (drv *sqliteDriver) Version() (int64, error) {
	return readUserVersion(drv.db)
}

func (drv *sqliteDriver) Begin() (driver.Tx, error) {
	tx, err := drv.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &sqliteTx{tx: tx}, nil
}

// ---

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Exec(query string) error {
	_, err := t.tx.Exec(query)
	return err
}

func (t *sqliteTx) Version() (int64, error) {
	return readUserVersion(t.tx)
}

func (t *sqliteTx) SetVersion(v int64) error {
	// PRAGMA does not take bound parameters; user_version writes are
	// covered by the journal, so a rollback reverts this too.
	if _, err := t.tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
		return fmt.Errorf("failed to set user_version to %d: %w", v, err)
	}

	return nil
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTx) CheckForeignKeys() ([]driver.ForeignKeyViolation, error) {
	rows, err := t.tx.Query("PRAGMA foreign_key_check")
	if err != nil {
		return nil, fmt.Errorf("failed to run foreign_key_check: %w", err)
	}
	defer rows.Close()

	var violations []driver.ForeignKeyViolation
	for rows.Next() {
		var v driver.ForeignKeyViolation
		var rowID sql.NullInt64 // NULL for WITHOUT ROWID tables

		if err = rows.Scan(&v.Table, &rowID, &v.Parent, &v.FKID); err != nil {
			return nil, fmt.Errorf("failed to read foreign_key_check row: %w", err)
		}

		v.RowID = rowID.Int64
		violations = append(violations, v)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read foreign_key_check rows: %w", err)
	}

	return violations, nil
}

// ---

type rowQuerier interface {
	QueryRow(query string, args ...any) *sql.Row
}

func readUserVersion(q rowQuerier) (int64, error) {
	var v int64
	if err := q.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read user_version: %w", err)
	}

	return v, nil
}
