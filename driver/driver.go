package driver

import (
	"errors"
	"fmt"

	"github.com/root-talis/dankai/migration"
)

// Tx is one migration transaction. Statement execution, the version
// counter write and Commit/Rollback are all atomic with respect to each
// other: after Rollback neither the statements nor the counter write are
// visible.
type Tx interface {
	migration.Executor

	// Version reads the persisted schema version counter.
	Version() (int64, error)

	// SetVersion writes the persisted schema version counter. The write
	// takes effect only on Commit.
	SetVersion(v int64) error

	Commit() error
	Rollback() error
}

// Driver abstracts the database engine underneath the runner. The engine
// must store the version counter in a fixed location outside user tables
// (the user_version header field for SQLite) and must support
// transactional rollback covering both SQL statements and the counter.
type Driver interface {
	// Version reads the persisted schema version counter outside any
	// transaction.
	Version() (int64, error)

	// Begin starts a top-level transaction. Implementations that can
	// detect an already-open external transaction must fail with
	// ErrTransactionOpen instead of nesting.
	Begin() (Tx, error)
}

var ErrTransactionOpen = errors.New("a transaction is already open on this connection")

// ---

// ForeignKeyChecker is implemented by transactions of engines that can
// enforce referential integrity checks on demand.
type ForeignKeyChecker interface {
	CheckForeignKeys() ([]ForeignKeyViolation, error)
}

// ForeignKeyViolation is one row reported by PRAGMA foreign_key_check.
type ForeignKeyViolation struct {
	Table  string
	RowID  int64
	Parent string
	FKID   int64
}

func (v ForeignKeyViolation) String() string {
	return fmt.Sprintf(
		"row with id %d in table %q is missing from table %q but required by foreign key with id %d",
		v.RowID, v.Table, v.Parent, v.FKID,
	)
}
