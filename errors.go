package dankai

import (
	"errors"
	"fmt"
	"strings"

	"github.com/root-talis/dankai/driver"
	"github.com/root-talis/dankai/migration"
)

var (
	// ErrInvalidUserVersion signals that the version counter stored in the
	// database is outside [0, len(set)] — either external tampering or a
	// database migrated by a different (longer) set.
	ErrInvalidUserVersion = errors.New("stored user version is out of range for the migration set")

	// ErrForeignKeyCheckUnsupported signals that a step requested a foreign
	// key check but the driver's transaction cannot perform one.
	ErrForeignKeyCheckUnsupported = errors.New("driver does not support foreign key checks")
)

// ---

// UserVersionError wraps ErrInvalidUserVersion with the offending value.
type UserVersionError struct {
	Stored migration.Version
	Max    migration.Version
}

func (e *UserVersionError) Error() string {
	return fmt.Sprintf("%v: %d is outside [0, %d]", ErrInvalidUserVersion, e.Stored, e.Max)
}

func (e *UserVersionError) Unwrap() error { return ErrInvalidUserVersion }

// ---

// TargetVersionError reports a migration target outside [0, len(set)].
type TargetVersionError struct {
	Target migration.Version
	Max    migration.Version
}

func (e *TargetVersionError) Error() string {
	return fmt.Sprintf("target version %d is outside [0, %d]", e.Target, e.Max)
}

// ---

// NoBackwardMigrationError reports that a downward migration was requested
// through a one-way step. No statements have been executed.
type NoBackwardMigrationError struct {
	Step int // 1-based index into the set
}

func (e *NoBackwardMigrationError) Error() string {
	return fmt.Sprintf("step %d has no backward migration and cannot be reverted", e.Step)
}

// ---

// StepError reports a failed statement batch or hook within one step.
// The transaction has been rolled back; the database is at its
// pre-migration version.
type StepError struct {
	Step  int    // 1-based index into the set
	Query string // the failing statement batch, empty for hook failures
	Hook  bool
	Err   error // underlying engine or hook error
}

func (e *StepError) Error() string {
	if e.Hook {
		return fmt.Sprintf("hook of step %d failed: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("step %d failed executing %q: %v", e.Step, e.Query, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ---

// ForeignKeyCheckError reports referential integrity violations found by a
// step's foreign key check. The transaction has been rolled back.
type ForeignKeyCheckError struct {
	Step       int
	Violations []driver.ForeignKeyViolation
}

func (e *ForeignKeyCheckError) Error() string {
	descriptions := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		descriptions[i] = v.String()
	}

	return fmt.Sprintf(
		"foreign key check after step %d found %d violation(s): %s",
		e.Step, len(e.Violations), strings.Join(descriptions, "; "),
	)
}

// ---

// StepProblem is one inconsistency found by Set.Validate.
type StepProblem struct {
	Step    int
	Problem string
}

// ValidationError lists every inconsistency of a set at once.
type ValidationError struct {
	Problems []StepProblem
}

func (e *ValidationError) Error() string {
	descriptions := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		descriptions[i] = fmt.Sprintf("step %d: %s", p.Step, p.Problem)
	}

	return "migration set is inconsistent: " + strings.Join(descriptions, "; ")
}
