package migration

// Version counts how many steps of a set have been applied, in order,
// from the start. 0 means a fresh database.
//
// The counter is persisted as the SQLite user_version header field, which
// is a signed 32-bit integer; Version is wider so that any stored value
// can be read back and reported instead of truncated.
type Version int64

// ---

// Executor executes a batch of SQL statements. It is the surface exposed
// to step hooks; the transaction handed to a hook satisfies it.
type Executor interface {
	Exec(query string) error
}

// Hook is user code running inside the migration transaction. An up hook
// runs after the step's forward SQL, a down hook runs before the step's
// backward SQL. A hook error aborts the whole transaction.
type Hook func(exec Executor) error

// ---

// Step is one unit of schema change. Its identity is its 1-based position
// in the owning set; a Step value carries no version of its own.
//
// Steps are built with Up and the chainable methods below:
//
//	migration.Up("CREATE TABLE animals (name TEXT);").
//		Down("DROP TABLE animals;").
//		Comment("add animals table")
//
// A step without a Down clause is one-way: it can never be reverted.
type Step struct {
	up         string
	down       string
	reversible bool
	upHook     Hook
	downHook   Hook
	fkCheck    bool
	comment    string
}

// Up creates a forward-only step from a batch of SQL statements.
func Up(sql string) Step {
	return Step{up: sql}
}

// Down makes the step reversible with the given batch of SQL statements,
// which should exactly undo the forward batch.
func (s Step) Down(sql string) Step {
	s.down = sql
	s.reversible = true
	return s
}

// Comment attaches a free-text label, used in logs and error messages.
func (s Step) Comment(text string) Step {
	s.comment = text
	return s
}

// WithUpHook attaches code to run right after the forward SQL, inside the
// same transaction.
func (s Step) WithUpHook(h Hook) Step {
	s.upHook = h
	return s
}

// WithDownHook attaches code to run right before the backward SQL, inside
// the same transaction.
func (s Step) WithDownHook(h Hook) Step {
	s.downHook = h
	return s
}

// ForeignKeyCheck makes the step run PRAGMA foreign_key_check before the
// migration transaction commits, in both directions. Any violation aborts
// the transaction.
func (s Step) ForeignKeyCheck() Step {
	s.fkCheck = true
	return s
}

// ---

// UpSQL returns the forward statement batch.
func (s Step) UpSQL() string { return s.up }

// DownSQL returns the backward statement batch, empty for one-way steps.
func (s Step) DownSQL() string { return s.down }

// Reversible reports whether the step has a backward migration.
func (s Step) Reversible() bool { return s.reversible }

// UpHook returns the attached up hook, nil if none.
func (s Step) UpHook() Hook { return s.upHook }

// DownHook returns the attached down hook, nil if none.
func (s Step) DownHook() Hook { return s.downHook }

// ChecksForeignKeys reports whether the step requested a foreign key check.
func (s Step) ChecksForeignKeys() bool { return s.fkCheck }

// Label returns the comment attached to the step, empty if none.
func (s Step) Label() string { return s.comment }
