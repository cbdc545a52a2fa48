// Package dankai migrates SQLite schemas by driving the user_version
// counter through an ordered set of forward (and optionally backward)
// migration steps. All steps of one migration run are applied in a single
// transaction together with the counter update, so a failed run leaves the
// database exactly at its pre-run version.
package dankai

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/rs/zerolog"

	"github.com/root-talis/dankai/driver"
	"github.com/root-talis/dankai/migration"
	"github.com/root-talis/dankai/source"
	"github.com/root-talis/dankai/source/files"
)

// ---

// Set is an ordered sequence of migration steps, fixed at construction.
// A step's identity is its 1-based position; across releases of an
// application the set may only be appended to, never reordered or
// shortened for databases already migrated past the shrink point.
type Set struct {
	steps []migration.Step
}

// NewSet creates a set from steps in application order.
func NewSet(steps ...migration.Step) *Set {
	s := make([]migration.Step, len(steps))
	copy(s, steps)
	return &Set{steps: s}
}

// NewSetFromSource builds a set by loading steps from src.
func NewSetFromSource(src source.Source) (*Set, error) {
	steps, err := src.Steps()
	if err != nil {
		return nil, fmt.Errorf("failed to load migration steps: %w", err)
	}

	return NewSet(steps...), nil
}

// NewSetFromFS builds a set from a directory tree (an embed.FS or
// os.DirFS, for instance) laid out as described in package source/files.
func NewSetFromFS(fsys fs.FS, dir string) (*Set, error) {
	src, err := files.New(fsys, dir)
	if err != nil {
		return nil, err
	}

	return NewSetFromSource(src)
}

// Len returns the number of steps in the set.
func (s *Set) Len() int {
	return len(s.steps)
}

// Latest returns the version a fully migrated database would have.
func (s *Set) Latest() migration.Version {
	return migration.Version(len(s.steps))
}

func (s *Set) step(n int) migration.Step {
	return s.steps[n-1]
}

// ---

type validateConfig struct {
	requireReversible bool
}

// ValidateOption configures Set.Validate.
type ValidateOption func(*validateConfig)

// RequireReversible makes Validate fail for any one-way step, useful when
// a project's policy is that every migration must be revertible.
func RequireReversible() ValidateOption {
	return func(cfg *validateConfig) {
		cfg.requireReversible = true
	}
}

// Validate checks the internal consistency of the set without touching any
// database. It reports every problem at once as a *ValidationError.
func (s *Set) Validate(opts ...ValidateOption) error {
	var cfg validateConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var problems []StepProblem
	for i, step := range s.steps {
		n := i + 1

		if strings.TrimSpace(step.UpSQL()) == "" {
			problems = append(problems, StepProblem{Step: n, Problem: "empty forward migration"})
		}

		switch {
		case step.Reversible() && strings.TrimSpace(step.DownSQL()) == "":
			problems = append(problems, StepProblem{Step: n, Problem: "empty backward migration"})
		case !step.Reversible() && cfg.requireReversible:
			problems = append(problems, StepProblem{Step: n, Problem: "no backward migration"})
		}
	}

	if len(problems) != 0 {
		return &ValidationError{Problems: problems}
	}

	return nil
}

// ---

// Runner drives the persisted schema version of one database towards a
// requested target. It performs no retries and no repair of an out-of-range
// counter; concurrent runs against the same database must be serialized by
// the caller.
type Runner struct {
	drv driver.Driver
	log zerolog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger makes the runner log step progress through the given logger.
// Without it the runner is silent.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) {
		r.log = logger
	}
}

// New creates a runner on top of drv.
func New(drv driver.Driver, opts ...Option) *Runner {
	r := &Runner{
		drv: drv,
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// ---

// CurrentVersion reads the persisted schema version. It fails with
// ErrInvalidUserVersion when the stored value is negative or exceeds the
// set length.
func (r *Runner) CurrentVersion(set *Set) (migration.Version, error) {
	stored, err := r.drv.Version()
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}

	return checkStoredVersion(stored, set)
}

// PendingCount returns how many steps of the set have not been applied
// yet, without executing anything.
func (r *Runner) PendingCount(set *Set) (int, error) {
	current, err := r.CurrentVersion(set)
	if err != nil {
		return 0, err
	}

	return set.Len() - int(current), nil
}

// ToLatest migrates the database to the highest version of the set.
func (r *Runner) ToLatest(set *Set) error {
	return r.MigrateTo(set, set.Latest())
}

// MigrateTo migrates the database to the given target version, forward or
// backward as needed. The whole run — every step and the final version
// write — commits atomically or not at all.
//
// When the database is already at the target, MigrateTo returns
// immediately without opening a transaction.
func (r *Runner) MigrateTo(set *Set, target migration.Version) error {
	if target < 0 || target > set.Latest() {
		return &TargetVersionError{Target: target, Max: set.Latest()}
	}

	current, err := r.CurrentVersion(set)
	if err != nil {
		return err
	}

	switch {
	case target == current:
		r.log.Debug().
			Int64("version", int64(current)).
			Msg("no migration to run, database already at target version")
		return nil
	case target > current:
		err = r.upward(set, current, target)
	default:
		err = r.downward(set, current, target)
	}

	if err != nil {
		return err
	}

	r.log.Info().
		Int64("from", int64(current)).
		Int64("to", int64(target)).
		Msg("database migrated")

	return nil
}

// ---

func (r *Runner) upward(set *Set, current, target migration.Version) error {
	tx, err := r.drv.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}

	for n := current + 1; n <= target; n++ {
		if err = r.applyForward(tx, set, int(n)); err != nil {
			r.rollback(tx)
			return err
		}
	}

	return r.finish(tx, target)
}

func (r *Runner) downward(set *Set, current, target migration.Version) error {
	// The whole range must be revertible before anything executes.
	for n := int(target) + 1; n <= int(current); n++ {
		if !set.step(n).Reversible() {
			return &NoBackwardMigrationError{Step: n}
		}
	}

	tx, err := r.drv.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}

	for n := current; n > target; n-- {
		if err = r.applyBackward(tx, set, int(n)); err != nil {
			r.rollback(tx)
			return err
		}
	}

	return r.finish(tx, target)
}

func (r *Runner) applyForward(tx driver.Tx, set *Set, n int) error {
	step := set.step(n)

	r.log.Debug().
		Int("step", n).
		Str("name", step.Label()).
		Msg("applying forward migration")

	if err := tx.Exec(step.UpSQL()); err != nil {
		return &StepError{Step: n, Query: step.UpSQL(), Err: err}
	}

	if hook := step.UpHook(); hook != nil {
		if err := hook(tx); err != nil {
			return &StepError{Step: n, Hook: true, Err: err}
		}
	}

	return r.checkForeignKeys(tx, set, n)
}

func (r *Runner) applyBackward(tx driver.Tx, set *Set, n int) error {
	step := set.step(n)

	r.log.Debug().
		Int("step", n).
		Str("name", step.Label()).
		Msg("applying backward migration")

	if hook := step.DownHook(); hook != nil {
		if err := hook(tx); err != nil {
			return &StepError{Step: n, Hook: true, Err: err}
		}
	}

	if err := tx.Exec(step.DownSQL()); err != nil {
		return &StepError{Step: n, Query: step.DownSQL(), Err: err}
	}

	return r.checkForeignKeys(tx, set, n)
}

func (r *Runner) checkForeignKeys(tx driver.Tx, set *Set, n int) error {
	if !set.step(n).ChecksForeignKeys() {
		return nil
	}

	checker, ok := tx.(driver.ForeignKeyChecker)
	if !ok {
		return &StepError{Step: n, Err: ErrForeignKeyCheckUnsupported}
	}

	violations, err := checker.CheckForeignKeys()
	if err != nil {
		return &StepError{Step: n, Err: err}
	}

	if len(violations) != 0 {
		return &ForeignKeyCheckError{Step: n, Violations: violations}
	}

	return nil
}

func (r *Runner) finish(tx driver.Tx, target migration.Version) error {
	if err := tx.SetVersion(int64(target)); err != nil {
		r.rollback(tx)
		return fmt.Errorf("failed to update schema version to %d: %w", target, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}

	return nil
}

func (r *Runner) rollback(tx driver.Tx) {
	if err := tx.Rollback(); err != nil {
		r.log.Warn().Err(err).Msg("failed to roll back migration transaction")
	}
}

// ---

func checkStoredVersion(stored int64, set *Set) (migration.Version, error) {
	if stored < 0 || stored > int64(set.Len()) {
		return 0, &UserVersionError{
			Stored: migration.Version(stored),
			Max:    set.Latest(),
		}
	}

	return migration.Version(stored), nil
}
