package source

import (
	"github.com/root-talis/dankai/migration"
)

// Source assembles the ordered list of migration steps a set is built
// from. Loading happens at construction time only; a Source plays no part
// in applying migrations.
type Source interface {
	Steps() ([]migration.Step, error)
}
