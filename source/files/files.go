package files

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"

	"github.com/root-talis/dankai/migration"
	"github.com/root-talis/dankai/source"
)

const (
	upFileName   = "up.sql"
	downFileName = "down.sql"
)

var (
	ErrNotADirectory  = errors.New("migrations path is not a directory")
	ErrNoMigrations   = errors.New("directory does not contain any migration steps")
	ErrDuplicateStep  = errors.New("duplicate migration id")
	ErrNonConsecutive = errors.New("migration ids must be consecutive numbers starting from 1")
)

type fileSource struct {
	fsys fs.FS
	dir  string
}

// New creates a Source reading migration steps from dir inside fsys.
// Both embed.FS and os.DirFS work.
//
// Every subdirectory of dir describes one step and must be named
// "{id}-{name}", ids forming the consecutive sequence 1..N. A step
// directory must contain an up.sql file and may contain a down.sql file:
//
//	migrations
//	├── 01-friend_car
//	│  └── up.sql
//	├── 02-add_birthday_column
//	│  └── up.sql
//	└── 03-add_animal_table
//	   ├── down.sql
//	   └── up.sql
func New(fsys fs.FS, dir string) (source.Source, error) {
	stat, err := fs.Stat(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat migrations directory: %w", err)
	}

	if !stat.IsDir() {
		return nil, ErrNotADirectory
	}

	return &fileSource{fsys: fsys, dir: dir}, nil
}

func (src *fileSource) Steps() ([]migration.Step, error) {
	entries, err := fs.ReadDir(src.fsys, src.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read contents of migrations directory: %w", err)
	}

	stepDirs := make([]fs.DirEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			stepDirs = append(stepDirs, entry)
		}
	}

	if len(stepDirs) == 0 {
		return nil, ErrNoMigrations
	}

	loaded := make([]*migration.Step, len(stepDirs))
	for _, entry := range stepDirs {
		name := entry.Name()

		id, err := parseStepID(name)
		if err != nil {
			return nil, err
		}

		if id > len(loaded) {
			return nil, fmt.Errorf("%w: id %d of %q exceeds the step count %d",
				ErrNonConsecutive, id, name, len(loaded))
		}

		if loaded[id-1] != nil {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateStep, id)
		}

		step, err := src.readStep(name)
		if err != nil {
			return nil, err
		}

		loaded[id-1] = &step
	}

	steps := make([]migration.Step, len(loaded))
	for i, step := range loaded {
		if step == nil {
			return nil, fmt.Errorf("%w: id %d is missing", ErrNonConsecutive, i+1)
		}
		steps[i] = *step
	}

	return steps, nil
}

func (src *fileSource) readStep(name string) (migration.Step, error) {
	up, err := fs.ReadFile(src.fsys, path.Join(src.dir, name, upFileName))
	if err != nil {
		return migration.Step{}, fmt.Errorf("failed to read forward migration of step %q: %w", name, err)
	}

	step := migration.Up(string(up)).Comment(name)

	down, err := fs.ReadFile(src.fsys, path.Join(src.dir, name, downFileName))
	switch {
	case err == nil:
		step = step.Down(string(down))
	case !errors.Is(err, fs.ErrNotExist):
		return migration.Step{}, fmt.Errorf("failed to read backward migration of step %q: %w", name, err)
	}

	return step, nil
}

func parseStepID(name string) (int, error) {
	idText, _, found := strings.Cut(name, "-")
	if !found {
		return 0, fmt.Errorf("step directory name %q does not match \"{id}-{name}\"", name)
	}

	id, err := strconv.Atoi(idText)
	if err != nil {
		return 0, fmt.Errorf("step directory name %q does not start with a numeric id: %w", name, err)
	}

	if id < 1 {
		return 0, fmt.Errorf("step directory name %q has an invalid id: ids start at 1", name)
	}

	return id, nil
}
