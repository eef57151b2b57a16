package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/root-talis/ikou/migration"
	"github.com/root-talis/ikou/source"
)

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

var ErrMigrationsDirectoryIsNotADirectory = errors.New("migrations directory is not a directory")

type filesSource struct {
	fsys fs.FS
	dir  string
}

// NewFilesSource reads units from dir inside fsys. Every unit is a
// "<id>_<name>.up.sql" file with an optional "<id>_<name>.down.sql"
// counterpart; without the latter the unit cannot be reverted.
func NewFilesSource(fsys fs.FS, dir string) (source.Source, error) {
	stat, err := fs.Stat(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat migrations directory: %w", err)
	}

	if !stat.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrMigrationsDirectoryIsNotADirectory, dir)
	}

	return &filesSource{
		fsys: fsys,
		dir:  dir,
	}, nil
}

type scripts struct {
	name     string
	up       *string
	down     *string
	upFile   string
	downFile string
}

type idMap map[migration.ID]*scripts

func (src *filesSource) Units() ([]migration.Unit, error) {
	dirEntries, err := fs.ReadDir(src.fsys, src.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read contents of migrations directory: %w", err)
	}

	found := make(idMap)
	for _, entry := range dirEntries {
		if entry.IsDir() || !entry.Type().IsRegular() {
			continue
		}

		fileName := entry.Name()

		var base string
		var up bool
		switch {
		case strings.HasSuffix(fileName, upSuffix):
			base, up = strings.TrimSuffix(fileName, upSuffix), true
		case strings.HasSuffix(fileName, downSuffix):
			base, up = strings.TrimSuffix(fileName, downSuffix), false
		default:
			continue
		}

		id, name, err := migration.ParseFileName(base)
		if err != nil {
			continue
		}

		content, err := fs.ReadFile(src.fsys, path.Join(src.dir, fileName))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", fileName, err)
		}

		if err := found.add(id, name, fileName, string(content), up); err != nil {
			return nil, err
		}
	}

	result := make([]migration.Unit, 0, len(found))
	for id, s := range found {
		if s.up == nil {
			return nil, &migration.DiscoveryError{
				ID:     id,
				Reason: fmt.Sprintf("%s has no matching %s file", s.downFile, upSuffix),
			}
		}

		unit := migration.Unit{
			ID:    id,
			Name:  s.name,
			Apply: scriptFunc(s.upFile, *s.up),
		}
		if s.down != nil {
			unit.Revert = scriptFunc(s.downFile, *s.down)
		}

		result = append(result, unit)
	}

	migration.SortUnits(result)

	return result, nil
}

func (m idMap) add(id migration.ID, name string, fileName string, content string, up bool) error {
	existing, exists := m[id]

	switch {
	case !exists:
		existing = &scripts{name: name}
		m[id] = existing

	case existing.name != name:
		return &migration.DiscoveryError{
			ID: id,
			Reason: fmt.Sprintf(
				"migration already exists with name %q (new name %q is encountered in %s)",
				existing.name,
				name,
				fileName,
			),
		}
	}

	if up {
		existing.up = &content
		existing.upFile = fileName
	} else {
		existing.down = &content
		existing.downFile = fileName
	}

	return nil
}

func scriptFunc(fileName string, script string) migration.Func {
	return func(ctx context.Context, tx *migration.Tx) error {
		if strings.TrimSpace(script) == "" {
			return nil
		}

		if _, err := tx.ExecContext(ctx, script); err != nil {
			return fmt.Errorf("failed to execute %s: %w", fileName, err)
		}

		return nil
	}
}
