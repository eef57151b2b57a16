package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"code.cloudfoundry.org/lager/v3"

	"github.com/root-talis/ikou/migration"
)

const minIDWidth = 3

var ErrInvalidMigrationName = errors.New("migration name must be made of letters, digits and underscores")

type NewCommand struct {
	Args struct {
		Name string `positional-arg-name:"NAME" required:"yes"`
	} `positional-args:"yes"`

	app *app
}

func (cmd *NewCommand) Execute([]string) error {
	logger := cmd.app.logger()
	logger.Debug(starting, lager.Data{"command": "new", "name": cmd.Args.Name})
	defer logger.Debug(finished, lager.Data{"command": "new"})

	name, err := normalizeName(cmd.Args.Name)
	if err != nil {
		return err
	}

	cfg, err := cmd.app.settings()
	if err != nil {
		logger.Error(failedToLoadConfig, err)
		return err
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create migrations directory: %w", err)
	}

	id, err := nextID(cfg.Dir)
	if err != nil {
		logger.Error(failedToReadMigrationsDir, err, lager.Data{"dir": cfg.Dir})
		return err
	}

	base := id + "_" + name
	for _, suffix := range []string{".up.sql", ".down.sql"} {
		path := filepath.Join(cfg.Dir, base+suffix)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return fmt.Errorf("failed to create migration file: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to create migration file: %w", err)
		}

		logger.Info(createdMigrationFile, lager.Data{"path": path})
		fmt.Fprintln(cmd.app.stdout, path)
	}

	return nil
}

func normalizeName(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)

	if name == "" {
		return "", ErrInvalidMigrationName
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return "", fmt.Errorf("%w: %q", ErrInvalidMigrationName, name)
		}
	}

	return name, nil
}

// nextID is one past the highest numeric id in dir, zero-padded to the
// widest id seen.
func nextID(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var highest uint64
	width := minIDWidth

	for _, entry := range entries {
		fileName := entry.Name()
		if entry.IsDir() {
			continue
		}

		var base string
		switch {
		case strings.HasSuffix(fileName, ".up.sql"):
			base = strings.TrimSuffix(fileName, ".up.sql")
		case strings.HasSuffix(fileName, ".down.sql"):
			base = strings.TrimSuffix(fileName, ".down.sql")
		default:
			continue
		}

		id, _, err := migration.ParseFileName(base)
		if err != nil {
			continue
		}

		n, err := strconv.ParseUint(string(id), 10, 64)
		if err != nil {
			return "", fmt.Errorf("migration id %s is out of range: %w", id, err)
		}

		if n > highest {
			highest = n
		}
		if len(id) > width {
			width = len(id)
		}
	}

	return fmt.Sprintf("%0*d", width, highest+1), nil
}
