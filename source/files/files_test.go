package files_test

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/root-talis/ikou/migration"
	"github.com/root-talis/ikou/schema"
	"github.com/root-talis/ikou/source/files"
)

type description struct {
	ID        migration.ID
	Name      string
	CanRevert bool
}

func describe(units []migration.Unit) []description {
	result := make([]description, 0, len(units))
	for _, u := range units {
		result = append(result, description{ID: u.ID, Name: u.Name, CanRevert: u.CanRevert()})
	}
	return result
}

var unitsTestTable = []struct { // nolint:gochecknoglobals
	name                    string
	expectErrorWhenCreating bool
	expectErrorWhenCalling  bool
	directory               string
	fs                      fstest.MapFS
	expectedUnits           []description
}{
	// -- success tests ------
	/* s0 */ {
		name:      "test s0: should correctly list all migrations (1)",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
			"migrations/001_users.down.sql": {},
			"migrations/001_users.up.sql":   {},
		},
		expectedUnits: []description{
			{ID: "001", Name: "users", CanRevert: true},
		},
	},
	/* s1 */ {
		name:      "test s1: should correctly list all migrations (2)",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
			"migrations/002_campaigns.up.sql": {},
			"migrations/001_users.down.sql":   {},
			"migrations/001_users.up.sql":     {},
			"migrations/010_events.up.sql":    {},
			"migrations/003_fields.up.sql":    {},
		},
		expectedUnits: []description{
			{ID: "001", Name: "users", CanRevert: true},
			{ID: "002", Name: "campaigns", CanRevert: false},
			{ID: "003", Name: "fields", CanRevert: false},
			{ID: "010", Name: "events", CanRevert: false},
		},
	},
	/* s2 */ {
		name:      "test s2: should correctly list migrations in an non-standard directory",
		directory: "tmp/.Xs223xxSCa",
		fs: fstest.MapFS{
			"tmp/.Xs223xxSCa": {
				Mode: fs.ModeDir,
			},
			"tmp/.Xs223xxSCa/20211224081255_initial.up.sql":           {},
			"tmp/.Xs223xxSCa/20211224091800_add_users_table.down.sql": {},
			"tmp/.Xs223xxSCa/20211224091800_add_users_table.up.sql":   {},
		},
		expectedUnits: []description{
			{ID: "20211224081255", Name: "initial", CanRevert: false},
			{ID: "20211224091800", Name: "add_users_table", CanRevert: true},
		},
	},
	/* s3 */ {
		name:      "test s3: should skip on bad id format (does not start with a digit)",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
			"migrations/V001_init.up.sql":    {},
			"migrations/_001_init.up.sql":    {},
			"migrations/001_users.down.sql": {},
			"migrations/001_users.up.sql":   {},
		},
		expectedUnits: []description{
			{ID: "001", Name: "users", CanRevert: true},
		},
	},
	/* s4 */ {
		name:      "test s4: should skip on bad migration name (no underscore before name)",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
			"migrations/002init.up.sql":      {},
			"migrations/001_users.down.sql": {},
			"migrations/001_users.up.sql":   {},
		},
		expectedUnits: []description{
			{ID: "001", Name: "users", CanRevert: true},
		},
	},
	/* s5 */ {
		name:      "test s5: should skip on bad migration name (no name)",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
			"migrations/002.up.sql":          {},
			"migrations/003_.up.sql":         {},
			"migrations/001_users.down.sql": {},
			"migrations/001_users.up.sql":   {},
		},
		expectedUnits: []description{
			{ID: "001", Name: "users", CanRevert: true},
		},
	},
	/* s6 */ {
		name:      "test s6: should skip on bad suffix",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
			"migrations/002_init..sql":       {},
			"migrations/002_init.sql":        {},
			"migrations/002_init.up":         {},
			"migrations/002_init.":           {},
			"migrations/002_init":            {},
			"migrations/README.md":           {},
			"migrations/001_users.down.sql": {},
			"migrations/001_users.up.sql":   {},
		},
		expectedUnits: []description{
			{ID: "001", Name: "users", CanRevert: true},
		},
	},
	/* s7 */ {
		name:      "test s7: should not care about other directories",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
			"000_init.up.sql":                         {},
			"migrations/subdirectory/000_init.up.sql": {},
			"sibling/000_init.up.sql":                 {},
			"migrations/001_users.down.sql":           {},
			"migrations/001_users.up.sql":             {},
		},
		expectedUnits: []description{
			{ID: "001", Name: "users", CanRevert: true},
		},
	},
	/* s8 */ {
		name:      "test s8: should skip directories with matching name",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
			"migrations/000_init.up.sql": {
				Mode: fs.ModeDir,
			},
			"migrations/001_users.down.sql": {},
			"migrations/001_users.up.sql":   {},
		},
		expectedUnits: []description{
			{ID: "001", Name: "users", CanRevert: true},
		},
	},
	/* s9 */ {
		name:      "test s9: should return no units for an empty directory",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
		},
		expectedUnits: []description{},
	},

	// -- error tests --------
	/* e0 */ {
		name:      "test e0: should fail when directory does not exist",
		directory: "ikou",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
			"migrations/001_initial.up.sql": {},
		},
		expectErrorWhenCreating: true,
	},
	/* e1 */ {
		name:      "test e1: should fail on duplicate migration id",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
			"migrations/001_users.down.sql":   {},
			"migrations/001_users.up.sql":     {},
			"migrations/001_users_2.down.sql": {},
		},
		expectErrorWhenCalling: true,
	},
	/* e2 */ {
		name:      "test e2: should fail when directory is a file",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {},
		},
		expectErrorWhenCreating: true,
	},
	/* e3 */ {
		name:      "test e3: should fail when directory is a device",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDevice,
			},
		},
		expectErrorWhenCreating: true,
	},
	/* e4 */ {
		name:      "test e4: should fail when only a down script exists",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
			"migrations/001_users.down.sql": {},
		},
		expectErrorWhenCalling: true,
	},
}

func TestUnits(t *testing.T) {
	t.Parallel()
	t.Logf("Should correctly test fetching of available migrations from a directory.")

	for _, test := range unitsTestTable {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			src, err := files.NewFilesSource(test.fs, test.directory)

			if test.expectErrorWhenCreating {
				assert.Error(t, err)
				return
			} else if !assert.NoError(t, err) {
				return
			}

			units, err := src.Units()

			if test.expectErrorWhenCalling {
				var discoveryErr *migration.DiscoveryError
				assert.True(t, errors.As(err, &discoveryErr), "expected a DiscoveryError, got %v", err)
				return
			}

			if assert.NoError(t, err) {
				assert.Equal(t, test.expectedUnits, describe(units))
			}
		})
	}
}

func TestScriptsRunInsideTransaction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fsys := fstest.MapFS{
		"migrations":                    {Mode: fs.ModeDir},
		"migrations/001_users.up.sql":   {Data: []byte("CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT NOT NULL);\nCREATE INDEX idx_users_email ON users (email);")},
		"migrations/001_users.down.sql": {Data: []byte("DROP TABLE users;")},
		"migrations/002_noop.up.sql":    {Data: []byte("  \n")},
	}

	src, err := files.NewFilesSource(fsys, "migrations")
	require.NoError(t, err)
	units, err := src.Units()
	require.NoError(t, err)
	require.Len(t, units, 2)

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "files.db"))
	require.NoError(t, err)
	defer db.Close()

	run := func(fn migration.Func) error {
		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		if err := fn(ctx, migration.NewTx(tx, schema.SQLite)); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	}

	require.NoError(t, run(units[0].Apply))
	_, err = db.Exec(`INSERT INTO users (email) VALUES ('a@example.com')`)
	require.NoError(t, err)

	require.NoError(t, run(units[1].Apply))
	assert.False(t, units[1].CanRevert())

	require.NoError(t, run(units[0].Revert))
	_, err = db.Exec(`SELECT 1 FROM users`)
	assert.Error(t, err)
}
