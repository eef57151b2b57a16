package schema_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/root-talis/ikou/schema"
)

func openSqlite(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "schema.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func notNullColumns(t *testing.T, db *sql.DB, table string) map[string]bool {
	t.Helper()

	rows, err := db.Query(`SELECT name, "notnull" FROM pragma_table_info(?)`, table)
	require.NoError(t, err)
	defer rows.Close()

	result := map[string]bool{}
	for rows.Next() {
		var name string
		var notNull bool
		require.NoError(t, rows.Scan(&name, &notNull))
		result[name] = notNull
	}
	require.NoError(t, rows.Err())

	return result
}

func TestSqliteSetNotNullRebuildsTable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openSqlite(t)
	ed := schema.NewEditor(schema.SQLite, db)

	require.NoError(t, ed.CreateTable(ctx, "users", schema.Column{Name: "id", Type: schema.Serial}))
	require.NoError(t, ed.CreateTable(ctx, "campaigns",
		schema.Column{Name: "id", Type: schema.Serial},
		schema.Column{Name: "code", Type: schema.String, Size: 32, Unique: true},
		schema.Column{Name: "owner_id", Type: schema.BigInt, Nullable: true, References: &schema.ForeignKey{Table: "users", Column: "id", OnDelete: "CASCADE"}},
		schema.Column{Name: "slug", Type: schema.String, Nullable: true},
		schema.Column{Name: "budget", Type: schema.Decimal, Precision: 12, Scale: 2, Default: "0"},
	))
	require.NoError(t, ed.CreateIndex(ctx, schema.Index{Table: "campaigns", Columns: []string{"slug"}, Unique: true}))

	_, err := db.Exec(`INSERT INTO users (id) VALUES (7)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO campaigns (code, owner_id, slug) VALUES ('a', 7, 'spring'), ('b', NULL, 'autumn')`)
	require.NoError(t, err)

	require.NoError(t, ed.SetNotNull(ctx, "campaigns", schema.Column{Name: "slug"}))

	cols := notNullColumns(t, db, "campaigns")
	assert.True(t, cols["slug"])
	assert.False(t, cols["owner_id"])
	assert.True(t, cols["code"])

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM campaigns WHERE budget = 0`).Scan(&count))
	assert.Equal(t, 2, count)

	// the explicit index and the inline unique constraint both survive
	_, err = db.Exec(`INSERT INTO campaigns (code, slug) VALUES ('c', 'spring')`)
	assert.Error(t, err)
	_, err = db.Exec(`INSERT INTO campaigns (code, slug) VALUES ('a', 'winter')`)
	assert.Error(t, err)

	var fkCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM pragma_foreign_key_list('campaigns')`).Scan(&fkCount))
	assert.Equal(t, 1, fkCount)

	// autoincrement continues after the copied rows
	_, err = db.Exec(`INSERT INTO campaigns (code, slug) VALUES ('d', 'summer')`)
	require.NoError(t, err)
	var maxID int
	require.NoError(t, db.QueryRow(`SELECT MAX(id) FROM campaigns`).Scan(&maxID))
	assert.Equal(t, 3, maxID)
}

func TestSqliteSetNotNullFailsOnNulls(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openSqlite(t)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)

	ed := schema.NewEditor(schema.SQLite, tx)
	require.NoError(t, ed.CreateTable(ctx, "events",
		schema.Column{Name: "id", Type: schema.Serial},
		schema.Column{Name: "kind", Type: schema.String, Nullable: true},
	))
	_, err = tx.Exec(`INSERT INTO events (kind) VALUES ('open'), (NULL)`)
	require.NoError(t, err)

	err = ed.SetNotNull(ctx, "events", schema.Column{Name: "kind"})
	assert.Error(t, err)
	require.NoError(t, tx.Rollback())
}

func TestSqliteSetNotNullUnknownColumn(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openSqlite(t)
	ed := schema.NewEditor(schema.SQLite, db)

	require.NoError(t, ed.CreateTable(ctx, "events", schema.Column{Name: "id", Type: schema.Serial}))

	err := ed.SetNotNull(ctx, "events", schema.Column{Name: "nope"})
	assert.ErrorIs(t, err, schema.ErrNoSuchColumn)

	err = ed.SetNotNull(ctx, "nope", schema.Column{Name: "id"})
	assert.Error(t, err)
}

func TestSqliteEditorRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openSqlite(t)
	ed := schema.NewEditor(schema.SQLite, db)

	require.NoError(t, ed.CreateTableIfNotExists(ctx, "events", schema.Column{Name: "id", Type: schema.Serial}))
	require.NoError(t, ed.CreateTableIfNotExists(ctx, "events", schema.Column{Name: "id", Type: schema.Serial}))
	require.NoError(t, ed.AddColumn(ctx, "events", schema.Column{Name: "payload", Type: schema.JSON, Nullable: true}))
	assert.Contains(t, notNullColumns(t, db, "events"), "payload")

	require.NoError(t, ed.DropColumn(ctx, "events", "payload"))
	assert.NotContains(t, notNullColumns(t, db, "events"), "payload")

	require.NoError(t, ed.DropTable(ctx, "events"))
	assert.Empty(t, notNullColumns(t, db, "events"))
}
