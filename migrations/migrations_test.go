package migrations_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"code.cloudfoundry.org/lager/v3/lagertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root-talis/ikou"
	"github.com/root-talis/ikou/driver/sqlite"
	"github.com/root-talis/ikou/migration"
	"github.com/root-talis/ikou/migrations"
)

func TestRegistryIsOrdered(t *testing.T) {
	t.Parallel()

	units := migrations.All()
	require.Len(t, units, 4)

	for i := 1; i < len(units); i++ {
		assert.True(t, units[i-1].ID.Less(units[i].ID), "%s should sort before %s", units[i-1], units[i])
	}
	for _, unit := range units {
		assert.True(t, unit.CanRevert(), "%s should be reversible", unit)
	}

	// every call returns a fresh registry
	units[0].Name = "changed"
	assert.Equal(t, "users", migrations.All()[0].Name)
}

func TestRoundTripOnSqlite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	drv, err := sqlite.Open(filepath.Join(t.TempDir(), "campaigns.db"), sqlite.Config{})
	require.NoError(t, err)
	defer drv.Close()
	db := drv.(interface{ DB() *sql.DB }).DB()

	runner := ikou.New(drv,
		ikou.WithSources(migrations.Source()),
		ikou.WithLogger(lagertest.NewTestLogger("test")),
	)

	count, err := runner.Up(ctx, "003")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	_, err = db.Exec(`INSERT INTO users (email, created_at) VALUES ('ann@example.com', CURRENT_TIMESTAMP)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO campaigns (owner_id, title, created_at) VALUES
		(1, 'Spring Sale', CURRENT_TIMESTAMP),
		(1, 'Spring Sale', CURRENT_TIMESTAMP)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO events (campaign_id, kind, payload, occurred_at) VALUES (2, 'open', '{"ip":"10.0.0.1"}', CURRENT_TIMESTAMP)`)
	require.NoError(t, err)

	count, err = runner.Up(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rows, err := db.Query(`SELECT slug FROM campaigns ORDER BY id`)
	require.NoError(t, err)
	slugs := []string{}
	for rows.Next() {
		var slug string
		require.NoError(t, rows.Scan(&slug))
		slugs = append(slugs, slug)
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())
	assert.Equal(t, []string{"spring-sale-1", "spring-sale-2"}, slugs)

	// slugs are required and unique from now on
	_, err = db.Exec(`INSERT INTO campaigns (owner_id, title, created_at) VALUES (1, 'Autumn', CURRENT_TIMESTAMP)`)
	assert.Error(t, err)
	_, err = db.Exec(`INSERT INTO campaigns (owner_id, title, slug, created_at) VALUES (1, 'Autumn', 'spring-sale-1', CURRENT_TIMESTAMP)`)
	assert.Error(t, err)

	// the rebuilt table kept its rows and indexes
	var events int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM events e JOIN campaigns c ON c.id = e.campaign_id`).Scan(&events))
	assert.Equal(t, 1, events)
	var indexes int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_campaigns_owner_id'`).Scan(&indexes))
	assert.Equal(t, 1, indexes)

	count, err = runner.Down(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	var slugColumns int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('campaigns') WHERE name = 'slug'`).Scan(&slugColumns))
	assert.Zero(t, slugColumns)

	count, err = runner.Down(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	status, err := runner.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(4), status.PendingCount)
	for _, state := range status.States {
		assert.Equal(t, migration.Pending, state.Status)
	}

	var tables int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('users', 'campaigns', 'events')`).Scan(&tables))
	assert.Zero(t, tables)
}
