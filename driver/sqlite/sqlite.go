// Package sqlite is the SQLite driver, built on modernc.org/sqlite.
//
// SQLite has no advisory locks, so the migration lock is a row in a
// companion table named "<table>_lock". The row is deleted on release;
// if the process dies while holding it, an operator has to delete it.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager/v3"
	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	moderncsqlite "modernc.org/sqlite"

	"github.com/root-talis/ikou/driver"
	"github.com/root-talis/ikou/driver/sqldriver"
	"github.com/root-talis/ikou/lock"
	"github.com/root-talis/ikou/schema"
)

const (
	busyTimeoutPragma = "_pragma=busy_timeout(5000)"
	immediateTxLock   = "_txlock=immediate"

	// SQLITE_BUSY; extended codes keep it in the low byte.
	sqliteBusy = 5

	failedToReleaseLock = "failed-to-release-lock"
)

type Config struct {
	MigrationsTableName string
	LockWait            time.Duration
	RetryInterval       time.Duration
	Clock               clock.Clock
	Logger              lager.Logger
}

type sqliteDriver struct {
	*sqldriver.Base
	config Config
}

func NewDriver(db *sql.DB, config Config) driver.Driver {
	if config.Clock == nil {
		config.Clock = clock.NewClock()
	}
	if config.Logger == nil {
		config.Logger = lager.NewLogger("ikou")
	}

	return &sqliteDriver{
		Base:   sqldriver.New(db, schema.SQLite, config.MigrationsTableName),
		config: config,
	}
}

// Open connects to the database file at dsn. A busy timeout and
// immediate transactions are added unless dsn already sets them.
func Open(dsn string, config Config) (driver.Driver, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty sqlite path", driver.ErrInvalidDSN)
	}

	if !strings.Contains(dsn, "busy_timeout") {
		dsn = withParam(dsn, busyTimeoutPragma)
	}
	if !strings.Contains(dsn, "_txlock") {
		dsn = withParam(dsn, immediateTxLock)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// one writer at a time; also keeps ":memory:" databases on one connection
	db.SetMaxOpenConns(1)

	return NewDriver(db, config), nil
}

func withParam(dsn string, param string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + param
	}
	return dsn + "?" + param
}

func (drv *sqliteDriver) lockTable() string {
	return drv.Table() + "_lock"
}

func (drv *sqliteDriver) Acquire(ctx context.Context, key string) (context.Context, func(), error) {
	ed := schema.NewEditor(schema.SQLite, drv.DB())
	err := ed.CreateTableIfNotExists(ctx, drv.lockTable(),
		schema.Column{Name: "lock_key", Type: schema.String, PrimaryKey: true},
		schema.Column{Name: "owner", Type: schema.String},
		schema.Column{Name: "acquired_at", Type: schema.Timestamp},
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create lock table: %w", err)
	}

	owner := uuid.NewString()
	table := schema.SQLite.Quote(drv.lockTable())

	err = lock.Poll(ctx, drv.config.Clock, drv.config.LockWait, drv.config.RetryInterval, func(ctx context.Context) (bool, error) {
		result, err := squirrel.Insert(table).
			Options("OR IGNORE").
			Columns("lock_key", "owner", "acquired_at").
			Values(key, owner, drv.config.Clock.Now().UTC()).
			RunWith(drv.DB()).
			ExecContext(ctx)
		if isBusy(err) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to insert lock row: %w", err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("failed to insert lock row: %w", err)
		}

		return n == 1, nil
	})
	if err != nil {
		return nil, nil, err
	}

	logger := drv.config.Logger.Session("sqlite-lock", lager.Data{"key": key})
	held, cancel := context.WithCancel(ctx)

	var once sync.Once
	release := func() {
		once.Do(func() {
			defer cancel()

			_, err := squirrel.Delete(table).
				Where(squirrel.Eq{"lock_key": key, "owner": owner}).
				RunWith(drv.DB()).
				ExecContext(context.Background())
			if err != nil {
				logger.Error(failedToReleaseLock, err)
			}
		})
	}

	return held, release, nil
}

// isBusy reports a write that gave up waiting for another connection's
// transaction; for the lock that means it is still held.
func isBusy(err error) bool {
	var sqliteErr *moderncsqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqliteBusy
	}
	return false
}
