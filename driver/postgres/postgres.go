// Package postgres is the PostgreSQL driver, built on pgx through its
// database/sql adapter. The migration lock is a session-level advisory
// lock held on a dedicated connection.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager/v3"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/root-talis/ikou/driver"
	"github.com/root-talis/ikou/driver/sqldriver"
	"github.com/root-talis/ikou/lock"
	"github.com/root-talis/ikou/schema"
)

const failedToReleaseLock = "failed-to-release-lock"

type Config struct {
	MigrationsTableName string
	LockWait            time.Duration
	RetryInterval       time.Duration
	Clock               clock.Clock
	Logger              lager.Logger
}

type postgresDriver struct {
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

	return &postgresDriver{
		Base:   sqldriver.New(db, schema.Postgres, config.MigrationsTableName),
		config: config,
	}
}

// Open accepts both URL and keyword/value connection strings.
func Open(dsn string, config Config) (driver.Driver, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty postgres connection string", driver.ErrInvalidDSN)
	}

	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", driver.ErrInvalidDSN, err)
	}

	return NewDriver(stdlib.OpenDB(*connConfig), config), nil
}

func (drv *postgresDriver) Acquire(ctx context.Context, key string) (context.Context, func(), error) {
	lockID := hashLockKey(key)

	// advisory locks belong to the session that took them
	conn, err := drv.DB().Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get a connection for lock %s: %w", key, err)
	}

	err = lock.Poll(ctx, drv.config.Clock, drv.config.LockWait, drv.config.RetryInterval, func(ctx context.Context) (bool, error) {
		var acquired bool
		if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired); err != nil {
			return false, fmt.Errorf("failed to get lock %s: %w", key, err)
		}
		return acquired, nil
	})
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	logger := drv.config.Logger.Session("postgres-lock", lager.Data{"key": key})
	held, cancel := context.WithCancel(ctx)

	var once sync.Once
	release := func() {
		once.Do(func() {
			defer cancel()

			if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", lockID); err != nil {
				logger.Error(failedToReleaseLock, err)
			}
			if err := conn.Close(); err != nil {
				logger.Error(failedToReleaseLock, err)
			}
		})
	}

	return held, release, nil
}

// hashLockKey maps key onto the bigint space of advisory locks with
// FNV-1a. The sign bit is cleared so ids read the same in pg_locks.
func hashLockKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF) //nolint:gosec
}
