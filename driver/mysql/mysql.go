package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sync"
	"time"

	"code.cloudfoundry.org/lager/v3"
	"github.com/go-sql-driver/mysql"

	"github.com/root-talis/ikou/driver"
	"github.com/root-talis/ikou/driver/sqldriver"
	"github.com/root-talis/ikou/lock"
	"github.com/root-talis/ikou/schema"
)

const failedToReleaseLock = "failed-to-release-lock"

type DriverConfig struct {
	MigrationsTableName string

	// LockWait is passed to GET_LOCK and rounded up to whole seconds.
	LockWait time.Duration

	Logger lager.Logger
}

type mysqlDriver struct {
	*sqldriver.Base
	config DriverConfig
}

// NewDriver wraps an open connection pool. Unit scripts with several
// statements need multiStatements=true in the DSN, and applied_at is only
// read back as a time with parseTime=true; Open sets both.
func NewDriver(conn *sql.DB, config DriverConfig) driver.Driver {
	if config.Logger == nil {
		config.Logger = lager.NewLogger("ikou")
	}

	return &mysqlDriver{
		Base:   sqldriver.New(conn, schema.MySQL, config.MigrationsTableName),
		config: config,
	}
}

func Open(dsn string, config DriverConfig) (driver.Driver, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", driver.ErrInvalidDSN, err)
	}
	if cfg.DBName == "" {
		return nil, fmt.Errorf("%w: no database selected", driver.ErrInvalidDSN)
	}

	cfg.ParseTime = true
	cfg.MultiStatements = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure mysql connection: %w", err)
	}

	return NewDriver(sql.OpenDB(connector), config), nil
}

// Acquire takes a named lock with GET_LOCK. Named locks belong to a
// session, so the lock keeps a connection of its own until released.
func (drv *mysqlDriver) Acquire(ctx context.Context, key string) (context.Context, func(), error) {
	conn, err := drv.DB().Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get a connection for lock %s: %w", key, err)
	}

	timeout := int(math.Ceil(drv.config.LockWait.Seconds()))

	var result sql.NullInt64
	err = conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", key, timeout).Scan(&result)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to get lock %s: %w", key, err)
	}
	if !result.Valid || result.Int64 != 1 {
		_ = conn.Close()
		return nil, nil, lock.ErrHeld
	}

	logger := drv.config.Logger.Session("mysql-lock", lager.Data{"key": key})
	held, cancel := context.WithCancel(ctx)

	var once sync.Once
	release := func() {
		once.Do(func() {
			defer cancel()

			if _, err := conn.ExecContext(context.Background(), "SELECT RELEASE_LOCK(?)", key); err != nil {
				logger.Error(failedToReleaseLock, err)
			}
			if err := conn.Close(); err != nil {
				logger.Error(failedToReleaseLock, err)
			}
		})
	}

	return held, release, nil
}
