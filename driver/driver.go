package driver

import (
	"context"
	"database/sql"
	"errors"

	"github.com/root-talis/ikou/lock"
	"github.com/root-talis/ikou/migration"
	"github.com/root-talis/ikou/schema"
)

const DefaultTableName = "schema_migrations"

// Driver owns a database connection and the bookkeeping table recording
// which units have been applied. Every driver is also a lock.Locker
// using the database's own means of mutual exclusion.
type Driver interface {
	lock.Locker

	Dialect() schema.Dialect

	// EnsureLogTable creates the bookkeeping table if it does not exist.
	EnsureLogTable(ctx context.Context) error

	// ListApplied returns records ordered by ID, creating the table first
	// if needed.
	ListApplied(ctx context.Context) ([]migration.Record, error)

	BeginTx(ctx context.Context) (*sql.Tx, error)

	// Record and Forget write inside the unit's own transaction.
	Record(ctx context.Context, tx *sql.Tx, rec migration.Record) error
	Forget(ctx context.Context, tx *sql.Tx, id migration.ID) error

	Close() error
}

var (
	ErrInvalidLogTable = errors.New("an error has occurred when reading log table")
	ErrInvalidDSN      = errors.New("invalid data source name")
)
