// Package sqldriver implements the bookkeeping half of driver.Driver on
// top of database/sql. Concrete drivers embed Base and add locking.
package sqldriver

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/root-talis/ikou/driver"
	"github.com/root-talis/ikou/migration"
	"github.com/root-talis/ikou/schema"
)

const (
	idColumn        = "identifier"
	nameColumn      = "name"
	appliedAtColumn = "applied_at"
)

type Base struct {
	db      *sql.DB
	dialect schema.Dialect
	table   string
}

func New(db *sql.DB, dialect schema.Dialect, table string) *Base {
	if table == "" {
		table = driver.DefaultTableName
	}

	return &Base{
		db:      db,
		dialect: dialect,
		table:   table,
	}
}

func (b *Base) DB() *sql.DB {
	return b.db
}

func (b *Base) Dialect() schema.Dialect {
	return b.dialect
}

func (b *Base) Table() string {
	return b.table
}

// LogTableColumns describes the bookkeeping table.
func LogTableColumns() []schema.Column {
	return []schema.Column{
		{Name: idColumn, Type: schema.String, PrimaryKey: true},
		{Name: nameColumn, Type: schema.String},
		{Name: appliedAtColumn, Type: schema.Timestamp},
	}
}

// EnsureLogTable creates the bookkeeping table if it is missing and
// checks that an existing one has the expected columns.
func (b *Base) EnsureLogTable(ctx context.Context) error {
	ed := schema.NewEditor(b.dialect, b.db)
	if err := ed.CreateTableIfNotExists(ctx, b.table, LogTableColumns()...); err != nil {
		return fmt.Errorf("failed to create migrations table %s: %w", b.table, err)
	}

	// column names stay unquoted: SQLite reads an unknown quoted
	// identifier as a string literal
	rows, err := squirrel.Select(idColumn, nameColumn, appliedAtColumn).
		From(b.dialect.Quote(b.table)).
		Where("1 = 0").
		PlaceholderFormat(b.dialect.Placeholder()).
		RunWith(b.db).
		QueryContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s: %s", driver.ErrInvalidLogTable, b.table, err)
	}

	return rows.Close()
}

func (b *Base) ListApplied(ctx context.Context) ([]migration.Record, error) {
	if err := b.EnsureLogTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to list applied migrations: %w", err)
	}

	rows, err := squirrel.Select(
		b.dialect.Quote(idColumn),
		b.dialect.Quote(nameColumn),
		b.dialect.Quote(appliedAtColumn),
	).
		From(b.dialect.Quote(b.table)).
		PlaceholderFormat(b.dialect.Placeholder()).
		RunWith(b.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations table: %w", err)
	}
	defer rows.Close()

	result := make([]migration.Record, 0)
	for rows.Next() {
		var rec migration.Record
		var appliedAt any

		if err := rows.Scan(&rec.ID, &rec.Name, &appliedAt); err != nil {
			return nil, fmt.Errorf("%w: %s", driver.ErrInvalidLogTable, err)
		}

		rec.AppliedAt, err = parseTime(appliedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: migration %s: %s", driver.ErrInvalidLogTable, rec.ID, err)
		}

		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query migrations table: %w", err)
	}

	migration.SortRecords(result)

	return result, nil
}

func (b *Base) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}

	return tx, nil
}

func (b *Base) Record(ctx context.Context, tx *sql.Tx, rec migration.Record) error {
	_, err := squirrel.Insert(b.dialect.Quote(b.table)).
		Columns(b.dialect.Quote(idColumn), b.dialect.Quote(nameColumn), b.dialect.Quote(appliedAtColumn)).
		Values(string(rec.ID), rec.Name, rec.AppliedAt.UTC()).
		PlaceholderFormat(b.dialect.Placeholder()).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to record migration %s: %w", rec.ID, err)
	}

	return nil
}

func (b *Base) Forget(ctx context.Context, tx *sql.Tx, id migration.ID) error {
	_, err := squirrel.Delete(b.dialect.Quote(b.table)).
		Where(squirrel.Eq{b.dialect.Quote(idColumn): string(id)}).
		PlaceholderFormat(b.dialect.Placeholder()).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to forget migration %s: %w", id, err)
	}

	return nil
}

func (b *Base) Close() error {
	return b.db.Close()
}

var timeLayouts = []string{ // nolint:gochecknoglobals
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

// parseTime accepts what the supported drivers return for a timestamp
// column: time.Time, or text when the driver does not convert it.
func parseTime(v any) (time.Time, error) {
	var s string

	switch value := v.(type) {
	case time.Time:
		return value.UTC(), nil
	case nil:
		return time.Time{}, nil
	case string:
		s = value
	case []byte:
		s = string(value)
	default:
		return time.Time{}, fmt.Errorf("unexpected applied_at value of type %T", v)
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("cannot parse applied_at value %q", s)
}
