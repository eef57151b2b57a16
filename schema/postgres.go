package schema

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
)

var Postgres Dialect = postgresDialect{} //nolint:gochecknoglobals

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Quote(ident string) string { return quoteWith(ident, `"`) }

func (postgresDialect) Placeholder() squirrel.PlaceholderFormat { return squirrel.Dollar }

func (postgresDialect) InlineForeignKeys() bool { return false }

func (postgresDialect) ColumnType(c Column) string {
	switch c.Type {
	case Serial:
		return "BIGSERIAL PRIMARY KEY"
	case Integer:
		return "INTEGER"
	case BigInt:
		return "BIGINT"
	case Boolean:
		return "BOOLEAN"
	case String:
		return fmt.Sprintf("VARCHAR(%d)", c.size())
	case Text:
		return "TEXT"
	case Timestamp:
		return "TIMESTAMPTZ"
	case Decimal:
		p, s := c.precision()
		return fmt.Sprintf("NUMERIC(%d,%d)", p, s)
	case JSON:
		return "JSONB"
	default:
		return "TEXT"
	}
}

func (d postgresDialect) DropIndexSQL(idx Index) string {
	return "DROP INDEX " + d.Quote(idx.IndexName())
}

func (d postgresDialect) SetNotNull(ctx context.Context, exec Execer, table string, col Column) error {
	_, err := exec.ExecContext(ctx, fmt.Sprintf(
		"ALTER TABLE %s ALTER COLUMN %s SET NOT NULL",
		d.Quote(table),
		d.Quote(col.Name),
	))
	return err
}
