package schema

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
)

// MySQL also covers MariaDB. Note that MySQL commits DDL implicitly, so a
// failing unit cannot undo the DDL statements it already ran.
var MySQL Dialect = mysqlDialect{} //nolint:gochecknoglobals

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) Quote(ident string) string { return quoteWith(ident, "`") }

func (mysqlDialect) Placeholder() squirrel.PlaceholderFormat { return squirrel.Question }

func (mysqlDialect) InlineForeignKeys() bool { return false }

func (mysqlDialect) ColumnType(c Column) string {
	switch c.Type {
	case Serial:
		return "BIGINT AUTO_INCREMENT PRIMARY KEY"
	case Integer:
		return "INT"
	case BigInt:
		return "BIGINT"
	case Boolean:
		return "BOOLEAN"
	case String:
		return fmt.Sprintf("VARCHAR(%d)", c.size())
	case Text:
		return "TEXT"
	case Timestamp:
		return "DATETIME(6)"
	case Decimal:
		p, s := c.precision()
		return fmt.Sprintf("DECIMAL(%d,%d)", p, s)
	case JSON:
		return "JSON"
	default:
		return "TEXT"
	}
}

func (d mysqlDialect) DropIndexSQL(idx Index) string {
	return fmt.Sprintf("DROP INDEX %s ON %s", d.Quote(idx.IndexName()), d.Quote(idx.Table))
}

func (d mysqlDialect) SetNotNull(ctx context.Context, exec Execer, table string, col Column) error {
	col.Nullable = false
	def := NewEditor(d, exec).ColumnSQL(col)

	_, err := exec.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", d.Quote(table), def))
	return err
}
