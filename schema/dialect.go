package schema

import (
	"context"
	"database/sql"
	"strings"

	"github.com/Masterminds/squirrel"
)

// Execer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Dialect maps column descriptors and schema operations onto one SQL flavour.
type Dialect interface {
	Name() string
	Quote(ident string) string
	ColumnType(c Column) string
	Placeholder() squirrel.PlaceholderFormat

	// InlineForeignKeys reports whether a foreign key on an added column
	// must be declared inline instead of as a separate constraint.
	InlineForeignKeys() bool

	DropIndexSQL(idx Index) string
	SetNotNull(ctx context.Context, exec Execer, table string, col Column) error
}

func quoteWith(ident string, q string) string {
	return q + strings.ReplaceAll(ident, q, q+q) + q
}
