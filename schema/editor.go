package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Editor issues DDL through exec, usually the transaction of the unit
// being applied.
type Editor struct {
	dialect Dialect
	exec    Execer
}

func NewEditor(dialect Dialect, exec Execer) *Editor {
	return &Editor{
		dialect: dialect,
		exec:    exec,
	}
}

func (e *Editor) Dialect() Dialect {
	return e.dialect
}

// Exec runs a raw statement, e.g. a backfill UPDATE.
func (e *Editor) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := e.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute statement: %w", err)
	}
	return res, nil
}

func (e *Editor) CreateTable(ctx context.Context, table string, columns ...Column) error {
	return e.run(ctx, e.CreateTableSQL(table, false, columns...))
}

func (e *Editor) CreateTableIfNotExists(ctx context.Context, table string, columns ...Column) error {
	return e.run(ctx, e.CreateTableSQL(table, true, columns...))
}

func (e *Editor) DropTable(ctx context.Context, table string) error {
	return e.run(ctx, "DROP TABLE "+e.dialect.Quote(table))
}

func (e *Editor) AddColumn(ctx context.Context, table string, col Column) error {
	return e.run(ctx, e.AddColumnSQL(table, col))
}

func (e *Editor) DropColumn(ctx context.Context, table string, column string) error {
	return e.run(ctx, fmt.Sprintf(
		"ALTER TABLE %s DROP COLUMN %s",
		e.dialect.Quote(table),
		e.dialect.Quote(column),
	))
}

func (e *Editor) CreateIndex(ctx context.Context, idx Index) error {
	return e.run(ctx, e.CreateIndexSQL(idx))
}

func (e *Editor) DropIndex(ctx context.Context, idx Index) error {
	return e.run(ctx, e.dialect.DropIndexSQL(idx))
}

// SetNotNull tightens col to NOT NULL. It fails if any row still holds NULL.
func (e *Editor) SetNotNull(ctx context.Context, table string, col Column) error {
	if err := e.dialect.SetNotNull(ctx, e.exec, table, col); err != nil {
		return fmt.Errorf("failed to set %s.%s not null: %w", table, col.Name, err)
	}
	return nil
}

// ---

func (e *Editor) CreateTableSQL(table string, ifNotExists bool, columns ...Column) string {
	var b strings.Builder

	b.WriteString("CREATE TABLE ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(e.dialect.Quote(table))
	b.WriteString(" (")

	defs := make([]string, 0, len(columns))
	for _, col := range columns {
		defs = append(defs, e.ColumnSQL(col))
	}
	for _, col := range columns {
		if col.References != nil {
			defs = append(defs, "FOREIGN KEY ("+e.dialect.Quote(col.Name)+") "+e.referencesSQL(col.References))
		}
	}

	b.WriteString(strings.Join(defs, ", "))
	b.WriteString(")")

	return b.String()
}

func (e *Editor) AddColumnSQL(table string, col Column) string {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", e.dialect.Quote(table), e.ColumnSQL(col))

	if col.References == nil {
		return stmt
	}

	if e.dialect.InlineForeignKeys() {
		return stmt + " " + e.referencesSQL(col.References)
	}

	return fmt.Sprintf(
		"%s, ADD CONSTRAINT %s FOREIGN KEY (%s) %s",
		stmt,
		e.dialect.Quote("fk_"+table+"_"+col.Name),
		e.dialect.Quote(col.Name),
		e.referencesSQL(col.References),
	)
}

func (e *Editor) CreateIndexSQL(idx Index) string {
	quoted := make([]string, 0, len(idx.Columns))
	for _, c := range idx.Columns {
		quoted = append(quoted, e.dialect.Quote(c))
	}

	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}

	return fmt.Sprintf(
		"CREATE %sINDEX %s ON %s (%s)",
		unique,
		e.dialect.Quote(idx.IndexName()),
		e.dialect.Quote(idx.Table),
		strings.Join(quoted, ", "),
	)
}

// ColumnSQL renders a column definition without foreign keys.
func (e *Editor) ColumnSQL(col Column) string {
	var b strings.Builder

	b.WriteString(e.dialect.Quote(col.Name))
	b.WriteString(" ")
	b.WriteString(e.dialect.ColumnType(col))

	if col.Type == Serial {
		return b.String()
	}

	if col.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	}
	if !col.Nullable {
		b.WriteString(" NOT NULL")
	}
	if col.Unique && !col.PrimaryKey {
		b.WriteString(" UNIQUE")
	}
	if col.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(col.Default)
	}

	return b.String()
}

func (e *Editor) referencesSQL(fk *ForeignKey) string {
	s := fmt.Sprintf("REFERENCES %s (%s)", e.dialect.Quote(fk.Table), e.dialect.Quote(fk.Column))
	if fk.OnDelete != "" {
		s += " ON DELETE " + fk.OnDelete
	}
	return s
}

func (e *Editor) run(ctx context.Context, stmt string) error {
	if _, err := e.exec.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to execute %q: %w", stmt, err)
	}
	return nil
}
