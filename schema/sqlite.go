package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/squirrel"
)

var SQLite Dialect = sqliteDialect{} //nolint:gochecknoglobals

var ErrNoSuchColumn = errors.New("no such column")

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) Quote(ident string) string { return quoteWith(ident, `"`) }

func (sqliteDialect) Placeholder() squirrel.PlaceholderFormat { return squirrel.Question }

// SQLite cannot add constraints to an existing table.
func (sqliteDialect) InlineForeignKeys() bool { return true }

func (sqliteDialect) ColumnType(c Column) string {
	switch c.Type {
	case Serial:
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	case Integer:
		return "INTEGER"
	case BigInt:
		return "BIGINT"
	case Boolean:
		return "BOOLEAN"
	case String:
		return fmt.Sprintf("VARCHAR(%d)", c.size())
	case Text, JSON:
		return "TEXT"
	case Timestamp:
		return "TIMESTAMP"
	case Decimal:
		p, s := c.precision()
		return fmt.Sprintf("DECIMAL(%d,%d)", p, s)
	default:
		return "TEXT"
	}
}

func (d sqliteDialect) DropIndexSQL(idx Index) string {
	return "DROP INDEX " + d.Quote(idx.IndexName())
}

// SetNotNull rebuilds the table: SQLite has no ALTER COLUMN. Rows are copied
// into a new table of the tightened shape, so a remaining NULL fails the
// copy. Columns, defaults, the primary key, UNIQUE and FOREIGN KEY
// constraints, indexes and triggers are carried over; CHECK constraints
// and collations are not.
func (d sqliteDialect) SetNotNull(ctx context.Context, exec Execer, table string, col Column) error {
	def, err := readSqliteTable(ctx, exec, table)
	if err != nil {
		return err
	}

	found := false
	for i := range def.columns {
		if def.columns[i].name == col.Name {
			def.columns[i].notNull = true
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%w: %s.%s", ErrNoSuchColumn, table, col.Name)
	}

	tmp := "_ikou_rebuild_" + table
	names := make([]string, 0, len(def.columns))
	for _, c := range def.columns {
		names = append(names, d.Quote(c.name))
	}
	columnList := strings.Join(names, ", ")

	statements := []string{
		def.createSQL(d, tmp),
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", d.Quote(tmp), columnList, columnList, d.Quote(table)),
		"DROP TABLE " + d.Quote(table),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.Quote(tmp), d.Quote(table)),
	}
	statements = append(statements, def.extraSQL...)

	for _, stmt := range statements {
		if _, err := exec.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to rebuild table %s: %w", table, err)
		}
	}

	return nil
}

// ---

type sqliteColumn struct {
	name       string
	declType   string
	notNull    bool
	defaultSQL sql.NullString
	pk         int
}

type sqliteForeignKey struct {
	from, to []string
	table    string
	onDelete string
	onUpdate string
}

type sqliteTable struct {
	autoincrement bool
	columns       []sqliteColumn
	uniques       [][]string
	foreignKeys   []sqliteForeignKey
	extraSQL      []string // indexes and triggers
}

func (t *sqliteTable) createSQL(d sqliteDialect, name string) string {
	quoteAll := func(idents []string) string {
		q := make([]string, 0, len(idents))
		for _, i := range idents {
			q = append(q, d.Quote(i))
		}
		return strings.Join(q, ", ")
	}

	pk := make([]sqliteColumn, 0, 1)
	for _, c := range t.columns {
		if c.pk > 0 {
			pk = append(pk, c)
		}
	}
	sort.Slice(pk, func(i, j int) bool { return pk[i].pk < pk[j].pk })

	inlinePK := len(pk) == 1 && t.autoincrement && strings.EqualFold(pk[0].declType, "INTEGER")

	defs := make([]string, 0, len(t.columns)+len(t.uniques)+len(t.foreignKeys)+1)
	for _, c := range t.columns {
		def := d.Quote(c.name)
		if c.declType != "" {
			def += " " + c.declType
		}
		if inlinePK && c.pk > 0 {
			def += " PRIMARY KEY AUTOINCREMENT"
		}
		if c.notNull {
			def += " NOT NULL"
		}
		if c.defaultSQL.Valid {
			def += " DEFAULT " + c.defaultSQL.String
		}
		defs = append(defs, def)
	}

	if len(pk) > 0 && !inlinePK {
		names := make([]string, 0, len(pk))
		for _, c := range pk {
			names = append(names, c.name)
		}
		defs = append(defs, "PRIMARY KEY ("+quoteAll(names)+")")
	}

	for _, u := range t.uniques {
		defs = append(defs, "UNIQUE ("+quoteAll(u)+")")
	}

	for _, fk := range t.foreignKeys {
		def := fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s", quoteAll(fk.from), d.Quote(fk.table))
		if fk.to[0] != "" {
			def += " (" + quoteAll(fk.to) + ")"
		}
		if fk.onDelete != "" && fk.onDelete != "NO ACTION" {
			def += " ON DELETE " + fk.onDelete
		}
		if fk.onUpdate != "" && fk.onUpdate != "NO ACTION" {
			def += " ON UPDATE " + fk.onUpdate
		}
		defs = append(defs, def)
	}

	return fmt.Sprintf("CREATE TABLE %s (%s)", d.Quote(name), strings.Join(defs, ", "))
}

func readSqliteTable(ctx context.Context, exec Execer, table string) (*sqliteTable, error) {
	def := &sqliteTable{}

	var createSQL string
	if err := queryRows(ctx, exec, func(rows *sql.Rows) error {
		return rows.Scan(&createSQL)
	}, "SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table); err != nil {
		return nil, err
	}
	if createSQL == "" {
		return nil, fmt.Errorf("no such table: %s", table)
	}
	def.autoincrement = strings.Contains(strings.ToUpper(createSQL), "AUTOINCREMENT")

	if err := queryRows(ctx, exec, func(rows *sql.Rows) error {
		var c sqliteColumn
		if err := rows.Scan(&c.name, &c.declType, &c.notNull, &c.defaultSQL, &c.pk); err != nil {
			return err
		}
		def.columns = append(def.columns, c)
		return nil
	}, `SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, table); err != nil {
		return nil, err
	}

	var uniqueIndexes []string
	if err := queryRows(ctx, exec, func(rows *sql.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		uniqueIndexes = append(uniqueIndexes, name)
		return nil
	}, "SELECT name FROM pragma_index_list(?) WHERE origin = 'u' ORDER BY seq", table); err != nil {
		return nil, err
	}

	for _, idx := range uniqueIndexes {
		var cols []string
		if err := queryRows(ctx, exec, func(rows *sql.Rows) error {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			cols = append(cols, name)
			return nil
		}, "SELECT name FROM pragma_index_info(?) ORDER BY seqno", idx); err != nil {
			return nil, err
		}
		def.uniques = append(def.uniques, cols)
	}

	byID := map[int]*sqliteForeignKey{}
	var order []int
	if err := queryRows(ctx, exec, func(rows *sql.Rows) error {
		var (
			id                 int
			refTable, from     string
			to                 sql.NullString
			onUpdate, onDelete string
		)
		if err := rows.Scan(&id, &refTable, &from, &to, &onUpdate, &onDelete); err != nil {
			return err
		}
		fk, ok := byID[id]
		if !ok {
			fk = &sqliteForeignKey{table: refTable, onDelete: onDelete, onUpdate: onUpdate}
			byID[id] = fk
			order = append(order, id)
		}
		fk.from = append(fk.from, from)
		fk.to = append(fk.to, to.String)
		return nil
	}, `SELECT id, "table", "from", "to", on_update, on_delete FROM pragma_foreign_key_list(?) ORDER BY id, seq`, table); err != nil {
		return nil, err
	}
	for _, id := range order {
		def.foreignKeys = append(def.foreignKeys, *byID[id])
	}

	if err := queryRows(ctx, exec, func(rows *sql.Rows) error {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return err
		}
		def.extraSQL = append(def.extraSQL, stmt)
		return nil
	}, "SELECT sql FROM sqlite_master WHERE tbl_name = ? AND type IN ('index', 'trigger') AND sql IS NOT NULL", table); err != nil {
		return nil, err
	}

	return def, nil
}

// queryRows runs query and calls scan for every row. Rows are closed before
// it returns, so callers may issue the next query on the same transaction.
func queryRows(ctx context.Context, exec Execer, scan func(*sql.Rows) error, query string, args ...any) error {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to inspect table: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("failed to inspect table: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to inspect table: %w", err)
	}
	return nil
}
