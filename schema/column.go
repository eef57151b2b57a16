// Package schema describes tables as plain values and turns them into
// dialect-specific DDL.
package schema

import "strings"

type Type int

const (
	// Serial is an auto-incrementing integer primary key.
	Serial Type = iota
	Integer
	BigInt
	Boolean
	String
	Text
	Timestamp
	Decimal
	JSON
)

const defaultStringSize = 255

// Column describes one column. Default is a raw SQL expression and is
// emitted as-is.
type Column struct {
	Name       string
	Type       Type
	Size       int
	Precision  int
	Scale      int
	Nullable   bool
	Default    string
	Unique     bool
	PrimaryKey bool
	References *ForeignKey
}

type ForeignKey struct {
	Table    string
	Column   string
	OnDelete string
}

type Index struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
}

// IndexName returns Name, or a name derived from the table and columns.
func (idx Index) IndexName() string {
	if idx.Name != "" {
		return idx.Name
	}

	prefix := "idx"
	if idx.Unique {
		prefix = "uq"
	}
	return prefix + "_" + idx.Table + "_" + strings.Join(idx.Columns, "_")
}

func (c Column) size() int {
	if c.Size > 0 {
		return c.Size
	}
	return defaultStringSize
}

func (c Column) precision() (int, int) {
	if c.Precision > 0 {
		return c.Precision, c.Scale
	}
	return 10, c.Scale
}
