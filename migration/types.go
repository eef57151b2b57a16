package migration

import (
	"context"
	"database/sql"
	"time"

	"github.com/root-talis/ikou/schema"
)

// Func is the body of a unit in one direction. It runs inside the unit's
// transaction; returning an error rolls the whole unit back.
type Func func(ctx context.Context, tx *Tx) error

// Tx is the handle passed to Apply and Revert.
type Tx struct {
	*sql.Tx
	Schema *schema.Editor
}

// NewTx binds a schema editor to tx.
func NewTx(tx *sql.Tx, dialect schema.Dialect) *Tx {
	return &Tx{
		Tx:     tx,
		Schema: schema.NewEditor(dialect, tx),
	}
}

// ---

type Unit struct {
	ID     ID
	Name   string
	Apply  Func
	Revert Func
}

func (u Unit) CanRevert() bool {
	return u.Revert != nil
}

func (u Unit) String() string {
	if u.Name == "" {
		return string(u.ID)
	}
	return string(u.ID) + "_" + u.Name
}

// ---

type Record struct {
	ID        ID
	Name      string
	AppliedAt time.Time
}

// ---

type Status uint

const (
	Pending Status = iota
	Applied
	Missing
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Applied:
		return "applied"
	case Missing:
		return "missing"
	default:
		return "unknown"
	}
}

// ---

// State pairs a unit with what the bookkeeping table says about it.
// For Missing states only ID and Name of the unit are set.
type State struct {
	Unit
	Status    Status
	AppliedAt time.Time
}
