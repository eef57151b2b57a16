package migration

import (
	"errors"
	"fmt"
)

var (
	ErrNothingToRevert = errors.New("no applied migrations to revert")
	ErrOutOfOrder      = errors.New("applied migrations are not a prefix of the available migrations")
	ErrUnknownTarget   = errors.New("target migration does not exist")
	ErrInvalidSteps    = errors.New("number of steps must be at least 1")
	ErrIrreversible    = errors.New("migration has no revert procedure")
	ErrUnitMissing     = errors.New("applied migration is not provided by any source")
)

// DiscoveryError reports a unit sequence whose order is ambiguous or
// otherwise unusable.
type DiscoveryError struct {
	ID     ID
	Reason string
}

func (e *DiscoveryError) Error() string {
	if e.ID == "" {
		return "discover migrations: " + e.Reason
	}
	return fmt.Sprintf("discover migrations: %s: %s", e.ID, e.Reason)
}

type ApplyError struct {
	ID    ID
	Name  string
	Cause error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply migration %s (%s): %s", e.ID, e.Name, e.Cause)
}

func (e *ApplyError) Unwrap() error {
	return e.Cause
}

type RevertError struct {
	ID    ID
	Name  string
	Cause error
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("revert migration %s (%s): %s", e.ID, e.Name, e.Cause)
}

func (e *RevertError) Unwrap() error {
	return e.Cause
}

// LockError means the exclusive migration lock could not be taken,
// usually because another run holds it.
type LockError struct {
	Key   string
	Cause error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("acquire migration lock %q: %s", e.Key, e.Cause)
}

func (e *LockError) Unwrap() error {
	return e.Cause
}
