package source

import (
	"github.com/root-talis/ikou/migration"
)

// Source provides units in any order; the runner sorts and validates them.
type Source interface {
	Units() ([]migration.Unit, error)
}

type staticSource struct {
	units []migration.Unit
}

// Static wraps an explicit list of units, e.g. a package's registry of
// Go migrations.
func Static(units ...migration.Unit) Source {
	copied := make([]migration.Unit, len(units))
	copy(copied, units)

	return &staticSource{units: copied}
}

func (s *staticSource) Units() ([]migration.Unit, error) {
	result := make([]migration.Unit, len(s.units))
	copy(result, s.units)

	return result, nil
}
