package migration

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ID orders units. The leading run of decimal digits is compared as a
// number (so "002" and "2" are the same position), the rest of the ID
// breaks ties lexicographically. IDs without a digit prefix sort after
// every numeric one.
type ID string

var ErrInvalidFileName = errors.New("invalid migration file name")

func (id ID) split() (digits string, rest string) {
	s := string(id)
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	digits = strings.TrimLeft(s[:i], "0")
	if i > 0 && digits == "" {
		digits = "0"
	}
	return digits, s[i:]
}

// Compare returns -1, 0 or +1. IDs comparing equal are ambiguous and
// must not coexist in one unit sequence.
func (id ID) Compare(other ID) int {
	a, aRest := id.split()
	b, bRest := other.split()

	switch {
	case a == "" && b != "":
		return 1
	case a != "" && b == "":
		return -1
	}

	// numbers without leading zeros: longer is larger
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	if c := strings.Compare(a, b); c != 0 {
		return c
	}
	return strings.Compare(aRest, bRest)
}

func (id ID) Less(other ID) bool {
	return id.Compare(other) < 0
}

// SortUnits sorts units ascending by ID. The sort is stable so duplicates
// keep their source order for error reporting.
func SortUnits(units []Unit) {
	sort.SliceStable(units, func(i, j int) bool {
		return units[i].ID.Less(units[j].ID)
	})
}

// SortRecords sorts records ascending by ID.
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ID.Less(records[j].ID)
	})
}

// ParseFileName splits "<digits>_<name>" into its ID and name.
func ParseFileName(base string) (ID, string, error) {
	i := 0
	for i < len(base) && base[i] >= '0' && base[i] <= '9' {
		i++
	}

	switch {
	case i == 0:
		return "", "", fmt.Errorf("%w: %q does not start with a digit", ErrInvalidFileName, base)
	case i == len(base) || base[i] != '_':
		return "", "", fmt.Errorf("%w: %q is missing an underscore after the identifier", ErrInvalidFileName, base)
	case i+1 == len(base):
		return "", "", fmt.Errorf("%w: %q has no name", ErrInvalidFileName, base)
	}

	return ID(base[:i]), base[i+1:], nil
}
