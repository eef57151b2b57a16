package migration_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/root-talis/ikou/migration"
)

var compareTests = []struct { // nolint:gochecknoglobals
	name     string
	a, b     migration.ID
	expected int
}{
	/* s0 */ {name: "test s0: equal zero-padded ids", a: "002", b: "002", expected: 0},
	/* s1 */ {name: "test s1: padding is ignored", a: "002", b: "2", expected: 0},
	/* s2 */ {name: "test s2: numeric order", a: "002", b: "010", expected: -1},
	/* s3 */ {name: "test s3: numeric order beats lexicographic", a: "9", b: "10", expected: -1},
	/* s4 */ {name: "test s4: timestamps", a: "20240711175726", b: "20230620040523", expected: 1},
	/* s5 */ {name: "test s5: suffix breaks ties", a: "001a", b: "001b", expected: -1},
	/* s6 */ {name: "test s6: non-numeric after numeric", a: "init", b: "999", expected: 1},
	/* s7 */ {name: "test s7: non-numeric lexicographic", a: "alpha", b: "beta", expected: -1},
	/* s8 */ {name: "test s8: zero", a: "000", b: "0", expected: 0},
	/* s9 */ {name: "test s9: huge numbers do not overflow", a: "123456789012345678901234567890", b: "123456789012345678901234567891", expected: -1},
}

func TestIDCompare(t *testing.T) {
	t.Parallel()

	for _, test := range compareTests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, test.expected, test.a.Compare(test.b))
			assert.Equal(t, -test.expected, test.b.Compare(test.a))
		})
	}
}

func TestSortUnits(t *testing.T) {
	t.Parallel()

	units := []migration.Unit{
		{ID: "010", Name: "ten"},
		{ID: "002", Name: "two"},
		{ID: "9", Name: "nine"},
		{ID: "001", Name: "one"},
	}

	migration.SortUnits(units)

	names := make([]string, 0, len(units))
	for _, u := range units {
		names = append(names, u.Name)
	}
	assert.Equal(t, []string{"one", "two", "nine", "ten"}, names)
}

var parseFileNameTests = []struct { // nolint:gochecknoglobals
	name         string
	base         string
	expectedID   migration.ID
	expectedName string
	expectError  bool
}{
	/* s0 */ {name: "test s0: zero-padded", base: "001_users", expectedID: "001", expectedName: "users"},
	/* s1 */ {name: "test s1: timestamp", base: "20211224091800_add_users_table", expectedID: "20211224091800", expectedName: "add_users_table"},

	/* e0 */ {name: "test e0: no digits", base: "users", expectError: true},
	/* e1 */ {name: "test e1: no underscore", base: "001users", expectError: true},
	/* e2 */ {name: "test e2: no name", base: "001_", expectError: true},
	/* e3 */ {name: "test e3: only digits", base: "001", expectError: true},
}

func TestParseFileName(t *testing.T) {
	t.Parallel()

	for _, test := range parseFileNameTests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			id, name, err := migration.ParseFileName(test.base)

			if test.expectError {
				assert.ErrorIs(t, err, migration.ErrInvalidFileName)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, test.expectedID, id)
			assert.Equal(t, test.expectedName, name)
		})
	}
}
