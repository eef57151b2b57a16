// Package migrations holds the schema of the campaign tracking
// application as Go units.
package migrations

import (
	"strings"

	"github.com/root-talis/ikou/migration"
	"github.com/root-talis/ikou/schema"
	"github.com/root-talis/ikou/source"
)

// All returns the application's units in declaration order.
func All() []migration.Unit {
	return []migration.Unit{
		users(),
		campaigns(),
		events(),
		campaignSlugs(),
	}
}

func Source() source.Source {
	return source.Static(All()...)
}

// concat renders string concatenation; MySQL reads || as a logical OR.
func concat(d schema.Dialect, parts ...string) string {
	if d.Name() == schema.MySQL.Name() {
		return "CONCAT(" + strings.Join(parts, ", ") + ")"
	}
	return strings.Join(parts, " || ")
}
