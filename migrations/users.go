package migrations

import (
	"context"

	"github.com/root-talis/ikou/migration"
	"github.com/root-talis/ikou/schema"
)

func users() migration.Unit {
	return migration.Unit{
		ID:   "001",
		Name: "users",
		Apply: func(ctx context.Context, tx *migration.Tx) error {
			return tx.Schema.CreateTable(ctx, "users",
				schema.Column{Name: "id", Type: schema.Serial},
				schema.Column{Name: "email", Type: schema.String, Unique: true},
				schema.Column{Name: "display_name", Type: schema.String, Size: 100, Nullable: true},
				schema.Column{Name: "active", Type: schema.Boolean, Default: "TRUE"},
				schema.Column{Name: "created_at", Type: schema.Timestamp},
			)
		},
		Revert: func(ctx context.Context, tx *migration.Tx) error {
			return tx.Schema.DropTable(ctx, "users")
		},
	}
}
