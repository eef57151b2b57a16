package migrations

import (
	"context"

	"github.com/root-talis/ikou/migration"
	"github.com/root-talis/ikou/schema"
)

func events() migration.Unit {
	return migration.Unit{
		ID:   "003",
		Name: "events",
		Apply: func(ctx context.Context, tx *migration.Tx) error {
			err := tx.Schema.CreateTable(ctx, "events",
				schema.Column{Name: "id", Type: schema.Serial},
				schema.Column{
					Name:       "campaign_id",
					Type:       schema.BigInt,
					References: &schema.ForeignKey{Table: "campaigns", Column: "id", OnDelete: "CASCADE"},
				},
				schema.Column{Name: "kind", Type: schema.String, Size: 64},
				schema.Column{Name: "payload", Type: schema.JSON, Nullable: true},
				schema.Column{Name: "occurred_at", Type: schema.Timestamp},
			)
			if err != nil {
				return err
			}

			return tx.Schema.CreateIndex(ctx, schema.Index{
				Table:   "events",
				Columns: []string{"campaign_id", "occurred_at"},
			})
		},
		Revert: func(ctx context.Context, tx *migration.Tx) error {
			return tx.Schema.DropTable(ctx, "events")
		},
	}
}
