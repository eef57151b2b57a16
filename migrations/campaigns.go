package migrations

import (
	"context"

	"github.com/root-talis/ikou/migration"
	"github.com/root-talis/ikou/schema"
)

var campaignsOwnerIndex = schema.Index{Table: "campaigns", Columns: []string{"owner_id"}} //nolint:gochecknoglobals

func campaigns() migration.Unit {
	return migration.Unit{
		ID:   "002",
		Name: "campaigns",
		Apply: func(ctx context.Context, tx *migration.Tx) error {
			err := tx.Schema.CreateTable(ctx, "campaigns",
				schema.Column{Name: "id", Type: schema.Serial},
				schema.Column{
					Name:       "owner_id",
					Type:       schema.BigInt,
					References: &schema.ForeignKey{Table: "users", Column: "id", OnDelete: "CASCADE"},
				},
				schema.Column{Name: "title", Type: schema.String},
				schema.Column{Name: "status", Type: schema.String, Size: 32, Default: "'draft'"},
				schema.Column{Name: "budget", Type: schema.Decimal, Precision: 12, Scale: 2, Default: "0"},
				schema.Column{Name: "created_at", Type: schema.Timestamp},
			)
			if err != nil {
				return err
			}

			return tx.Schema.CreateIndex(ctx, campaignsOwnerIndex)
		},
		Revert: func(ctx context.Context, tx *migration.Tx) error {
			return tx.Schema.DropTable(ctx, "campaigns")
		},
	}
}
