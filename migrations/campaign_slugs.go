package migrations

import (
	"context"
	"fmt"

	"github.com/root-talis/ikou/migration"
	"github.com/root-talis/ikou/schema"
)

var campaignsSlugIndex = schema.Index{Table: "campaigns", Columns: []string{"slug"}, Unique: true} //nolint:gochecknoglobals

// campaignSlugs adds a required, unique slug to existing campaigns. The
// column starts nullable, is backfilled from the title and id, and is
// then tightened, all in the unit's transaction.
func campaignSlugs() migration.Unit {
	return migration.Unit{
		ID:   "004",
		Name: "campaign_slugs",
		Apply: func(ctx context.Context, tx *migration.Tx) error {
			d := tx.Schema.Dialect()
			slug := schema.Column{Name: "slug", Type: schema.String, Size: 128, Nullable: true}

			if err := tx.Schema.AddColumn(ctx, "campaigns", slug); err != nil {
				return err
			}

			backfill := fmt.Sprintf(
				"UPDATE %s SET %s = %s WHERE %s IS NOT NULL",
				d.Quote("campaigns"),
				d.Quote("slug"),
				concat(d, fmt.Sprintf("LOWER(REPLACE(%s, ' ', '-'))", d.Quote("title")), "'-'", d.Quote("id")),
				d.Quote("title"),
			)
			if _, err := tx.ExecContext(ctx, backfill); err != nil {
				return fmt.Errorf("failed to backfill campaign slugs: %w", err)
			}

			slug.Nullable = false
			if err := tx.Schema.SetNotNull(ctx, "campaigns", slug); err != nil {
				return err
			}

			return tx.Schema.CreateIndex(ctx, campaignsSlugIndex)
		},
		Revert: func(ctx context.Context, tx *migration.Tx) error {
			if err := tx.Schema.DropIndex(ctx, campaignsSlugIndex); err != nil {
				return err
			}

			return tx.Schema.DropColumn(ctx, "campaigns", "slug")
		},
	}
}
