package treasurydb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	mghelper "github.com/chainsafe/treasury-api/pkg/pgutil/migrations"
	"github.com/chainsafe/treasury-api/pkg/whiteliststore"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating whitelist_versions table...")
		if err := mghelper.CreateSchema(ctx, db, &whiteliststore.VersionDao{}); err != nil {
			return err
		}
		// The upsert in the store conflicts on (whitelist_id, number).
		_, err := db.NewCreateIndex().
			Model(&whiteliststore.VersionDao{}).
			Index("idx_whitelist_versions_whitelist_id_number").
			Column("whitelist_id", "number").
			Unique().
			IfNotExists().
			Exec(ctx)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping whitelist_versions table...")
		return mghelper.DropTables(ctx, db, &whiteliststore.VersionDao{})
	})
}
