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
		log.Println("creating whitelist_changes table...")
		if err := mghelper.CreateSchema(ctx, db, &whiteliststore.ChangeDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &whiteliststore.ChangeDao{},
			"whitelist_id", "kind")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping whitelist_changes table...")
		return mghelper.DropTables(ctx, db, &whiteliststore.ChangeDao{})
	})
}
