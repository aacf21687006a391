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
		log.Println("creating whitelists table...")
		if err := mghelper.CreateSchema(ctx, db, &whiteliststore.WhitelistDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &whiteliststore.WhitelistDao{},
			"status", "scope_kind", "expires_at")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping whitelists table...")
		return mghelper.DropTables(ctx, db, &whiteliststore.WhitelistDao{})
	})
}
