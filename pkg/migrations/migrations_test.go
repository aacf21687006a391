package migrations

import (
	"context"
	"testing"

	"github.com/uptrace/bun/migrate"

	"github.com/chainsafe/treasury-api/pkg/migrations/treasurydb"
	mghelper "github.com/chainsafe/treasury-api/pkg/pgutil"
)

func TestTreasuryDBMigrations_Apply(t *testing.T) {
	db, cleanup := mghelper.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, treasurydb.Migrations)

	// Initialize migration system
	err := migrator.Init(ctx)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	// Run all migrations up
	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("Expected migrations to run, but none were applied")
	}

	// Verify all expected tables exist
	expectedTables := []string{
		"whitelists",
		"whitelist_versions",
		"whitelist_changes",
		"whitelist_entries",
		"bun_migrations",
	}

	for _, table := range expectedTables {
		mghelper.AssertTableExists(t, db, table)
	}

	// Verify the indexes the store's queries and upserts rely on
	mghelper.AssertIndexExists(t, db, "idx_whitelists_status")
	mghelper.AssertIndexExists(t, db, "idx_whitelists_expires_at")
	mghelper.AssertIndexExists(t, db, "idx_whitelist_versions_whitelist_id_number")
	mghelper.AssertIndexExists(t, db, "idx_whitelist_changes_whitelist_id")
	mghelper.AssertIndexExists(t, db, "idx_whitelist_entries_whitelist_id")
}

func TestTreasuryDBMigrations_Idempotency(t *testing.T) {
	db, cleanup := mghelper.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, treasurydb.Migrations)

	// Initialize
	err := migrator.Init(ctx)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	// Run migrations first time
	_, err = migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("First Migrate() failed: %v", err)
	}

	// Run migrations second time - should not fail
	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Second Migrate() failed: %v", err)
	}

	// Should return zero group (no new migrations)
	if !group.IsZero() {
		t.Error("Expected no new migrations on second run")
	}

	// Verify tables still exist
	mghelper.AssertTableExists(t, db, "whitelists")
	mghelper.AssertTableExists(t, db, "whitelist_versions")
}

func TestTreasuryDBMigrations_Rollback(t *testing.T) {
	db, cleanup := mghelper.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, treasurydb.Migrations)

	// Initialize
	err := migrator.Init(ctx)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	// Run migrations up
	_, err = migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}

	// Verify tables exist
	mghelper.AssertTableExists(t, db, "whitelists")
	mghelper.AssertTableExists(t, db, "whitelist_entries")

	// Rollback last migration group (all migrations run in one group by Migrate())
	group, err := migrator.Rollback(ctx)
	if err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("Expected rollback to process a migration")
	}

	// Verify all tables are dropped (entire migration group is rolled back)
	mghelper.AssertTableNotExists(t, db, "whitelist_entries")
	mghelper.AssertTableNotExists(t, db, "whitelist_changes")
	mghelper.AssertTableNotExists(t, db, "whitelist_versions")
	mghelper.AssertTableNotExists(t, db, "whitelists")
}
