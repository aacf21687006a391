// Package treasurydb holds all the migrations for the treasury API database
package treasurydb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection of all migrations for the treasury API database
var Migrations = migrate.NewMigrations()
