// Package migrations holds the schema migrations, applied with bun/migrate.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
