package database

import (
	"context"

	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies the schema. Statements are idempotent so this runs on
// every startup.
func (db *DB) Migrate(ctx context.Context) error {
	_, err := db.ExecContext(ctx, schemaSQL)
	return err
}
