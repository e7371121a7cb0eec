package tenants

import (
	"context"

	"github.com/platinummonkey/tenantguard/pkg/storage"
)

// Schema creates the tenants table. The DDL is valid on PostgreSQL and SQLite.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		settings TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
}

// Migrate creates the tenants schema
func Migrate(ctx context.Context, store *storage.Store) error {
	return store.Exec(ctx, Schema...)
}
