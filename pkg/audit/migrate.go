package audit

import (
	"context"

	"github.com/platinummonkey/tenantguard/pkg/storage"
)

// Schema creates the audit_events table
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS audit_events (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL,
		occurred_at TIMESTAMP NOT NULL,
		event_type TEXT NOT NULL,
		status TEXT NOT NULL,
		actor_id UUID,
		resource_type TEXT NOT NULL DEFAULT '',
		resource_id TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_events_tenant_time ON audit_events(tenant_id, occurred_at)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_events_resource ON audit_events(tenant_id, resource_type, resource_id)`,
}

// Migrate creates the audit schema
func Migrate(ctx context.Context, store *storage.Store) error {
	return store.Exec(ctx, Schema...)
}
