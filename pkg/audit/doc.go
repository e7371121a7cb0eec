// Package audit records sensitive mutations (role, permission, team and user
// changes) for compliance and forensics.
//
// # Overview
//
// Audit is a best-effort side channel. Callers build an event with NewEvent,
// which picks up the active tenant, acting principal and request id from the
// context, and hand it to Record. Record never returns an error: a failed
// write is logged and counted, and the primary operation continues.
//
// # Event Types
//
// Roles: role_create, role_update, role_delete, role_permissions, user_role_change
// Overrides: overrides_replace
// Teams: team_create, team_delete, team_member_add, team_member_remove
// Users: user_create, user_delete
// Requests: request_failed
//
// # Usage Example
//
//	event := audit.NewEvent(ctx, audit.EventTypeRoleDelete, audit.ResourceTypeRole, roleID.String())
//	event.Metadata["reassigned"] = len(users)
//	audit.Record(ctx, logger, event)
//
// Search the active tenant's events:
//
//	events, err := store.Search(ctx, audit.SearchFilter{ResourceType: audit.ResourceTypeRole})
//
// Export the same results as json, ndjson or csv:
//
//	err := audit.Export(w, events, audit.ExportCSV)
//
// # HTTP
//
// Middleware puts the logger in the request context and records mutating
// requests that end in a server error. Handlers serves search, export and
// single-event lookup under /audit/events.
//
// # Retention Policy
//
// Default: 365 days. RetentionJob deletes expired events across all tenants on
// a cron schedule (daily at 03:00 unless configured).
//
// # Related Packages
//
//   - pkg/rbac: emits role, override and team events
//   - pkg/storage: scoped persistence of events
package audit
