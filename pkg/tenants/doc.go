// Package tenants manages the organizations that share the deployment.
//
// # Overview
//
// A tenant owns users, roles, teams and every tenant-scoped business row. The
// tenants table itself is global, so this package is one of the few places
// that reads and writes through storage.NewUnscoped.
//
// # Settings
//
// Per-tenant settings are a versioned document. Stored documents of any older
// version are upgraded on read by MigrateSettings:
//
//	v0: free-form map ({"tz": "Europe/Berlin", "beta": true})
//	v1: {"version": 1, "timezone": ..., "language": ..., "features": {...}}
//	v2: Settings
//
// # Usage Example
//
//	svc := tenants.NewService(store, logger)
//	t, err := svc.Create(ctx, tenants.CreateTenantRequest{Name: "Acme Corp"})
//	// t.Slug == "acme-corp"
//
// The service implements tenancy.TenantLookup:
//
//	resolver := tenancy.NewResolver(tokens, svc)
package tenants
