// Package storage is the data access layer shared by every tenant of the
// deployment.
//
// # Overview
//
// All tenants live in one database. Tenant isolation is the default here, not
// something each caller must remember: tables owned by a tenant can only be
// reached through a Scoped accessor, and a Scoped accessor reads the active
// tenant from the context (see package tenancy) at the moment each statement
// runs.
//
// # Accessors
//
// Three accessor types exist, and which one a call site uses is visible in the
// code:
//
//	Scoped[T]   - tenant-owned tables. Reads, updates and deletes get
//	              "tenant_id = <active>" prepended to the caller's filter;
//	              inserts overwrite the row's tenant. No active tenant means
//	              tenancy.ErrMissingTenantContext and no statement is sent.
//	Global[T]   - tables that belong to no tenant (the permission catalog).
//	              Construction fails for tenant-owned tables.
//	Unscoped[T] - the audited bypass. Used by tenant resolution and by
//	              platform administration only.
//
// Scoped is constrained on TenantModel at compile time, so a model without a
// tenant accessor cannot be used with it:
//
//	users := storage.NewScoped[rbac.User](store)
//	err := tenancy.Run(ctx, tenantID, func(ctx context.Context) error {
//		list, err := users.Find(ctx, storage.Where(storage.IsNull("deleted_at")))
//		...
//	})
//
// # Shared rows
//
// A table may set TableSpec.SharedRows to let reads also see rows whose tenant
// column is NULL. Roles use this so system roles are visible to every tenant,
// while updates and deletes stay on "tenant_id = <active>" and can never touch
// a system role.
//
// # Transactions
//
// Store.InTx runs a function in a transaction that either commits completely
// or rolls back completely, including on panic and context cancellation.
// Accessors are re-bound to a transaction with In:
//
//	err := store.InTx(ctx, func(ctx context.Context, tx *storage.Tx) error {
//		_, err := users.In(tx).Update(ctx, storage.Where(storage.Eq("id", id)),
//			storage.Assign("role_id", target))
//		return err
//	})
//
// # Dialects
//
// SQL is rendered with PostgreSQL placeholders in production (lib/pq) and
// with SQLite placeholders in tests. Schema DDL is kept to types both engines
// understand (UUID, TEXT, BOOLEAN, TIMESTAMP).
package storage
