// Package tenancy carries the active tenant through a call chain and resolves
// it from inbound requests.
//
// The tenant id lives on the context.Context passed down the chain. Run
// derives a context carrying the id; everything invoked with that context,
// including goroutines it starts, observes the same id, while concurrently
// running chains each see their own. Nothing is stored in a package-level
// variable.
//
//	err := tenancy.Run(ctx, tenantID, func(ctx context.Context) error {
//		id, _ := tenancy.Current(ctx) // == tenantID
//		return users.Insert(ctx, &rbac.User{Email: email})
//	})
//
// Nesting Run with a different tenant returns ErrTenantScopeConflict without
// running the function; nesting with the same tenant simply continues.
// Platform administration that must act inside another tenant uses
// RunCrossTenant, which scopes only the nested call.
//
// Resolver decides the tenant of an HTTP request before any business logic:
// a valid bearer session token supplies the tenant claim and the principal,
// otherwise the X-Tenant-ID header is read. The candidate must name an
// existing tenant, checked through TenantLookup, the one read allowed to run
// before a tenant context exists.
//
//	resolver := tenancy.NewResolver(tokens, tenantService,
//		tenancy.WithLogger(logger), tenancy.WithMetrics(metrics))
//	router.Use(resolver.Middleware)
package tenancy
