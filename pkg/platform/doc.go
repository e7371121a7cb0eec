// Package platform assembles tenant resolution, scoped storage and RBAC into
// the boundary consumed by the route layer.
//
//	p := platform.New(store, registry, platform.Config{
//		Verifier:   tokens,
//		Cache:      rbac.NewLRUCache(10000, rbac.DefaultCacheTTL),
//		AuditStore: audit.NewStoreLogger(store, metrics),
//	})
//
//	err := p.ResolveTenantAndRun(req, func(ctx context.Context) error {
//		return p.AssertPermission(ctx, userID, rbac.NewPermission(rbac.ResourceTicket, rbac.ActionUpdate))
//	})
//
// Router returns the full HTTP handler with health, metrics, RBAC and audit
// routes.
package platform
