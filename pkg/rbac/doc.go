// Package rbac resolves what a user of the active tenant may do and manages the
// roles, teams and users that decide it.
//
// # Permissions
//
// A Permission is a (resource, action, scope) tuple from a global catalog. The
// catalog is seeded once with SeedCatalog and loaded into a read-only Registry
// at startup:
//
//	if err := rbac.SeedCatalog(ctx, store, rbac.DefaultCatalog(), rbac.SystemRoles()); err != nil {
//		return err
//	}
//	registry, err := rbac.LoadRegistry(ctx, store)
//
// The wildcard tuple ("*:*:*") implies every other permission. It can be held
// by a role and referenced by an override, but Registry.List never returns it.
//
// # Resolution
//
// A user has at most one role and any number of overrides. For a permission P:
//
//  1. an override on P decides, granted or revoked
//  2. otherwise the role's wildcard grants P, unless the wildcard is revoked by an override
//  3. otherwise the role's grant of P decides
//
// Overrides are keyed by user and permission only, so they survive a change of
// role and keep applying under the new one.
//
//	services := rbac.NewServices(store, registry, rbac.WithCache(rbac.NewLRUCache(10000, 5*time.Minute)))
//	err := services.Resolver.AssertPermission(ctx, userID, rbac.NewPermission(rbac.ResourceTicket, rbac.ActionUpdate))
//	if rbac.IsPermissionDenied(err) {
//		...
//	}
//
// # Caching
//
// Resolved permission sets are cached per tenant and user. LRUCache keeps them
// in process and RedisCache shares them between replicas. Every write that
// changes a user's permissions invalidates the entry before it returns, and a
// set loaded concurrently with an invalidation is never stored.
//
// # Safe Deletion
//
// Reassigner deletes roles and teams that still have users. Users are moved to
// a fallback target or a per-user target in the same transaction as the delete:
//
//	err := services.Reassigner.DeleteRoleSafely(ctx, roleID, rbac.Reassignment{Fallback: &memberRoleID})
//	var rr *rbac.ReassignmentRequiredError
//	if errors.As(err, &rr) {
//		// rr.UserIDs have no target; nothing was changed
//	}
//
// System roles are shared by every tenant and can be neither edited nor deleted.
package rbac
