package rbac

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/storage"
	"github.com/platinummonkey/tenantguard/pkg/tenancy"
)

// Resolver answers permission questions for users of the active tenant
type Resolver struct {
	store     *storage.Store
	registry  *Registry
	users     *storage.Scoped[User, *User]
	rolePerms *storage.Scoped[RolePermission, *RolePermission]
	overrides *storage.Scoped[Override, *Override]
	loads     singleflight.Group
	opts      options
}

// NewResolver creates a permission resolver over store
func NewResolver(store *storage.Store, registry *Registry, opts ...Option) *Resolver {
	return &Resolver{
		store:     store,
		registry:  registry,
		users:     storage.NewScoped[User](store),
		rolePerms: storage.NewScoped[RolePermission](store),
		overrides: storage.NewScoped[Override](store),
		opts:      buildOptions(opts),
	}
}

// Registry returns the permission catalog the resolver checks against
func (r *Resolver) Registry() *Registry {
	return r.registry
}

func (r *Resolver) wildcardID() uuid.UUID {
	w, ok := r.registry.Wildcard()
	if !ok {
		return uuid.Nil
	}
	return w.ID
}

// Allowed reports whether the user may perform p. A user that does not exist
// in the active tenant, or was deleted, is allowed nothing.
func (r *Resolver) Allowed(ctx context.Context, userID uuid.UUID, p Permission) (allowed bool, err error) {
	ctx, span := observability.StartSpan(ctx, "rbac.Allowed",
		attribute.String("user.id", userID.String()),
		attribute.String("permission", p.String()),
	)
	defer func() {
		span.SetAttributes(attribute.Bool("permission.allowed", allowed))
		observability.EndSpan(span, err)
	}()

	rec, ok := r.registry.ByTuple(p)
	if !ok {
		r.opts.metrics.PermissionCheck(observability.ResultError)
		return false, &ValidationError{Field: "permission", Message: fmt.Sprintf("%s is not in the registry", p)}
	}

	set, err := r.permissionSet(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		r.opts.metrics.PermissionCheck(observability.ResultDenied)
		return false, nil
	}
	if err != nil {
		r.opts.metrics.PermissionCheck(observability.ResultError)
		return false, err
	}

	allowed = set.Allowed(rec.ID, r.wildcardID())
	if allowed {
		r.opts.metrics.PermissionCheck(observability.ResultAllowed)
	} else {
		r.opts.metrics.PermissionCheck(observability.ResultDenied)
	}
	return allowed, nil
}

// AssertPermission returns a *PermissionDeniedError unless the user may perform p
func (r *Resolver) AssertPermission(ctx context.Context, userID uuid.UUID, p Permission) error {
	allowed, err := r.Allowed(ctx, userID, p)
	if err != nil {
		return err
	}
	if allowed {
		return nil
	}

	event := audit.NewEvent(ctx, audit.EventTypeAccessDenied, audit.ResourceTypePermission, p.String())
	event.Status = audit.EventStatusDenied
	event.Metadata["user_id"] = userID.String()
	audit.Record(ctx, r.opts.audit, event)

	return &PermissionDeniedError{UserID: userID, Permission: p}
}

// EffectivePermissions classifies every listed permission for the user
func (r *Resolver) EffectivePermissions(ctx context.Context, userID uuid.UUID) ([]EffectivePermission, error) {
	set, err := r.permissionSet(ctx, userID)
	if err != nil {
		return nil, err
	}

	wildcardID := r.wildcardID()
	records := r.registry.List()
	result := make([]EffectivePermission, 0, len(records))
	for _, rec := range records {
		result = append(result, EffectivePermission{
			PermissionID: rec.ID,
			Permission:   rec.Permission(),
			Status:       set.Status(rec.ID, wildcardID),
		})
	}
	return result, nil
}

// Overrides returns the user's current override rows
func (r *Resolver) Overrides(ctx context.Context, userID uuid.UUID) ([]*Override, error) {
	if _, err := r.activeUser(ctx, userID); err != nil {
		return nil, err
	}
	return r.overrides.Find(ctx, storage.Where(storage.Eq("user_id", userID)).Order("permission_id"))
}

// SetUserOverrides replaces the user's overrides with inputs. The old set is
// deleted and the new one inserted in one transaction, and the user's cached
// permissions are invalidated before this returns.
func (r *Resolver) SetUserOverrides(ctx context.Context, userID uuid.UUID, inputs []OverrideInput) (err error) {
	ctx, span := observability.StartSpan(ctx, "rbac.SetUserOverrides",
		attribute.String("user.id", userID.String()),
		attribute.Int("overrides.count", len(inputs)),
	)
	defer func() {
		observability.EndSpan(span, err)
		if err != nil {
			r.opts.metrics.OverrideWrite(observability.ResultError)
		}
	}()

	tenantID, err := tenancy.Require(ctx)
	if err != nil {
		return err
	}

	ids := make([]uuid.UUID, 0, len(inputs))
	seen := make(map[uuid.UUID]bool, len(inputs))
	for _, in := range inputs {
		if seen[in.PermissionID] {
			return &ValidationError{Field: "permission_id", Message: fmt.Sprintf("duplicate override for %s", in.PermissionID)}
		}
		seen[in.PermissionID] = true
		ids = append(ids, in.PermissionID)
	}
	if err := r.registry.Validate(ids...); err != nil {
		return err
	}

	now := r.opts.now()
	err = r.store.InTx(ctx, func(ctx context.Context, tx *storage.Tx) error {
		n, err := r.users.In(tx).Count(ctx, storage.Where(storage.Eq("id", userID), storage.IsNull("deleted_at")))
		if err != nil {
			return fmt.Errorf("failed to check user: %w", err)
		}
		if n == 0 {
			return ErrUserNotFound
		}

		if _, err := r.overrides.In(tx).Delete(ctx, storage.Where(storage.Eq("user_id", userID))); err != nil {
			return fmt.Errorf("failed to clear overrides: %w", err)
		}
		for _, in := range inputs {
			o := &Override{UserID: userID, PermissionID: in.PermissionID, Granted: in.Granted, CreatedAt: now}
			if err := r.overrides.In(tx).Insert(ctx, o); err != nil {
				return fmt.Errorf("failed to insert override: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := r.InvalidateUser(ctx, userID); err != nil {
		return err
	}
	r.opts.metrics.OverrideWrite(observability.ResultOK)

	event := audit.NewEvent(ctx, audit.EventTypeOverridesReplace, audit.ResourceTypeUser, userID.String())
	event.Metadata["count"] = len(inputs)
	audit.Record(ctx, r.opts.audit, event)

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"tenant_id": tenantID.String(),
		"user_id":   userID.String(),
		"count":     len(inputs),
	}).Debug("User overrides replaced")
	return nil
}

// InvalidateUser drops the cached permission set of one user of the active tenant
func (r *Resolver) InvalidateUser(ctx context.Context, userID uuid.UUID) error {
	return r.InvalidateUsers(ctx, userID)
}

// InvalidateUsers drops the cached permission sets of users of the active tenant
func (r *Resolver) InvalidateUsers(ctx context.Context, userIDs ...uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	tenantID, err := tenancy.Require(ctx)
	if err != nil {
		return err
	}
	keys := make([]CacheKey, len(userIDs))
	for i, id := range userIDs {
		keys[i] = CacheKey{TenantID: tenantID, UserID: id}
	}
	if err := r.opts.cache.Invalidate(ctx, keys...); err != nil {
		return fmt.Errorf("failed to invalidate permission cache: %w", err)
	}
	return nil
}

// InvalidateRole drops the cached permission sets of every user of the active
// tenant assigned to roleID
func (r *Resolver) InvalidateRole(ctx context.Context, roleID uuid.UUID) error {
	users, err := r.users.Find(ctx, storage.Where(storage.Eq("role_id", roleID)))
	if err != nil {
		return fmt.Errorf("failed to list role users: %w", err)
	}
	ids := make([]uuid.UUID, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return r.InvalidateUsers(ctx, ids...)
}

func (r *Resolver) activeUser(ctx context.Context, userID uuid.UUID) (*User, error) {
	user, err := r.users.Get(ctx, storage.Where(storage.Eq("id", userID), storage.IsNull("deleted_at")))
	if storage.IsNotFound(err) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// permissionSet returns the user's resolved permissions, from the cache when
// possible. Concurrent loads of the same user at the same cache generation
// share one database round trip.
func (r *Resolver) permissionSet(ctx context.Context, userID uuid.UUID) (*PermissionSet, error) {
	tenantID, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	key := CacheKey{TenantID: tenantID, UserID: userID}
	logger := r.opts.logger.WithField("tenant_id", tenantID.String()).WithField("user_id", userID.String())

	set, ok, err := r.opts.cache.Get(ctx, key)
	if err != nil {
		logger.WithError(err).Warn("Permission cache read failed")
	} else if ok {
		r.opts.metrics.PermissionCache(observability.ResultHit)
		return set, nil
	}
	r.opts.metrics.PermissionCache(observability.ResultMiss)

	cacheable := true
	gen, err := r.opts.cache.Generation(ctx, key)
	if err != nil {
		logger.WithError(err).Warn("Permission cache generation read failed")
		cacheable = false
	}

	// The shared load outlives any one caller: a caller that gives up must
	// not fail the others waiting on the same key.
	loadCtx := context.WithoutCancel(ctx)
	ch := r.loads.DoChan(key.String()+":"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		set, err := r.load(loadCtx, userID)
		if err != nil {
			return nil, err
		}
		if cacheable {
			if err := r.opts.cache.Set(loadCtx, key, gen, set); err != nil {
				logger.WithError(err).Warn("Permission cache write failed")
			}
		}
		return set, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*PermissionSet), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Resolver) load(ctx context.Context, userID uuid.UUID) (*PermissionSet, error) {
	user, err := r.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	set := newPermissionSet()
	if user.RoleID != nil {
		roleID := *user.RoleID
		set.RoleID = &roleID
		grants, err := r.rolePerms.Find(ctx, storage.Where(storage.Eq("role_id", roleID)))
		if err != nil {
			return nil, fmt.Errorf("failed to load role permissions: %w", err)
		}
		for _, g := range grants {
			set.RoleGrants[g.PermissionID] = true
		}
	}

	overrides, err := r.overrides.Find(ctx, storage.Where(storage.Eq("user_id", userID)))
	if err != nil {
		return nil, fmt.Errorf("failed to load overrides: %w", err)
	}
	for _, o := range overrides {
		set.Overrides[o.PermissionID] = o.Granted
	}
	return set, nil
}
