package tenancy

import (
	"context"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
)

// WithTenant returns a copy of ctx carrying tenantID. Most callers want Run.
func WithTenant(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, contextkeys.TenantKey, tenantID)
}

// Current returns the tenant id active on ctx, if any.
func Current(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(contextkeys.TenantKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// CurrentTenantID returns the active tenant id or nil when called outside a Run scope.
func CurrentTenantID(ctx context.Context) *uuid.UUID {
	id, ok := Current(ctx)
	if !ok {
		return nil
	}
	return &id
}

// Require returns the active tenant id or ErrMissingTenantContext.
func Require(ctx context.Context) (uuid.UUID, error) {
	id, ok := Current(ctx)
	if !ok {
		return uuid.Nil, ErrMissingTenantContext
	}
	return id, nil
}

// Run executes fn with a context scoped to tenantID. The value is visible to
// everything fn calls with that context, including goroutines it starts, and
// to nothing else. Re-entering with the same tenant is allowed; re-entering with
// a different tenant returns ErrTenantScopeConflict without calling fn.
func Run(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) error {
	if tenantID == uuid.Nil {
		return ErrMissingTenantContext
	}
	if active, ok := Current(ctx); ok {
		if active != tenantID {
			return &ScopeConflictError{Active: active, Requested: tenantID}
		}
		return fn(ctx)
	}
	return fn(WithTenant(ctx, tenantID))
}

// RunCrossTenant executes fn scoped to tenantID even when ctx already carries
// a different tenant. It is the entry point for platform administration that
// acts on behalf of another tenant. The nested value applies only to the ctx
// handed to fn; the caller's ctx keeps its own tenant.
func RunCrossTenant(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) error {
	if tenantID == uuid.Nil {
		return ErrMissingTenantContext
	}
	return fn(WithTenant(ctx, tenantID))
}
