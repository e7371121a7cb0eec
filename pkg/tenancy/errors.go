package tenancy

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrMissingTenantContext is returned when no tenant could be determined for
	// a request, or a scoped operation ran outside a tenant scope.
	ErrMissingTenantContext = errors.New("missing tenant context")

	// ErrInvalidTenant is returned when the candidate tenant does not exist.
	ErrInvalidTenant = errors.New("invalid tenant")

	// ErrTenantScopeConflict is returned by Run when nested inside a scope for a
	// different tenant.
	ErrTenantScopeConflict = errors.New("tenant scope conflict")
)

// ScopeConflictError describes a nested Run with a different tenant.
type ScopeConflictError struct {
	Active    uuid.UUID
	Requested uuid.UUID
}

func (e *ScopeConflictError) Error() string {
	return fmt.Sprintf("tenant scope conflict: already serving %s, cannot enter %s", e.Active, e.Requested)
}

// Is reports whether target is ErrTenantScopeConflict.
func (e *ScopeConflictError) Is(target error) bool {
	return target == ErrTenantScopeConflict
}

// IsMissingTenant reports whether err is, or wraps, ErrMissingTenantContext.
func IsMissingTenant(err error) bool {
	return errors.Is(err, ErrMissingTenantContext)
}

// IsInvalidTenant reports whether err is, or wraps, ErrInvalidTenant.
func IsInvalidTenant(err error) bool {
	return errors.Is(err, ErrInvalidTenant)
}
