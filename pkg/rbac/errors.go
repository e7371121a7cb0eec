package rbac

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/tenantguard/pkg/storage"
	"github.com/platinummonkey/tenantguard/pkg/tenancy"
)

var (
	// ErrPermissionDenied is returned when a required permission check fails
	ErrPermissionDenied = errors.New("permission denied")

	// ErrReassignmentRequired is returned when a deletion would orphan users
	ErrReassignmentRequired = errors.New("reassignment required")

	// ErrInvalidReassignmentTarget is returned when a reassignment names a
	// target that does not exist or is the entity being deleted
	ErrInvalidReassignmentTarget = errors.New("invalid reassignment target")

	// ErrValidation is matched by every *ValidationError
	ErrValidation = errors.New("validation error")

	// ErrSystemRoleImmutable is returned for any edit or deletion of a system role
	ErrSystemRoleImmutable = errors.New("system roles cannot be modified")

	// ErrSlugTaken is returned when the derived slug is already in use in the tenant
	ErrSlugTaken = errors.New("slug already in use")

	// ErrEmailTaken is returned when a tenant already has a user with the email
	ErrEmailTaken = errors.New("email already in use")

	// ErrAlreadyMember is returned when adding an existing team member
	ErrAlreadyMember = errors.New("user is already a team member")

	// Not-found errors wrap storage.ErrNotFound
	ErrRoleNotFound = fmt.Errorf("role: %w", storage.ErrNotFound)
	ErrUserNotFound = fmt.Errorf("user: %w", storage.ErrNotFound)
	ErrTeamNotFound = fmt.Errorf("team: %w", storage.ErrNotFound)
)

// PermissionDeniedError describes a failed permission requirement
type PermissionDeniedError struct {
	UserID     uuid.UUID
	Permission Permission
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: user %s lacks %s", e.UserID, e.Permission)
}

// Is reports whether target is ErrPermissionDenied
func (e *PermissionDeniedError) Is(target error) bool {
	return target == ErrPermissionDenied
}

// ReassignmentRequiredError lists the users a deletion could not place
type ReassignmentRequiredError struct {
	Kind     string
	EntityID uuid.UUID
	UserIDs  []uuid.UUID
}

func (e *ReassignmentRequiredError) Error() string {
	ids := make([]string, len(e.UserIDs))
	for i, id := range e.UserIDs {
		ids[i] = id.String()
	}
	return fmt.Sprintf("reassignment required: %s %s still has %d assigned users without a target (%s)",
		e.Kind, e.EntityID, len(e.UserIDs), strings.Join(ids, ", "))
}

// Is reports whether target is ErrReassignmentRequired
func (e *ReassignmentRequiredError) Is(target error) bool {
	return target == ErrReassignmentRequired
}

// ValidationError reports a malformed request, typically a permission id that
// is not in the registry
type ValidationError struct {
	Field      string
	Message    string
	UnknownIDs []uuid.UUID
}

func (e *ValidationError) Error() string {
	if len(e.UnknownIDs) > 0 {
		ids := make([]string, len(e.UnknownIDs))
		for i, id := range e.UnknownIDs {
			ids[i] = id.String()
		}
		return fmt.Sprintf("validation error: %s: unknown ids %s", e.Field, strings.Join(ids, ", "))
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Is reports whether target is ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsPermissionDenied reports whether err is, or wraps, ErrPermissionDenied
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// HTTPStatus maps errors from this package, pkg/tenancy and pkg/storage to a
// response status
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, tenancy.ErrMissingTenantContext), errors.Is(err, tenancy.ErrInvalidTenant):
		return http.StatusUnauthorized
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrSystemRoleImmutable),
		errors.Is(err, tenancy.ErrTenantScopeConflict):
		return http.StatusForbidden
	case errors.Is(err, ErrReassignmentRequired), errors.Is(err, ErrSlugTaken),
		errors.Is(err, ErrEmailTaken), errors.Is(err, ErrAlreadyMember):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidReassignmentTarget), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
