package rbac

import (
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// PermissionMiddleware provides middleware for permission checking. It must
// run inside tenant resolution so the principal and tenant are on the context.
type PermissionMiddleware struct {
	resolver *Resolver
}

// NewPermissionMiddleware creates a new permission middleware
func NewPermissionMiddleware(resolver *Resolver) *PermissionMiddleware {
	return &PermissionMiddleware{resolver: resolver}
}

// RequirePermission creates middleware that requires a specific permission
func (pm *PermissionMiddleware) RequirePermission(p Permission) func(http.Handler) http.Handler {
	return pm.RequireAnyPermission(p)
}

// RequireAnyPermission creates middleware that requires at least one of the
// given permissions
func (pm *PermissionMiddleware) RequireAnyPermission(perms ...Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := auth.PrincipalFromContext(r.Context())
			if principal == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			lastErr := ErrPermissionDenied
			for _, p := range perms {
				err := pm.resolver.AssertPermission(r.Context(), principal.UserID, p)
				if err == nil {
					next.ServeHTTP(w, r)
					return
				}
				lastErr = err
				if !IsPermissionDenied(err) {
					break
				}
			}
			writeError(w, r, lastErr)
		})
	}
}

// writeError renders err with the status HTTPStatus assigns it. Unexpected
// errors are logged and their text withheld.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		observability.FromContext(r.Context()).WithError(err).Error("Request failed")
		httputil.WriteInternalError(w)
		return
	}
	var rr *ReassignmentRequiredError
	if errors.As(err, &rr) {
		ids := make([]string, len(rr.UserIDs))
		for i, id := range rr.UserIDs {
			ids[i] = id.String()
		}
		httputil.WriteDetailedError(w, status, ErrReassignmentRequired, map[string]string{
			"kind":     rr.Kind,
			"user_ids": strings.Join(ids, ","),
		})
		return
	}
	httputil.WriteErrorMessage(w, status, err.Error())
}
