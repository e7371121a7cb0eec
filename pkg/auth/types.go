package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
)

// Identity is the decoded content of a verified session token
type Identity struct {
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	TenantID uuid.UUID `json:"tenant_id"`
}

// Principal is the authenticated caller of the current request
type Principal struct {
	UserID   uuid.UUID
	Email    string
	TenantID uuid.UUID
}

// WithPrincipal adds the principal to the context
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextkeys.PrincipalKey, p)
}

// PrincipalFromContext returns the principal of the current request, or nil
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextkeys.PrincipalKey).(*Principal)
	return p
}
