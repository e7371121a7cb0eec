package tenancy

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// DefaultTenantHeader is the fallback header carrying an explicit tenant id
const DefaultTenantHeader = "X-Tenant-ID"

// Credential sources recorded on a Resolution
const (
	SourceToken  = "token"
	SourceHeader = "header"
	SourceNone   = "none"
)

// TokenVerifier decodes a signed session token
type TokenVerifier interface {
	Verify(token string) (*auth.Identity, error)
}

// TenantLookup checks that a tenant exists. Implementations run before any
// tenant context is established, so they must use an unscoped read.
type TenantLookup interface {
	TenantExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Resolution is the outcome of resolving an inbound request
type Resolution struct {
	TenantID uuid.UUID
	// Principal is set only when a valid session token was presented
	Principal *auth.Principal
	Source    string
}

// Resolver decides which tenant a request belongs to
type Resolver struct {
	verifier TokenVerifier
	lookup   TenantLookup
	header   string
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithHeader changes the fallback tenant header
func WithHeader(name string) ResolverOption {
	return func(r *Resolver) { r.header = name }
}

// WithLogger sets the logger used for resolution failures
func WithLogger(logger *observability.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *observability.Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a resolver. verifier may be nil, in which case only the
// header is consulted.
func NewResolver(verifier TokenVerifier, lookup TenantLookup, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		verifier: verifier,
		lookup:   lookup,
		header:   DefaultTenantHeader,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve determines the tenant of req. A valid bearer token wins; an absent or
// invalid token falls back to the tenant header. The candidate must name an
// existing tenant.
func (rs *Resolver) Resolve(req *http.Request) (res Resolution, err error) {
	ctx, span := observability.StartSpan(req.Context(), "tenancy.Resolve")
	defer func() {
		span.SetAttributes(attribute.String("tenant.source", res.Source))
		observability.EndSpan(span, err)
	}()

	res, err = rs.candidate(req)
	if err != nil {
		return rs.fail(ctx, res, err)
	}

	ok, err := rs.lookup.TenantExists(ctx, res.TenantID)
	if err != nil {
		rs.metrics.TenantResolution(observability.ResultError, res.Source)
		return res, fmt.Errorf("failed to look up tenant: %w", err)
	}
	if !ok {
		return rs.fail(ctx, res, fmt.Errorf("%w: %s", ErrInvalidTenant, res.TenantID))
	}

	rs.metrics.TenantResolution(observability.ResultOK, res.Source)
	return res, nil
}

func (rs *Resolver) candidate(req *http.Request) (Resolution, error) {
	if token := auth.BearerToken(req.Header.Get("Authorization")); token != "" && rs.verifier != nil {
		identity, err := rs.verifier.Verify(token)
		switch {
		case err != nil:
			rs.logger.WithError(err).Debug("Ignoring invalid session token, falling back to tenant header")
		case identity.TenantID != uuid.Nil:
			return Resolution{
				TenantID: identity.TenantID,
				Principal: &auth.Principal{
					UserID:   identity.UserID,
					Email:    identity.Email,
					TenantID: identity.TenantID,
				},
				Source: SourceToken,
			}, nil
		}
	}

	raw := req.Header.Get(rs.header)
	if raw == "" {
		return Resolution{Source: SourceNone}, ErrMissingTenantContext
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return Resolution{Source: SourceHeader}, fmt.Errorf("%w: %q is not a tenant id", ErrInvalidTenant, raw)
	}
	return Resolution{TenantID: id, Source: SourceHeader}, nil
}

func (rs *Resolver) fail(ctx context.Context, res Resolution, err error) (Resolution, error) {
	result := observability.ResultInvalid
	if errors.Is(err, ErrMissingTenantContext) {
		result = observability.ResultMissing
	}
	rs.metrics.TenantResolution(result, res.Source)
	rs.logger.WithError(err).WithField("source", res.Source).Warn("Tenant resolution failed")
	return res, err
}

// ResolveAndRun resolves the tenant of req and runs handler inside its scope.
// ErrMissingTenantContext and ErrInvalidTenant are returned unchanged for the
// caller to map; otherwise the handler's own error is returned.
func (rs *Resolver) ResolveAndRun(req *http.Request, handler func(ctx context.Context) error) error {
	res, err := rs.Resolve(req)
	if err != nil {
		return err
	}
	ctx := req.Context()
	if res.Principal != nil {
		ctx = auth.WithPrincipal(ctx, res.Principal)
	}
	return Run(ctx, res.TenantID, handler)
}

// Middleware resolves the tenant before next runs. Unresolvable requests get
// 401 and never reach next.
func (rs *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := rs.ResolveAndRun(r, func(ctx context.Context) error {
			next.ServeHTTP(w, r.WithContext(ctx))
			return nil
		})
		switch {
		case err == nil:
		case IsMissingTenant(err):
			httputil.WriteUnauthorized(w, "missing tenant context")
		case IsInvalidTenant(err):
			httputil.WriteUnauthorized(w, "invalid tenant")
		case errors.Is(err, ErrTenantScopeConflict):
			httputil.WriteForbidden(w, "tenant scope conflict")
		default:
			observability.FromContext(r.Context()).WithError(err).Error("Tenant resolution error")
			httputil.WriteInternalError(w)
		}
	})
}
