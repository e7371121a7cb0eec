package platform

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/storage"
	"github.com/platinummonkey/tenantguard/pkg/tenancy"
	"github.com/platinummonkey/tenantguard/pkg/tenants"
)

// Config wires the optional collaborators of a Platform. Zero values are
// valid: no token verifier means only the tenant header is honoured, no cache
// means every check reads the database, and no audit store means events are
// dropped.
type Config struct {
	Verifier     tenancy.TokenVerifier
	TenantHeader string
	Cache        rbac.PermissionCache
	AuditStore   *audit.StoreLogger
	// AuditToLog also writes audit events to Logger
	AuditToLog bool

	Logger          *observability.Logger
	Metrics         *observability.Metrics
	MetricsRegistry *prometheus.Registry
	Health          *observability.HealthChecker
}

// Platform is the in-process boundary the route layer talks to
type Platform struct {
	store    *storage.Store
	tenants  *tenants.Service
	tenancy  *tenancy.Resolver
	services *rbac.Services
	auditLog audit.Logger
	cfg      Config
}

// New assembles a platform over store. registry is the permission catalog
// loaded at startup.
func New(store *storage.Store, registry *rbac.Registry, cfg Config) *Platform {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}

	tenantSvc := tenants.NewService(store, cfg.Logger)

	resolverOpts := []tenancy.ResolverOption{
		tenancy.WithLogger(cfg.Logger),
		tenancy.WithMetrics(cfg.Metrics),
	}
	if cfg.TenantHeader != "" {
		resolverOpts = append(resolverOpts, tenancy.WithHeader(cfg.TenantHeader))
	}

	rbacOpts := []rbac.Option{
		rbac.WithLogger(cfg.Logger),
		rbac.WithMetrics(cfg.Metrics),
	}
	if cfg.Cache != nil {
		rbacOpts = append(rbacOpts, rbac.WithCache(cfg.Cache))
	}
	auditLogger := auditLoggerFor(cfg)
	if auditLogger != nil {
		rbacOpts = append(rbacOpts, rbac.WithAuditLogger(auditLogger))
	}

	return &Platform{
		store:    store,
		tenants:  tenantSvc,
		tenancy:  tenancy.NewResolver(cfg.Verifier, tenantSvc, resolverOpts...),
		services: rbac.NewServices(store, registry, rbacOpts...),
		auditLog: auditLogger,
		cfg:      cfg,
	}
}

func auditLoggerFor(cfg Config) audit.Logger {
	var loggers []audit.Logger
	if cfg.AuditStore != nil {
		loggers = append(loggers, cfg.AuditStore)
	}
	if cfg.AuditToLog {
		loggers = append(loggers, audit.NewLogLogger(cfg.Logger))
	}
	switch len(loggers) {
	case 0:
		return nil
	case 1:
		return loggers[0]
	default:
		return audit.NewMultiLogger(loggers...)
	}
}

// Tenants returns the tenant directory
func (p *Platform) Tenants() *tenants.Service {
	return p.tenants
}

// Services returns the RBAC services
func (p *Platform) Services() *rbac.Services {
	return p.services
}

// ResolveTenantAndRun resolves the tenant of req and runs handler inside it.
// tenancy.ErrMissingTenantContext and tenancy.ErrInvalidTenant come back
// unwrapped for the caller to map.
func (p *Platform) ResolveTenantAndRun(req *http.Request, handler func(ctx context.Context) error) error {
	return p.tenancy.ResolveAndRun(req, handler)
}

// CurrentTenantID returns the tenant active on ctx
func (p *Platform) CurrentTenantID(ctx context.Context) (uuid.UUID, bool) {
	return tenancy.Current(ctx)
}

// AssertPermission fails with rbac.ErrPermissionDenied unless the user holds perm
func (p *Platform) AssertPermission(ctx context.Context, userID uuid.UUID, perm rbac.Permission) error {
	return p.services.Resolver.AssertPermission(ctx, userID, perm)
}

// EffectivePermissions lists every registered permission with the user's status
func (p *Platform) EffectivePermissions(ctx context.Context, userID uuid.UUID) ([]rbac.EffectivePermission, error) {
	return p.services.Resolver.EffectivePermissions(ctx, userID)
}

// DeleteRoleSafely deletes a role after moving its users
func (p *Platform) DeleteRoleSafely(ctx context.Context, roleID uuid.UUID, re rbac.Reassignment) error {
	return p.services.Reassigner.DeleteRoleSafely(ctx, roleID, re)
}

// DeleteTeamSafely deletes a team after moving its members
func (p *Platform) DeleteTeamSafely(ctx context.Context, teamID uuid.UUID, re rbac.Reassignment) error {
	return p.services.Reassigner.DeleteTeamSafely(ctx, teamID, re)
}
