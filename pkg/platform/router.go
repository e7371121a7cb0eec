package platform

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// APIPrefix is where tenant-scoped routes are mounted
const APIPrefix = "/api/v1"

const maxRequestBytes = 1 << 20

// Router builds the HTTP surface. Health and metrics routes sit outside
// tenant resolution; everything under APIPrefix runs inside it.
func (p *Platform) Router() http.Handler {
	router := mux.NewRouter()
	router.Use(
		httputil.RequestContextMiddleware(p.cfg.Logger),
		httputil.RecoveryMiddleware,
		observability.HTTPMetricsMiddleware(p.cfg.Metrics),
	)

	if p.cfg.MetricsRegistry != nil {
		router.Handle("/metrics", observability.MetricsHandler(p.cfg.MetricsRegistry)).Methods(http.MethodGet)
	}
	if p.cfg.Health != nil {
		observability.RegisterHealthRoutes(router, p.cfg.Health)
	}

	api := router.PathPrefix(APIPrefix).Subrouter()
	api.Use(httputil.MaxBytesMiddleware(maxRequestBytes), p.tenancy.Middleware)
	if p.auditLog != nil {
		api.Use(audit.Middleware(p.auditLog))
	}

	rbac.NewHandlers(p.services).RegisterRoutes(api)

	if p.cfg.AuditStore != nil {
		auditRoutes := api.NewRoute().Subrouter()
		auditRoutes.Use(rbac.NewPermissionMiddleware(p.services.Resolver).
			RequirePermission(rbac.NewPermission(rbac.ResourceAudit, rbac.ActionRead)))
		audit.NewHandlers(p.cfg.AuditStore).RegisterRoutes(auditRoutes)
	}

	return otelhttp.NewHandler(router, "tenantguard")
}
