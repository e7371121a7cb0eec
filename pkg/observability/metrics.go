package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values shared by the counters below
const (
	ResultOK      = "ok"
	ResultMissing = "missing"
	ResultInvalid = "invalid"
	ResultAllowed = "allowed"
	ResultDenied  = "denied"
	ResultError   = "error"
	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultBlocked = "blocked"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Tenancy metrics
	TenantResolutionsTotal *prometheus.CounterVec

	// Permission metrics
	PermissionChecksTotal *prometheus.CounterVec
	PermissionCacheTotal  *prometheus.CounterVec
	OverrideWritesTotal   *prometheus.CounterVec

	// Reassignment metrics
	ReassignmentsTotal   *prometheus.CounterVec
	ReassignedUsersTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
	DBConnectionsWait   prometheus.Gauge

	// Audit metrics
	AuditFailuresTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantguard_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		TenantResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_tenant_resolution_total",
				Help: "Tenant resolutions by result and credential source",
			},
			[]string{"result", "source"},
		),
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_permission_checks_total",
				Help: "Permission checks by result",
			},
			[]string{"result"},
		),
		PermissionCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_permission_cache_total",
				Help: "Permission cache lookups by result",
			},
			[]string{"result"},
		),
		OverrideWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_override_writes_total",
				Help: "User override replacements by result",
			},
			[]string{"result"},
		),
		ReassignmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_reassignments_total",
				Help: "Safe role and team deletions by entity kind and result",
			},
			[]string{"kind", "result"},
		),
		ReassignedUsersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_reassigned_users_total",
				Help: "Users moved to another role or team by a safe deletion",
			},
			[]string{"kind"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenantguard_db_connections_active",
				Help: "Number of connections in use",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenantguard_db_connections_idle",
				Help: "Number of idle connections",
			},
		),
		DBConnectionsWait: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenantguard_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
		AuditFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tenantguard_audit_failures_total",
				Help: "Audit events that could not be recorded",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.TenantResolutionsTotal,
		m.PermissionChecksTotal,
		m.PermissionCacheTotal,
		m.OverrideWritesTotal,
		m.ReassignmentsTotal,
		m.ReassignedUsersTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWait,
		m.AuditFailuresTotal,
	)

	return m
}

// TenantResolution counts one resolver outcome
func (m *Metrics) TenantResolution(result, source string) {
	if m == nil {
		return
	}
	m.TenantResolutionsTotal.WithLabelValues(result, source).Inc()
}

// PermissionCheck counts one permission decision
func (m *Metrics) PermissionCheck(result string) {
	if m == nil {
		return
	}
	m.PermissionChecksTotal.WithLabelValues(result).Inc()
}

// PermissionCache counts one cache lookup
func (m *Metrics) PermissionCache(result string) {
	if m == nil {
		return
	}
	m.PermissionCacheTotal.WithLabelValues(result).Inc()
}

// OverrideWrite counts one override replacement
func (m *Metrics) OverrideWrite(result string) {
	if m == nil {
		return
	}
	m.OverrideWritesTotal.WithLabelValues(result).Inc()
}

// Reassignment counts one safe deletion and the users it moved
func (m *Metrics) Reassignment(kind, result string, moved int) {
	if m == nil {
		return
	}
	m.ReassignmentsTotal.WithLabelValues(kind, result).Inc()
	if moved > 0 {
		m.ReassignedUsersTotal.WithLabelValues(kind).Add(float64(moved))
	}
}

// AuditFailure counts one dropped audit event
func (m *Metrics) AuditFailure() {
	if m == nil {
		return
	}
	m.AuditFailuresTotal.Inc()
}

// RecordDBStats copies connection pool statistics into the gauges
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWait.Set(float64(stats.WaitCount))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests, labelled by mux route template
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
