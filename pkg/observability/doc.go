// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("user_id", userID).Warn("permission denied")
//
// FromContext picks up the request id and active tenant:
//
//	observability.FromContext(ctx).Info("role deleted")
//
// # Prometheus Metrics
//
// Every metric is prefixed tenantguard_. The helper methods accept a nil
// receiver so components can be built without metrics in tests:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.TenantResolution(observability.ResultInvalid, "header")
//	metrics.PermissionCheck(observability.ResultDenied)
//
// # Tracing
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
//	ctx, span := observability.StartSpan(ctx, "rbac.Allowed")
//	defer func() { observability.EndSpan(span, err) }()
//
// # Related Packages
//
//   - pkg/config: observability configuration
//   - pkg/platform: HTTP wiring of metrics, health and tracing
package observability
