// Package config loads service configuration from an optional YAML file and
// TENANTGUARD_* environment variables, environment taking precedence.
//
// # Configuration Structure
//
// Server settings:
//
//	TENANTGUARD_HOST="0.0.0.0"
//	TENANTGUARD_PORT="8080"
//	TENANTGUARD_SHUTDOWN_TIMEOUT="30s"
//
// Database and auth settings:
//
//	TENANTGUARD_DATABASE_URL="postgres://localhost/tenantguard?sslmode=disable"
//	TENANTGUARD_DATABASE_MAX_CONNS="20"
//	TENANTGUARD_TOKEN_SECRET="<at least 32 bytes>"
//	TENANTGUARD_TENANT_HEADER="X-Tenant-ID"
//
// Permission cache settings:
//
//	TENANTGUARD_CACHE_BACKEND="lru"  # lru, redis, none
//	TENANTGUARD_CACHE_TTL="5m"
//	TENANTGUARD_REDIS_URL="localhost:6379"
//
// Audit and observability settings:
//
//	TENANTGUARD_AUDIT_RETENTION_DAYS="365"
//	TENANTGUARD_AUDIT_RETENTION_SCHEDULE="0 3 * * *"
//	TENANTGUARD_AUDIT_LOG_EVENTS="false"
//	TENANTGUARD_LOG_LEVEL="info"
//	TENANTGUARD_OTEL_ENABLED="true"
//
// The same keys in YAML:
//
//	database:
//	  url: postgres://localhost/tenantguard
//	cache:
//	  backend: redis
//	  ttl: 10m
//
// # Usage Example
//
//	cfg, err := config.LoadConfig(os.Getenv("TENANTGUARD_CONFIG"))
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Related Packages
//
//   - pkg/storage: database pool configuration
//   - pkg/observability: logging and tracing configuration
package config
