package rbac

import (
	"time"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/observability"
)

type options struct {
	cache   PermissionCache
	audit   audit.Logger
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// Option configures the services of this package
type Option func(*options)

// WithCache sets the permission cache. The default is NoCache.
func WithCache(c PermissionCache) Option {
	return func(o *options) { o.cache = c }
}

// WithAuditLogger sets where sensitive mutations are recorded
func WithAuditLogger(l audit.Logger) Option {
	return func(o *options) { o.audit = l }
}

// WithLogger sets the operational logger
func WithLogger(l *observability.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{
		cache:  NoCache{},
		audit:  audit.NoOpLogger{},
		logger: observability.NopLogger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cache == nil {
		o.cache = NoCache{}
	}
	if o.audit == nil {
		o.audit = audit.NoOpLogger{}
	}
	if o.logger == nil {
		o.logger = observability.NopLogger()
	}
	return o
}
