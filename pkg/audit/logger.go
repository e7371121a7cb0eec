package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/tenancy"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close flushes and releases the logger
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	// Return a no-op logger if none is set
	return NoOpLogger{}
}

// NoOpLogger discards every event
type NoOpLogger struct{}

func (NoOpLogger) Log(context.Context, *Event) error { return nil }
func (NoOpLogger) Close() error                      { return nil }

// NewEvent builds a successful event populated from ctx: the active tenant,
// the acting principal and the request id.
func NewEvent(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID string) *Event {
	event := &Event{
		ID:           uuid.New(),
		Timestamp:    time.Now().UTC(),
		EventType:    eventType,
		Status:       EventStatusSuccess,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    contextkeys.GetRequestID(ctx),
		Metadata:     Metadata{},
	}
	if tenantID, ok := tenancy.Current(ctx); ok {
		event.TenantID = tenantID
	}
	if p := auth.PrincipalFromContext(ctx); p != nil {
		actor := p.UserID
		event.ActorID = &actor
	}
	return event
}

// Record logs event on a best-effort basis. Audit is a side channel: a
// failure is logged and never returned to the caller.
func Record(ctx context.Context, logger Logger, event *Event) {
	if logger == nil {
		return
	}
	if err := logger.Log(ctx, event); err != nil {
		observability.FromContext(ctx).
			WithError(err).
			WithField("event_type", string(event.EventType)).
			WithField("resource_id", event.ResourceID).
			Warn("Failed to record audit event")
	}
}
