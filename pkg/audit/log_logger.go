package audit

import (
	"context"

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// LogLogger writes audit events to the structured application log. It is
// paired with StoreLogger so events still reach log shipping when the
// database write fails.
type LogLogger struct {
	logger *observability.Logger
}

// NewLogLogger creates a logger that emits one log line per event
func NewLogLogger(logger *observability.Logger) *LogLogger {
	return &LogLogger{logger: logger}
}

// Log implements Logger
func (l *LogLogger) Log(_ context.Context, event *Event) error {
	fields := map[string]interface{}{
		"audit_event_id": event.ID.String(),
		"tenant_id":      event.TenantID.String(),
		"event_type":     string(event.EventType),
		"status":         string(event.Status),
		"resource_type":  string(event.ResourceType),
		"resource_id":    event.ResourceID,
	}
	if event.ActorID != nil {
		fields["actor_id"] = event.ActorID.String()
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}
	msg := event.Message
	if msg == "" {
		msg = "Audit event"
	}
	l.logger.WithFields(fields).Info(msg)
	return nil
}

// Close implements Logger
func (l *LogLogger) Close() error {
	return nil
}
