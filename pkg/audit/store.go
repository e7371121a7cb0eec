package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/storage"
)

// StoreLogger persists events to the audit_events table of the active tenant
type StoreLogger struct {
	events  *storage.Scoped[Event, *Event]
	metrics *observability.Metrics
}

// NewStoreLogger creates a database-backed audit logger
func NewStoreLogger(store *storage.Store, metrics *observability.Metrics) *StoreLogger {
	return &StoreLogger{
		events:  storage.NewScoped[Event](store),
		metrics: metrics,
	}
}

// Log inserts event under the active tenant
func (l *StoreLogger) Log(ctx context.Context, event *Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := l.events.Insert(ctx, event); err != nil {
		l.metrics.AuditFailure()
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Close implements Logger
func (l *StoreLogger) Close() error {
	return nil
}

// Search returns the active tenant's events matching filter, newest first
func (l *StoreLogger) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	var conds []storage.Cond
	if filter.EventType != "" {
		conds = append(conds, storage.Eq("event_type", string(filter.EventType)))
	}
	if filter.ResourceType != "" {
		conds = append(conds, storage.Eq("resource_type", string(filter.ResourceType)))
	}
	if filter.ResourceID != "" {
		conds = append(conds, storage.Eq("resource_id", filter.ResourceID))
	}
	if filter.ActorID != nil {
		conds = append(conds, storage.Eq("actor_id", *filter.ActorID))
	}

	f := storage.Where(conds...).OrderDesc("occurred_at", "id")
	if filter.Limit > 0 {
		f = f.Take(filter.Limit)
	}
	events, err := l.events.Find(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	return events, nil
}

// Get returns one of the active tenant's events
func (l *StoreLogger) Get(ctx context.Context, id uuid.UUID) (*Event, error) {
	return l.events.Get(ctx, storage.Where(storage.Eq("id", id)))
}
