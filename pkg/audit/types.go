package audit

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantguard/pkg/storage"
)

// EventType represents the category of audit event
type EventType string

const (
	// Role events
	EventTypeRoleCreate      EventType = "rbac.role_create"
	EventTypeRoleUpdate      EventType = "rbac.role_update"
	EventTypeRoleDelete      EventType = "rbac.role_delete"
	EventTypeRolePermissions EventType = "rbac.role_permissions"
	EventTypeUserRoleChange  EventType = "rbac.user_role_change"

	// Override events
	EventTypeOverridesReplace EventType = "rbac.overrides_replace"

	// Team events
	EventTypeTeamCreate       EventType = "rbac.team_create"
	EventTypeTeamDelete       EventType = "rbac.team_delete"
	EventTypeTeamMemberAdd    EventType = "rbac.team_member_add"
	EventTypeTeamMemberRemove EventType = "rbac.team_member_remove"

	// User events
	EventTypeUserCreate EventType = "admin.user_create"
	EventTypeUserDelete EventType = "admin.user_delete"

	// Authorization events
	EventTypeAccessDenied EventType = "authz.access_denied"

	// Request events
	EventTypeRequestFailed EventType = "http.request_failed"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource an event is about
type ResourceType string

const (
	ResourceTypeRole       ResourceType = "role"
	ResourceTypeTeam       ResourceType = "team"
	ResourceTypeUser       ResourceType = "user"
	ResourceTypePermission ResourceType = "permission"
	ResourceTypeRequest    ResourceType = "request"
)

// Metadata is free-form event detail stored as JSON
type Metadata map[string]interface{}

// Value implements driver.Valuer
func (m Metadata) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Metadata", src)
	}
	return json.Unmarshal(raw, m)
}

// Event is a single audit log entry. Events belong to the tenant in which the
// audited change happened.
type Event struct {
	ID        uuid.UUID   `json:"id"`
	TenantID  uuid.UUID   `json:"tenant_id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// ActorID is the user who made the change, nil for system actions
	ActorID *uuid.UUID `json:"actor_id,omitempty"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	RequestID string   `json:"request_id,omitempty"`
	Message   string   `json:"message,omitempty"`
	Metadata  Metadata `json:"metadata,omitempty"`
}

func (*Event) Spec() storage.TableSpec {
	return storage.TableSpec{
		Name: "audit_events",
		Columns: []string{
			"id", "tenant_id", "occurred_at", "event_type", "status", "actor_id",
			"resource_type", "resource_id", "request_id", "message", "metadata",
		},
		TenantColumn: "tenant_id",
	}
}

func (e *Event) Values() []any {
	return []any{
		e.ID, e.TenantID, e.Timestamp, string(e.EventType), string(e.Status), e.ActorID,
		string(e.ResourceType), e.ResourceID, e.RequestID, e.Message, e.Metadata,
	}
}

func (e *Event) Pointers() []any {
	return []any{
		&e.ID, &e.TenantID, &e.Timestamp, &e.EventType, &e.Status, &e.ActorID,
		&e.ResourceType, &e.ResourceID, &e.RequestID, &e.Message, &e.Metadata,
	}
}

func (e *Event) GetTenantID() uuid.UUID   { return e.TenantID }
func (e *Event) SetTenantID(id uuid.UUID) { e.TenantID = id }

// SearchFilter narrows an event search within the active tenant
type SearchFilter struct {
	EventType    EventType
	ResourceType ResourceType
	ResourceID   string
	ActorID      *uuid.UUID
	Limit        int
}

// RetentionPolicy defines how long audit events are kept
type RetentionPolicy struct {
	// RetentionDays is the number of days to keep audit events
	RetentionDays int
}

// DefaultRetentionPolicy returns the default retention policy (365 days)
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{RetentionDays: 365}
}
