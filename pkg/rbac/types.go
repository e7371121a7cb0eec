package rbac

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantguard/pkg/storage"
)

// Resource represents a resource type in the system
type Resource string

const (
	ResourceUser       Resource = "user"
	ResourceRole       Resource = "role"
	ResourceTeam       Resource = "team"
	ResourcePermission Resource = "permission"
	ResourceAudit      Resource = "audit"
	ResourceSettings   Resource = "settings"
	ResourceTicket     Resource = "ticket"
	ResourceEvent      Resource = "event"
	ResourceInventory  Resource = "inventory"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionAssign Action = "assign"
)

// Scope represents the extent at which a permission applies
type Scope string

const (
	ScopeTenant Scope = "tenant" // every row of the tenant
	ScopeOwn    Scope = "own"    // rows the user owns
)

// wildcard is the resource, action and scope of the all-permissions tuple
const wildcard = "*"

// Permission is a (resource, action, scope) capability tuple
type Permission struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
	Scope    Scope    `json:"scope"`
}

// WildcardPermission denotes every permission
var WildcardPermission = Permission{Resource: wildcard, Action: wildcard, Scope: wildcard}

// NewPermission builds a tenant-scoped permission
func NewPermission(resource Resource, action Action) Permission {
	return Permission{Resource: resource, Action: action, Scope: ScopeTenant}
}

// IsWildcard reports whether p is the all-permissions tuple
func (p Permission) IsWildcard() bool {
	return p == WildcardPermission
}

// String returns "resource:action:scope"
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action) + ":" + string(p.Scope)
}

// ParsePermission parses "resource:action" or "resource:action:scope". The
// scope defaults to tenant.
func ParsePermission(s string) (Permission, error) {
	parts := strings.Split(s, ":")
	switch {
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		return Permission{Resource: Resource(parts[0]), Action: Action(parts[1]), Scope: ScopeTenant}, nil
	case len(parts) == 3 && parts[0] != "" && parts[1] != "" && parts[2] != "":
		return Permission{Resource: Resource(parts[0]), Action: Action(parts[1]), Scope: Scope(parts[2])}, nil
	default:
		return Permission{}, &ValidationError{Field: "permission", Message: fmt.Sprintf("malformed permission %q", s)}
	}
}

// PermissionRecord is a row of the global permission catalog
type PermissionRecord struct {
	ID          uuid.UUID `json:"id"`
	Resource    Resource  `json:"resource"`
	Action      Action    `json:"action"`
	Scope       Scope     `json:"scope"`
	Description string    `json:"description,omitempty"`
}

// Permission returns the tuple of the record
func (r PermissionRecord) Permission() Permission {
	return Permission{Resource: r.Resource, Action: r.Action, Scope: r.Scope}
}

func (*PermissionRecord) Spec() storage.TableSpec {
	return storage.TableSpec{
		Name:    "permissions",
		Columns: []string{"id", "resource", "action", "scope", "description"},
	}
}

func (r *PermissionRecord) Values() []any {
	return []any{r.ID, string(r.Resource), string(r.Action), string(r.Scope), r.Description}
}

func (r *PermissionRecord) Pointers() []any {
	return []any{&r.ID, &r.Resource, &r.Action, &r.Scope, &r.Description}
}

// Role is a named set of permissions. System roles have no tenant and are
// visible to, but immutable for, every tenant.
type Role struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    *uuid.UUID `json:"tenant_id,omitempty"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Description string     `json:"description"`
	IsSystem    bool       `json:"is_system"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (*Role) Spec() storage.TableSpec {
	return storage.TableSpec{
		Name:         "roles",
		Columns:      []string{"id", "tenant_id", "name", "slug", "description", "is_system", "created_at", "updated_at"},
		TenantColumn: "tenant_id",
		SharedRows:   true,
	}
}

func (r *Role) Values() []any {
	return []any{r.ID, r.TenantID, r.Name, r.Slug, r.Description, r.IsSystem, r.CreatedAt, r.UpdatedAt}
}

func (r *Role) Pointers() []any {
	return []any{&r.ID, &r.TenantID, &r.Name, &r.Slug, &r.Description, &r.IsSystem, &r.CreatedAt, &r.UpdatedAt}
}

func (r *Role) GetTenantID() uuid.UUID { return storage.TenantOf(r.TenantID) }

func (r *Role) SetTenantID(id uuid.UUID) {
	r.TenantID = &id
}

// RolePermission assigns a catalog permission to a role
type RolePermission struct {
	TenantID     *uuid.UUID `json:"tenant_id,omitempty"`
	RoleID       uuid.UUID  `json:"role_id"`
	PermissionID uuid.UUID  `json:"permission_id"`
}

func (*RolePermission) Spec() storage.TableSpec {
	return storage.TableSpec{
		Name:         "role_permissions",
		Columns:      []string{"tenant_id", "role_id", "permission_id"},
		TenantColumn: "tenant_id",
		SharedRows:   true,
	}
}

func (rp *RolePermission) Values() []any {
	return []any{rp.TenantID, rp.RoleID, rp.PermissionID}
}

func (rp *RolePermission) Pointers() []any {
	return []any{&rp.TenantID, &rp.RoleID, &rp.PermissionID}
}

func (rp *RolePermission) GetTenantID() uuid.UUID { return storage.TenantOf(rp.TenantID) }

func (rp *RolePermission) SetTenantID(id uuid.UUID) {
	rp.TenantID = &id
}

// User is a member of a tenant. Deleted users keep their row for audit.
type User struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  uuid.UUID  `json:"tenant_id"`
	Email     string     `json:"email"`
	FullName  string     `json:"full_name"`
	RoleID    *uuid.UUID `json:"role_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

func (*User) Spec() storage.TableSpec {
	return storage.TableSpec{
		Name:         "users",
		Columns:      []string{"id", "tenant_id", "email", "full_name", "role_id", "created_at", "deleted_at"},
		TenantColumn: "tenant_id",
	}
}

func (u *User) Values() []any {
	return []any{u.ID, u.TenantID, u.Email, u.FullName, u.RoleID, u.CreatedAt, u.DeletedAt}
}

func (u *User) Pointers() []any {
	return []any{&u.ID, &u.TenantID, &u.Email, &u.FullName, &u.RoleID, &u.CreatedAt, &u.DeletedAt}
}

func (u *User) GetTenantID() uuid.UUID   { return u.TenantID }
func (u *User) SetTenantID(id uuid.UUID) { u.TenantID = id }

// IsDeleted reports whether the user was soft-deleted
func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

// Override grants or revokes one permission for one user, regardless of role
type Override struct {
	TenantID     uuid.UUID `json:"tenant_id"`
	UserID       uuid.UUID `json:"user_id"`
	PermissionID uuid.UUID `json:"permission_id"`
	Granted      bool      `json:"granted"`
	CreatedAt    time.Time `json:"created_at"`
}

func (*Override) Spec() storage.TableSpec {
	return storage.TableSpec{
		Name:         "user_permission_overrides",
		Columns:      []string{"tenant_id", "user_id", "permission_id", "granted", "created_at"},
		TenantColumn: "tenant_id",
	}
}

func (o *Override) Values() []any {
	return []any{o.TenantID, o.UserID, o.PermissionID, o.Granted, o.CreatedAt}
}

func (o *Override) Pointers() []any {
	return []any{&o.TenantID, &o.UserID, &o.PermissionID, &o.Granted, &o.CreatedAt}
}

func (o *Override) GetTenantID() uuid.UUID   { return o.TenantID }
func (o *Override) SetTenantID(id uuid.UUID) { o.TenantID = id }

// OverrideInput is one entry of a user's replacement override set
type OverrideInput struct {
	PermissionID uuid.UUID `json:"permission_id"`
	Granted      bool      `json:"granted"`
}

// Team represents a team of users
type Team struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func (*Team) Spec() storage.TableSpec {
	return storage.TableSpec{
		Name:         "teams",
		Columns:      []string{"id", "tenant_id", "name", "slug", "description", "created_at"},
		TenantColumn: "tenant_id",
	}
}

func (t *Team) Values() []any {
	return []any{t.ID, t.TenantID, t.Name, t.Slug, t.Description, t.CreatedAt}
}

func (t *Team) Pointers() []any {
	return []any{&t.ID, &t.TenantID, &t.Name, &t.Slug, &t.Description, &t.CreatedAt}
}

func (t *Team) GetTenantID() uuid.UUID   { return t.TenantID }
func (t *Team) SetTenantID(id uuid.UUID) { t.TenantID = id }

// TeamMember represents a user's membership in a team
type TeamMember struct {
	TenantID uuid.UUID `json:"tenant_id"`
	TeamID   uuid.UUID `json:"team_id"`
	UserID   uuid.UUID `json:"user_id"`
	AddedAt  time.Time `json:"added_at"`
}

func (*TeamMember) Spec() storage.TableSpec {
	return storage.TableSpec{
		Name:         "team_members",
		Columns:      []string{"tenant_id", "team_id", "user_id", "added_at"},
		TenantColumn: "tenant_id",
	}
}

func (m *TeamMember) Values() []any {
	return []any{m.TenantID, m.TeamID, m.UserID, m.AddedAt}
}

func (m *TeamMember) Pointers() []any {
	return []any{&m.TenantID, &m.TeamID, &m.UserID, &m.AddedAt}
}

func (m *TeamMember) GetTenantID() uuid.UUID   { return m.TenantID }
func (m *TeamMember) SetTenantID(id uuid.UUID) { m.TenantID = id }

// PermissionStatus classifies a permission for display
type PermissionStatus string

const (
	StatusInherited PermissionStatus = "inherited" // role grants it, no override
	StatusGranted   PermissionStatus = "granted"   // override adds what the role lacks
	StatusRevoked   PermissionStatus = "revoked"   // override removes what the role grants
	StatusNone      PermissionStatus = "none"
)

// EffectivePermission is one catalog entry with its status for a user
type EffectivePermission struct {
	PermissionID uuid.UUID        `json:"permission_id"`
	Permission   Permission       `json:"permission"`
	Status       PermissionStatus `json:"status"`
}

// Allowed reports whether the status lets the user perform the permission
func (e EffectivePermission) Allowed() bool {
	return e.Status == StatusInherited || e.Status == StatusGranted
}
