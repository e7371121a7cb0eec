package rbac

import (
	"github.com/google/uuid"
)

// PermissionSet is the cached, resolved permission state of one user. It is
// keyed by permission id and serialises to JSON for shared caches.
type PermissionSet struct {
	RoleID *uuid.UUID `json:"role_id,omitempty"`

	// RoleGrants holds the permission ids the user's role grants
	RoleGrants map[uuid.UUID]bool `json:"role_grants"`

	// Overrides maps permission id to granted (true) or revoked (false)
	Overrides map[uuid.UUID]bool `json:"overrides"`
}

func newPermissionSet() *PermissionSet {
	return &PermissionSet{
		RoleGrants: make(map[uuid.UUID]bool),
		Overrides:  make(map[uuid.UUID]bool),
	}
}

// Allowed evaluates one permission. An override on exactly id always wins.
// Otherwise the role decides, its wildcard grant counting for every
// permission. An override on the wildcard only answers checks of the
// wildcard itself.
func (s *PermissionSet) Allowed(id, wildcardID uuid.UUID) bool {
	if granted, ok := s.Overrides[id]; ok {
		return granted
	}
	return s.RoleGrants[wildcardID] || s.RoleGrants[id]
}

// Status classifies id relative to what the role alone would give
func (s *PermissionSet) Status(id, wildcardID uuid.UUID) PermissionStatus {
	allowed := s.Allowed(id, wildcardID)
	roleDefault := s.RoleGrants[id] || s.RoleGrants[wildcardID]
	switch {
	case allowed && roleDefault:
		return StatusInherited
	case allowed:
		return StatusGranted
	case roleDefault:
		return StatusRevoked
	default:
		return StatusNone
	}
}
