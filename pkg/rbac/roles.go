package rbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/storage"
	"github.com/platinummonkey/tenantguard/pkg/tenants"
)

// CreateRoleRequest is the input of RoleService.CreateRole
type CreateRoleRequest struct {
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	PermissionIDs []uuid.UUID `json:"permission_ids"`
}

// UpdateRoleRequest changes a role's display fields. Nil fields are left alone.
type UpdateRoleRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// RoleWithPermissions is a role and the ids of the permissions it holds
type RoleWithPermissions struct {
	*Role
	PermissionIDs []uuid.UUID `json:"permission_ids"`
}

// RoleService manages the roles of the active tenant
type RoleService struct {
	store     *storage.Store
	roles     *storage.Scoped[Role, *Role]
	rolePerms *storage.Scoped[RolePermission, *RolePermission]
	users     *storage.Scoped[User, *User]
	resolver  *Resolver
	opts      options
}

// NewRoleService creates a role service. resolver is used to validate
// permission ids and to invalidate cached permissions after edits.
func NewRoleService(store *storage.Store, resolver *Resolver, opts ...Option) *RoleService {
	return &RoleService{
		store:     store,
		roles:     storage.NewScoped[Role](store),
		rolePerms: storage.NewScoped[RolePermission](store),
		users:     storage.NewScoped[User](store),
		resolver:  resolver,
		opts:      buildOptions(opts),
	}
}

// CreateRole creates a tenant role. The slug is derived from the name and must
// not collide with another role of the tenant or a system role.
func (s *RoleService) CreateRole(ctx context.Context, req CreateRoleRequest) (*Role, error) {
	name := strings.TrimSpace(req.Name)
	slug := tenants.GenerateSlug(name)
	if name == "" || slug == "" {
		return nil, &ValidationError{Field: "name", Message: "role name is required"}
	}
	if err := s.resolver.Registry().Validate(req.PermissionIDs...); err != nil {
		return nil, err
	}

	n, err := s.roles.Count(ctx, storage.Where(storage.Eq("slug", slug)))
	if err != nil {
		return nil, fmt.Errorf("failed to check role slug: %w", err)
	}
	if n > 0 {
		return nil, fmt.Errorf("%w: %s", ErrSlugTaken, slug)
	}

	now := s.opts.now()
	role := &Role{
		ID:          uuid.New(),
		Name:        name,
		Slug:        slug,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx *storage.Tx) error {
		if err := s.roles.In(tx).Insert(ctx, role); err != nil {
			if storage.IsUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrSlugTaken, slug)
			}
			return fmt.Errorf("failed to create role: %w", err)
		}
		return s.insertPermissions(ctx, tx, role.ID, req.PermissionIDs)
	})
	if err != nil {
		return nil, err
	}

	event := audit.NewEvent(ctx, audit.EventTypeRoleCreate, audit.ResourceTypeRole, role.ID.String())
	event.Metadata["slug"] = slug
	event.Metadata["permissions"] = len(req.PermissionIDs)
	audit.Record(ctx, s.opts.audit, event)
	return role, nil
}

// GetRole returns a role visible to the active tenant, system roles included
func (s *RoleService) GetRole(ctx context.Context, id uuid.UUID) (*RoleWithPermissions, error) {
	role, err := s.roles.Get(ctx, storage.Where(storage.Eq("id", id)))
	if storage.IsNotFound(err) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	grants, err := s.rolePerms.Find(ctx, storage.Where(storage.Eq("role_id", id)).Order("permission_id"))
	if err != nil {
		return nil, fmt.Errorf("failed to get role permissions: %w", err)
	}
	ids := make([]uuid.UUID, len(grants))
	for i, g := range grants {
		ids[i] = g.PermissionID
	}
	return &RoleWithPermissions{Role: role, PermissionIDs: ids}, nil
}

// ListRoles returns the tenant's roles and the system roles, by slug
func (s *RoleService) ListRoles(ctx context.Context) ([]*Role, error) {
	roles, err := s.roles.Find(ctx, storage.Where().Order("slug"))
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return roles, nil
}

// lookupMutable loads a role for modification. System roles are rejected
// before anything else happens.
func (s *RoleService) lookupMutable(ctx context.Context, id uuid.UUID) (*Role, error) {
	role, err := s.roles.Get(ctx, storage.Where(storage.Eq("id", id)))
	if storage.IsNotFound(err) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	if role.IsSystem || role.TenantID == nil {
		return nil, ErrSystemRoleImmutable
	}
	return role, nil
}

// UpdateRole changes a tenant role's name or description
func (s *RoleService) UpdateRole(ctx context.Context, id uuid.UUID, req UpdateRoleRequest) (*Role, error) {
	role, err := s.lookupMutable(ctx, id)
	if err != nil {
		return nil, err
	}

	set := []storage.Assignment{storage.Assign("updated_at", s.opts.now())}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		slug := tenants.GenerateSlug(name)
		if name == "" || slug == "" {
			return nil, &ValidationError{Field: "name", Message: "role name is required"}
		}
		if slug != role.Slug {
			n, err := s.roles.Count(ctx, storage.Where(storage.Eq("slug", slug)))
			if err != nil {
				return nil, fmt.Errorf("failed to check role slug: %w", err)
			}
			if n > 0 {
				return nil, fmt.Errorf("%w: %s", ErrSlugTaken, slug)
			}
		}
		set = append(set, storage.Assign("name", name), storage.Assign("slug", slug))
	}
	if req.Description != nil {
		set = append(set, storage.Assign("description", *req.Description))
	}

	if _, err := s.roles.Update(ctx, storage.Where(storage.Eq("id", id)), set...); err != nil {
		if storage.IsUniqueViolation(err) {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	audit.Record(ctx, s.opts.audit, audit.NewEvent(ctx, audit.EventTypeRoleUpdate, audit.ResourceTypeRole, id.String()))

	updated, err := s.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	return updated.Role, nil
}

// SetRolePermissions replaces a tenant role's permission set atomically and
// invalidates the cached permissions of every user holding the role
func (s *RoleService) SetRolePermissions(ctx context.Context, id uuid.UUID, permissionIDs []uuid.UUID) error {
	if _, err := s.lookupMutable(ctx, id); err != nil {
		return err
	}
	if err := s.resolver.Registry().Validate(permissionIDs...); err != nil {
		return err
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx *storage.Tx) error {
		if _, err := s.rolePerms.In(tx).Delete(ctx, storage.Where(storage.Eq("role_id", id))); err != nil {
			return fmt.Errorf("failed to clear role permissions: %w", err)
		}
		if err := s.insertPermissions(ctx, tx, id, permissionIDs); err != nil {
			return err
		}
		_, err := s.roles.In(tx).Update(ctx, storage.Where(storage.Eq("id", id)), storage.Assign("updated_at", s.opts.now()))
		return err
	})
	if err != nil {
		return err
	}

	if err := s.resolver.InvalidateRole(ctx, id); err != nil {
		return err
	}

	event := audit.NewEvent(ctx, audit.EventTypeRolePermissions, audit.ResourceTypeRole, id.String())
	event.Metadata["permissions"] = len(permissionIDs)
	audit.Record(ctx, s.opts.audit, event)
	return nil
}

func (s *RoleService) insertPermissions(ctx context.Context, tx *storage.Tx, roleID uuid.UUID, ids []uuid.UUID) error {
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, pid := range ids {
		if seen[pid] {
			continue
		}
		seen[pid] = true
		if err := s.rolePerms.In(tx).Insert(ctx, &RolePermission{RoleID: roleID, PermissionID: pid}); err != nil {
			return fmt.Errorf("failed to assign permission %s: %w", pid, err)
		}
	}
	return nil
}

// AssignUserRole sets or, with a nil roleID, clears a user's role. Existing
// overrides are kept and keep applying under the new role.
func (s *RoleService) AssignUserRole(ctx context.Context, userID uuid.UUID, roleID *uuid.UUID) error {
	if roleID != nil {
		n, err := s.roles.Count(ctx, storage.Where(storage.Eq("id", *roleID)))
		if err != nil {
			return fmt.Errorf("failed to check role: %w", err)
		}
		if n == 0 {
			return ErrRoleNotFound
		}
	}

	n, err := s.users.Update(ctx,
		storage.Where(storage.Eq("id", userID), storage.IsNull("deleted_at")),
		storage.Assign("role_id", roleID),
	)
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}

	if err := s.resolver.InvalidateUser(ctx, userID); err != nil {
		return err
	}

	event := audit.NewEvent(ctx, audit.EventTypeUserRoleChange, audit.ResourceTypeUser, userID.String())
	if roleID != nil {
		event.Metadata["role_id"] = roleID.String()
	}
	audit.Record(ctx, s.opts.audit, event)
	return nil
}
