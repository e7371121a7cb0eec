package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/tenantguard/pkg/storage"
)

// catalogNamespace derives stable permission and system role ids, so every
// deployment seeded from the same catalog agrees on them
var catalogNamespace = uuid.MustParse("6f1c1a52-3c8e-4f0e-9a37-2d5e9f0b7c41")

// PermissionID returns the catalog id of p
func PermissionID(p Permission) uuid.UUID {
	return uuid.NewSHA1(catalogNamespace, []byte("permission:"+p.String()))
}

// SystemRoleID returns the id of the system role with the given slug
func SystemRoleID(slug string) uuid.UUID {
	return uuid.NewSHA1(catalogNamespace, []byte("role:"+slug))
}

// Well-known system role slugs
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// SystemRole is the definition of a platform-wide role
type SystemRole struct {
	Slug        string
	Name        string
	Description string
	Permissions []Permission
}

func record(p Permission, description string) PermissionRecord {
	return PermissionRecord{
		ID:          PermissionID(p),
		Resource:    p.Resource,
		Action:      p.Action,
		Scope:       p.Scope,
		Description: description,
	}
}

// DefaultCatalog returns the built-in permission catalog
func DefaultCatalog() []PermissionRecord {
	var records []PermissionRecord
	for _, res := range []Resource{ResourceUser, ResourceRole, ResourceTeam, ResourceTicket, ResourceEvent, ResourceInventory} {
		for _, act := range []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete} {
			records = append(records, record(NewPermission(res, act), fmt.Sprintf("%s %ss", act, res)))
		}
	}
	records = append(records,
		record(NewPermission(ResourcePermission, ActionRead), "view the permission catalog and user overrides"),
		record(NewPermission(ResourcePermission, ActionAssign), "grant and revoke user overrides"),
		record(NewPermission(ResourceAudit, ActionRead), "read the audit log"),
		record(NewPermission(ResourceSettings, ActionRead), "view tenant settings"),
		record(NewPermission(ResourceSettings, ActionUpdate), "change tenant settings"),
		record(Permission{Resource: ResourceTicket, Action: ActionRead, Scope: ScopeOwn}, "read own tickets"),
		record(Permission{Resource: ResourceTicket, Action: ActionUpdate, Scope: ScopeOwn}, "update own tickets"),
		record(WildcardPermission, "every permission"),
	)
	return records
}

// SystemRoles returns the built-in roles every tenant can assign
func SystemRoles() []SystemRole {
	readAll := []Permission{
		NewPermission(ResourceUser, ActionRead),
		NewPermission(ResourceRole, ActionRead),
		NewPermission(ResourceTeam, ActionRead),
		NewPermission(ResourceTicket, ActionRead),
		NewPermission(ResourceEvent, ActionRead),
		NewPermission(ResourceInventory, ActionRead),
		NewPermission(ResourceSettings, ActionRead),
	}

	var admin []Permission
	for _, rec := range DefaultCatalog() {
		p := rec.Permission()
		if !p.IsWildcard() && p.Resource != ResourceSettings && p.Scope == ScopeTenant {
			admin = append(admin, p)
		}
	}
	admin = append(admin, NewPermission(ResourceSettings, ActionRead))

	member := append([]Permission{}, readAll...)
	member = append(member,
		NewPermission(ResourceTicket, ActionCreate),
		NewPermission(ResourceEvent, ActionCreate),
		Permission{Resource: ResourceTicket, Action: ActionRead, Scope: ScopeOwn},
		Permission{Resource: ResourceTicket, Action: ActionUpdate, Scope: ScopeOwn},
	)

	return []SystemRole{
		{Slug: RoleOwner, Name: "Owner", Description: "Full access to the tenant", Permissions: []Permission{WildcardPermission}},
		{Slug: RoleAdmin, Name: "Admin", Description: "Manage users, roles, teams and data", Permissions: admin},
		{Slug: RoleMember, Name: "Member", Description: "Work with tickets and events", Permissions: member},
		{Slug: RoleViewer, Name: "Viewer", Description: "Read-only access", Permissions: readAll},
	}
}

// SeedCatalog inserts missing catalog permissions and system roles, and
// resynchronises the permission sets of system roles. It is idempotent.
func SeedCatalog(ctx context.Context, store *storage.Store, catalog []PermissionRecord, roles []SystemRole) error {
	permissions, err := storage.NewGlobal[PermissionRecord](store)
	if err != nil {
		return err
	}
	roleRows := storage.NewUnscoped[Role](store)
	rolePerms := storage.NewUnscoped[RolePermission](store)

	known := make(map[Permission]uuid.UUID, len(catalog))
	for _, rec := range catalog {
		known[rec.Permission()] = rec.ID
	}

	return store.InTx(ctx, func(ctx context.Context, tx *storage.Tx) error {
		for i := range catalog {
			rec := catalog[i]
			_, err := permissions.In(tx).Get(ctx, storage.Where(storage.Eq("id", rec.ID)))
			if err == nil {
				continue
			}
			if !storage.IsNotFound(err) {
				return fmt.Errorf("failed to read permission %s: %w", rec.Permission(), err)
			}
			if err := permissions.In(tx).Insert(ctx, &rec); err != nil {
				return fmt.Errorf("failed to seed permission %s: %w", rec.Permission(), err)
			}
		}

		now := time.Now().UTC()
		for _, def := range roles {
			id := SystemRoleID(def.Slug)
			_, err := roleRows.In(tx).Get(ctx, storage.Where(storage.Eq("id", id)))
			switch {
			case storage.IsNotFound(err):
				role := &Role{
					ID:          id,
					Name:        def.Name,
					Slug:        def.Slug,
					Description: def.Description,
					IsSystem:    true,
					CreatedAt:   now,
					UpdatedAt:   now,
				}
				if err := roleRows.In(tx).Insert(ctx, role); err != nil {
					return fmt.Errorf("failed to seed role %s: %w", def.Slug, err)
				}
			case err != nil:
				return fmt.Errorf("failed to read role %s: %w", def.Slug, err)
			}

			if _, err := rolePerms.In(tx).Delete(ctx, storage.Where(storage.Eq("role_id", id))); err != nil {
				return fmt.Errorf("failed to reset role %s: %w", def.Slug, err)
			}
			for _, p := range def.Permissions {
				permID, ok := known[p]
				if !ok {
					return fmt.Errorf("role %s references %s which is not in the catalog", def.Slug, p)
				}
				if err := rolePerms.In(tx).Insert(ctx, &RolePermission{RoleID: id, PermissionID: permID}); err != nil {
					return fmt.Errorf("failed to seed role %s: %w", def.Slug, err)
				}
			}
		}
		return nil
	})
}
