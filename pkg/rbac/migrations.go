package rbac

import (
	"context"
	"fmt"

	"github.com/platinummonkey/tenantguard/pkg/storage"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	Statements  []string
}

// GetMigrations returns all RBAC migrations. The DDL is valid on PostgreSQL
// and SQLite and expects the tenants table to exist.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create permissions table",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS permissions (
					id UUID PRIMARY KEY,
					resource TEXT NOT NULL,
					action TEXT NOT NULL,
					scope TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					UNIQUE(resource, action, scope)
				)`,
			},
		},
		{
			Version:     2,
			Description: "Create roles and role_permissions tables",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS roles (
					id UUID PRIMARY KEY,
					tenant_id UUID REFERENCES tenants(id) ON DELETE CASCADE,
					name TEXT NOT NULL,
					slug TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					is_system BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					UNIQUE(tenant_id, slug)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_roles_tenant_id ON roles(tenant_id)`,
				`CREATE TABLE IF NOT EXISTS role_permissions (
					tenant_id UUID REFERENCES tenants(id) ON DELETE CASCADE,
					role_id UUID NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_id UUID NOT NULL REFERENCES permissions(id),
					PRIMARY KEY (role_id, permission_id)
				)`,
			},
		},
		{
			Version:     3,
			Description: "Create users and user_permission_overrides tables",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS users (
					id UUID PRIMARY KEY,
					tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					email TEXT NOT NULL,
					full_name TEXT NOT NULL DEFAULT '',
					role_id UUID REFERENCES roles(id),
					created_at TIMESTAMP NOT NULL,
					deleted_at TIMESTAMP,
					UNIQUE(tenant_id, email)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_users_role_id ON users(tenant_id, role_id)`,
				`CREATE TABLE IF NOT EXISTS user_permission_overrides (
					tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					permission_id UUID NOT NULL REFERENCES permissions(id),
					granted BOOLEAN NOT NULL,
					created_at TIMESTAMP NOT NULL,
					PRIMARY KEY (user_id, permission_id)
				)`,
			},
		},
		{
			Version:     4,
			Description: "Create teams and team_members tables",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS teams (
					id UUID PRIMARY KEY,
					tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					name TEXT NOT NULL,
					slug TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL,
					UNIQUE(tenant_id, slug)
				)`,
				`CREATE TABLE IF NOT EXISTS team_members (
					tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					team_id UUID NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					added_at TIMESTAMP NOT NULL,
					PRIMARY KEY (team_id, user_id)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_team_members_user_id ON team_members(tenant_id, user_id)`,
			},
		},
	}
}

// Schema returns every statement of every migration, in order
func Schema() []string {
	var stmts []string
	for _, m := range GetMigrations() {
		stmts = append(stmts, m.Statements...)
	}
	return stmts
}

// Migrate applies all RBAC migrations. Every statement is idempotent.
func Migrate(ctx context.Context, store *storage.Store) error {
	for _, m := range GetMigrations() {
		if err := store.Exec(ctx, m.Statements...); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
	}
	return nil
}

// TenantScopedTables lists the specs of every tenant-owned model. Each of them
// is only ever read or written through a storage.Scoped accessor outside of
// seeding.
func TenantScopedTables() []storage.TableSpec {
	return []storage.TableSpec{
		(*Role)(nil).Spec(),
		(*RolePermission)(nil).Spec(),
		(*User)(nil).Spec(),
		(*Override)(nil).Spec(),
		(*Team)(nil).Spec(),
		(*TeamMember)(nil).Spec(),
	}
}

// GlobalTables lists the specs of models that belong to no tenant
func GlobalTables() []storage.TableSpec {
	return []storage.TableSpec{(*PermissionRecord)(nil).Spec()}
}
