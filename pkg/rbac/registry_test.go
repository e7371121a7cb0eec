package rbac

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/storage"
	"github.com/platinummonkey/tenantguard/pkg/storage/storagetest"
	"github.com/platinummonkey/tenantguard/pkg/tenants"
)

func TestParsePermission(t *testing.T) {
	tests := []struct {
		in      string
		want    Permission
		wantErr bool
	}{
		{in: "ticket:read", want: NewPermission(ResourceTicket, ActionRead)},
		{in: "ticket:update:own", want: Permission{Resource: ResourceTicket, Action: ActionUpdate, Scope: ScopeOwn}},
		{in: "*:*:*", want: WildcardPermission},
		{in: "ticket", wantErr: true},
		{in: "ticket::tenant", wantErr: true},
		{in: "a:b:c:d", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePermission(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) Permission {
	t.Helper()
	p, err := ParsePermission(s)
	require.NoError(t, err)
	return p
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry(DefaultCatalog())

	list := registry.List()
	assert.Len(t, list, len(DefaultCatalog())-1)
	assert.Equal(t, len(list), registry.Len())
	assert.Len(t, registry.All(), len(DefaultCatalog()))
	for _, rec := range list {
		assert.False(t, rec.Permission().IsWildcard())
	}
	assert.True(t, sort.SliceIsSorted(list, func(i, j int) bool {
		return list[i].Permission().String() < list[j].Permission().String()
	}))

	w, ok := registry.Wildcard()
	require.True(t, ok)
	assert.Equal(t, PermissionID(WildcardPermission), w.ID)

	rec, ok := registry.ByTuple(NewPermission(ResourceTeam, ActionDelete))
	require.True(t, ok)
	byID, ok := registry.ByID(rec.ID)
	require.True(t, ok)
	assert.Equal(t, rec, byID)

	_, ok = registry.ByTuple(NewPermission("spaceship", ActionRead))
	assert.False(t, ok)

	// the returned slice is a copy
	list[0].Description = "changed"
	assert.NotEqual(t, "changed", registry.List()[0].Description)
}

func TestRegistry_Validate(t *testing.T) {
	registry := NewRegistry(DefaultCatalog())
	known := PermissionID(NewPermission(ResourceUser, ActionRead))
	unknownA, unknownB := uuid.New(), uuid.New()

	assert.NoError(t, registry.Validate())
	assert.NoError(t, registry.Validate(known, PermissionID(WildcardPermission)))

	err := registry.Validate(unknownA, known, unknownB)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []uuid.UUID{unknownA, unknownB}, verr.UnknownIDs)
	assert.Contains(t, err.Error(), unknownA.String())
}

func TestPermissionID_Stable(t *testing.T) {
	p := NewPermission(ResourceInventory, ActionUpdate)
	assert.Equal(t, PermissionID(p), PermissionID(p))
	assert.NotEqual(t, PermissionID(p), PermissionID(NewPermission(ResourceInventory, ActionRead)))
	assert.NotEqual(t, SystemRoleID(RoleOwner), SystemRoleID(RoleAdmin))
}

func TestSystemRoles(t *testing.T) {
	registry := NewRegistry(DefaultCatalog())
	for _, role := range SystemRoles() {
		assert.NotEmpty(t, role.Permissions, role.Slug)
		for _, p := range role.Permissions {
			_, ok := registry.ByTuple(p)
			assert.True(t, ok, "%s references %s", role.Slug, p)
		}
	}
}

func TestSeedCatalog_Idempotent(t *testing.T) {
	ddl := append(append([]string{}, tenants.Schema...), Schema()...)
	store := storagetest.NewSQLiteStore(t, ddl...)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, SeedCatalog(ctx, store, DefaultCatalog(), SystemRoles()))
	}

	registry, err := LoadRegistry(ctx, store)
	require.NoError(t, err)
	assert.Len(t, registry.All(), len(DefaultCatalog()))

	roles, err := storage.NewUnscoped[Role](store).Find(ctx, storage.Where())
	require.NoError(t, err)
	require.Len(t, roles, len(SystemRoles()))
	for _, r := range roles {
		assert.True(t, r.IsSystem)
		assert.Nil(t, r.TenantID)
	}

	grants, err := storage.NewUnscoped[RolePermission](store).Count(ctx,
		storage.Where(storage.Eq("role_id", SystemRoleID(RoleOwner))))
	require.NoError(t, err)
	assert.Equal(t, int64(1), grants)
}

func TestSeedCatalog_RejectsUnknownPermission(t *testing.T) {
	ddl := append(append([]string{}, tenants.Schema...), Schema()...)
	store := storagetest.NewSQLiteStore(t, ddl...)

	roles := []SystemRole{{Slug: "pilot", Name: "Pilot", Permissions: []Permission{NewPermission("spaceship", ActionUpdate)}}}
	err := SeedCatalog(context.Background(), store, DefaultCatalog(), roles)
	require.Error(t, err)

	registry, err := LoadRegistry(context.Background(), store)
	require.NoError(t, err)
	assert.Empty(t, registry.All(), "a failed seed writes nothing")
}

func TestTables(t *testing.T) {
	for _, spec := range TenantScopedTables() {
		assert.True(t, spec.IsTenantScoped(), spec.Name)
		assert.True(t, spec.HasColumn(spec.TenantColumn), spec.Name)
	}
	for _, spec := range GlobalTables() {
		assert.False(t, spec.IsTenantScoped(), spec.Name)
	}

	store := storage.New(nil, storage.SQLite)
	_, err := storage.NewGlobal[User](store)
	assert.ErrorIs(t, err, storage.ErrNotGlobal)
	_, err = storage.NewGlobal[PermissionRecord](store)
	assert.NoError(t, err)
}

func TestGetMigrations_Ordered(t *testing.T) {
	migrations := GetMigrations()
	for i := 1; i < len(migrations); i++ {
		assert.Greater(t, migrations[i].Version, migrations[i-1].Version)
	}
	assert.NotEmpty(t, Schema())
}
