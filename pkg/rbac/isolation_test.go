package rbac

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/tenantguard/pkg/storage"
	"github.com/platinummonkey/tenantguard/pkg/tenancy"
)

func TestIsolation_InterleavedTenants(t *testing.T) {
	f := newFixture(t)
	const perTenant = 5

	var g errgroup.Group
	for _, tenantID := range []uuid.UUID{f.tenantA, f.tenantB} {
		tenantID := tenantID
		g.Go(func() error {
			return tenancy.Run(context.Background(), tenantID, func(ctx context.Context) error {
				for i := 0; i < perTenant; i++ {
					user, err := f.services.Users.CreateUser(ctx, CreateUserRequest{
						Email:  fmt.Sprintf("user%d@shared.test", i),
						RoleID: systemRole(RoleViewer),
					})
					if err != nil {
						return err
					}
					if err := f.services.Resolver.SetUserOverrides(ctx, user.ID, []OverrideInput{
						{PermissionID: PermissionID(NewPermission(ResourceTicket, ActionRead)), Granted: false},
					}); err != nil {
						return err
					}
					// every read in the chain must still see its own tenant
					if got, err := tenancy.Require(ctx); err != nil || got != tenantID {
						return fmt.Errorf("tenant drifted to %s: %v", got, err)
					}
				}
				return nil
			})
		})
	}
	require.NoError(t, g.Wait())

	for _, tenantID := range []uuid.UUID{f.tenantA, f.tenantB} {
		ctx := f.in(tenantID)
		users, err := f.services.Users.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, perTenant)
		for _, u := range users {
			assert.Equal(t, tenantID, u.TenantID)
			overrides, err := f.services.Resolver.Overrides(ctx, u.ID)
			require.NoError(t, err)
			require.Len(t, overrides, 1)
			assert.Equal(t, tenantID, overrides[0].TenantID)
		}
	}
}

func TestIsolation_CrossTenantAccess(t *testing.T) {
	f := newFixture(t)
	ctxA, ctxB := f.in(f.tenantA), f.in(f.tenantB)
	victim := f.createUser(t, ctxB, "victim@globex.test", systemRole(RoleMember))
	users := storage.NewScoped[User](f.store)

	_, err := f.services.Users.GetUser(ctxA, victim.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)

	n, err := users.Update(ctxA, storage.Where(storage.Eq("id", victim.ID)), storage.Assign("full_name", "pwned"))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = users.Delete(ctxA, storage.Where(storage.Eq("id", victim.ID)))
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = users.Update(ctxA, storage.Where(storage.Eq("id", victim.ID)), storage.Assign("tenant_id", f.tenantA))
	assert.ErrorIs(t, err, storage.ErrTenantColumnImmutable)

	// a caller supplied tenant id is replaced by the active tenant
	injected := &User{ID: uuid.New(), TenantID: f.tenantB, Email: "intruder@acme.test"}
	require.NoError(t, users.Insert(ctxA, injected))
	_, err = users.Get(ctxB, storage.Where(storage.Eq("id", injected.ID)))
	assert.True(t, storage.IsNotFound(err))
	got, err := users.Get(ctxA, storage.Where(storage.Eq("id", injected.ID)))
	require.NoError(t, err)
	assert.Equal(t, f.tenantA, got.TenantID)

	err = f.services.Resolver.SetUserOverrides(ctxA, victim.ID, []OverrideInput{
		{PermissionID: PermissionID(WildcardPermission), Granted: true},
	})
	assert.ErrorIs(t, err, ErrUserNotFound)

	still, err := users.Get(ctxB, storage.Where(storage.Eq("id", victim.ID)))
	require.NoError(t, err)
	assert.Equal(t, "victim@globex.test", still.FullName)
	overrides, err := f.services.Resolver.Overrides(ctxB, victim.ID)
	require.NoError(t, err)
	assert.Empty(t, overrides)
}

func TestIsolation_MissingTenantContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	existing := f.createUser(t, f.in(f.tenantA), "sam@acme.test", systemRole(RoleMember))

	_, err := f.services.Users.CreateUser(ctx, CreateUserRequest{Email: "kim@acme.test"})
	assert.ErrorIs(t, err, tenancy.ErrMissingTenantContext)

	_, err = f.services.Users.ListUsers(ctx)
	assert.ErrorIs(t, err, tenancy.ErrMissingTenantContext)

	_, err = f.services.Roles.CreateRole(ctx, CreateRoleRequest{Name: "Support"})
	assert.ErrorIs(t, err, tenancy.ErrMissingTenantContext)

	err = f.services.Users.SoftDeleteUser(ctx, existing.ID)
	assert.ErrorIs(t, err, tenancy.ErrMissingTenantContext)

	_, err = f.services.Resolver.Allowed(ctx, existing.ID, NewPermission(ResourceTicket, ActionRead))
	assert.ErrorIs(t, err, tenancy.ErrMissingTenantContext)

	err = f.services.Reassigner.DeleteRoleSafely(ctx, SystemRoleID(RoleMember), Reassignment{})
	assert.ErrorIs(t, err, tenancy.ErrMissingTenantContext)

	// nothing was written without a tenant
	list, err := f.services.Users.ListUsers(f.in(f.tenantA))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].DeletedAt)
	roles, err := f.services.Roles.ListRoles(f.in(f.tenantA))
	require.NoError(t, err)
	assert.Len(t, roles, len(SystemRoles()))
}
