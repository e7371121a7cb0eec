package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/storage"
)

type roleDeletionFixture struct {
	*fixture
	ctx   context.Context
	admin *User
	role  *Role
	users []*User
}

// newRoleDeletionFixture creates a custom role with three users and an admin
// acting on the tenant
func newRoleDeletionFixture(t *testing.T) *roleDeletionFixture {
	t.Helper()
	f := newFixture(t)
	ctx := f.in(f.tenantA)

	rf := &roleDeletionFixture{fixture: f}
	rf.admin = f.createUser(t, ctx, "admin@acme.test", systemRole(RoleAdmin))
	rf.role = f.createRole(t, ctx, "Night Shift", NewPermission(ResourceTicket, ActionUpdate))
	for _, email := range []string{"a@acme.test", "b@acme.test", "c@acme.test"} {
		rf.users = append(rf.users, f.createUser(t, ctx, email, &rf.role.ID))
	}
	rf.ctx = f.as(ctx, rf.admin)
	return rf
}

func (rf *roleDeletionFixture) roleExists(t *testing.T) bool {
	t.Helper()
	_, err := rf.services.Roles.GetRole(rf.ctx, rf.role.ID)
	if errors.Is(err, ErrRoleNotFound) {
		return false
	}
	require.NoError(t, err)
	return true
}

func (rf *roleDeletionFixture) assertUnchanged(t *testing.T) {
	t.Helper()
	assert.True(t, rf.roleExists(t))
	for _, u := range rf.users {
		got := rf.userRole(t, rf.ctx, u.ID)
		require.NotNil(t, got)
		assert.Equal(t, rf.role.ID, *got)
	}
}

func TestDeleteRoleSafely_RequiresReassignment(t *testing.T) {
	rf := newRoleDeletionFixture(t)

	err := rf.services.Reassigner.DeleteRoleSafely(rf.ctx, rf.role.ID, Reassignment{})
	require.ErrorIs(t, err, ErrReassignmentRequired)

	var rr *ReassignmentRequiredError
	require.True(t, errors.As(err, &rr))
	assert.Equal(t, KindRole, rr.Kind)
	assert.Equal(t, rf.role.ID, rr.EntityID)
	assert.ElementsMatch(t, []uuid.UUID{rf.users[0].ID, rf.users[1].ID, rf.users[2].ID}, rr.UserIDs)

	rf.assertUnchanged(t)
	assert.Equal(t, float64(1), testutil.ToFloat64(rf.metrics.ReassignmentsTotal.WithLabelValues(KindRole, observability.ResultBlocked)))
}

func TestDeleteRoleSafely_PartialMappingChangesNothing(t *testing.T) {
	rf := newRoleDeletionFixture(t)
	member := SystemRoleID(RoleMember)

	err := rf.services.Reassigner.DeleteRoleSafely(rf.ctx, rf.role.ID, Reassignment{
		PerUser: map[uuid.UUID]uuid.UUID{rf.users[0].ID: member, rf.users[1].ID: member},
	})
	var rr *ReassignmentRequiredError
	require.True(t, errors.As(err, &rr))
	assert.Equal(t, []uuid.UUID{rf.users[2].ID}, rr.UserIDs)
	rf.assertUnchanged(t)
}

func TestDeleteRoleSafely_Fallback(t *testing.T) {
	rf := newRoleDeletionFixture(t)
	resolver := rf.services.Resolver
	updateTicket := NewPermission(ResourceTicket, ActionUpdate)

	// warm the cache so the move has to invalidate it
	require.NoError(t, resolver.AssertPermission(rf.ctx, rf.users[0].ID, updateTicket))

	viewer := SystemRoleID(RoleViewer)
	require.NoError(t, rf.services.Reassigner.DeleteRoleSafely(rf.ctx, rf.role.ID, Reassignment{Fallback: &viewer}))

	assert.False(t, rf.roleExists(t))
	for _, u := range rf.users {
		got := rf.userRole(t, rf.ctx, u.ID)
		require.NotNil(t, got)
		assert.Equal(t, viewer, *got)
	}
	assert.True(t, IsPermissionDenied(resolver.AssertPermission(rf.ctx, rf.users[0].ID, updateTicket)))

	n, err := storage.NewScoped[RolePermission](rf.store).Count(rf.ctx, storage.Where(storage.Eq("role_id", rf.role.ID)))
	require.NoError(t, err)
	assert.Zero(t, n)

	events := rf.audit.ofType(audit.EventTypeRoleDelete)
	require.Len(t, events, 1)
	assert.Equal(t, 3, events[0].Metadata["reassigned_users"])
	assert.Equal(t, rf.admin.ID, *events[0].ActorID)
	assert.Equal(t, float64(3), testutil.ToFloat64(rf.metrics.ReassignedUsersTotal.WithLabelValues(KindRole)))
}

func TestDeleteRoleSafely_PerUserWinsOverFallback(t *testing.T) {
	rf := newRoleDeletionFixture(t)
	other := rf.createRole(t, rf.ctx, "Day Shift")
	member := SystemRoleID(RoleMember)

	require.NoError(t, rf.services.Reassigner.DeleteRoleSafely(rf.ctx, rf.role.ID, Reassignment{
		Fallback: &member,
		PerUser:  map[uuid.UUID]uuid.UUID{rf.users[1].ID: other.ID},
	}))

	assert.Equal(t, member, *rf.userRole(t, rf.ctx, rf.users[0].ID))
	assert.Equal(t, other.ID, *rf.userRole(t, rf.ctx, rf.users[1].ID))
	assert.Equal(t, member, *rf.userRole(t, rf.ctx, rf.users[2].ID))
}

func TestDeleteRoleSafely_InvalidTargets(t *testing.T) {
	rf := newRoleDeletionFixture(t)
	foreign := rf.createRole(t, rf.in(rf.tenantB), "Night Shift")
	missing := uuid.New()
	self := rf.role.ID
	member := SystemRoleID(RoleMember)

	tests := []struct {
		name string
		re   Reassignment
	}{
		{name: "self", re: Reassignment{Fallback: &self}},
		{name: "missing", re: Reassignment{Fallback: &missing}},
		{name: "other tenant", re: Reassignment{Fallback: &foreign.ID}},
		{name: "bad per-user target", re: Reassignment{Fallback: &member, PerUser: map[uuid.UUID]uuid.UUID{rf.users[0].ID: missing}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rf.services.Reassigner.DeleteRoleSafely(rf.ctx, rf.role.ID, tt.re)
			assert.ErrorIs(t, err, ErrInvalidReassignmentTarget)
			assert.Equal(t, 400, HTTPStatus(err))
			rf.assertUnchanged(t)
		})
	}
}

func TestDeleteRoleSafely_SystemRole(t *testing.T) {
	rf := newRoleDeletionFixture(t)
	owner := rf.createUser(t, rf.in(rf.tenantA), "owner@acme.test", systemRole(RoleOwner))
	viewer := rf.createUser(t, rf.in(rf.tenantA), "viewer@acme.test", systemRole(RoleViewer))
	fallback := SystemRoleID(RoleMember)

	for _, actor := range []*User{owner, viewer} {
		ctx := rf.as(rf.in(rf.tenantA), actor)
		err := rf.services.Reassigner.DeleteRoleSafely(ctx, SystemRoleID(RoleAdmin), Reassignment{Fallback: &fallback})
		assert.ErrorIs(t, err, ErrSystemRoleImmutable, actor.Email)
	}

	// nobody was moved off the admin role
	assert.Equal(t, SystemRoleID(RoleAdmin), *rf.userRole(t, rf.ctx, rf.admin.ID))
	_, err := rf.services.Roles.GetRole(rf.ctx, SystemRoleID(RoleAdmin))
	assert.NoError(t, err)
	assert.Empty(t, rf.audit.ofType(audit.EventTypeAccessDenied), "the system role check runs before authorization")
}

func TestDeleteRoleSafely_Authorization(t *testing.T) {
	rf := newRoleDeletionFixture(t)
	member := SystemRoleID(RoleMember)

	err := rf.services.Reassigner.DeleteRoleSafely(rf.in(rf.tenantA), rf.role.ID, Reassignment{Fallback: &member})
	assert.True(t, IsPermissionDenied(err), "no principal")

	viewer := rf.createUser(t, rf.in(rf.tenantA), "viewer@acme.test", systemRole(RoleViewer))
	err = rf.services.Reassigner.DeleteRoleSafely(rf.as(rf.in(rf.tenantA), viewer), rf.role.ID, Reassignment{Fallback: &member})
	assert.True(t, IsPermissionDenied(err))

	rf.assertUnchanged(t)
}

func TestDeleteRoleSafely_NoUsers(t *testing.T) {
	rf := newRoleDeletionFixture(t)
	empty := rf.createRole(t, rf.ctx, "Unused", NewPermission(ResourceEvent, ActionRead))

	require.NoError(t, rf.services.Reassigner.DeleteRoleSafely(rf.ctx, empty.ID, Reassignment{}))
	_, err := rf.services.Roles.GetRole(rf.ctx, empty.ID)
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestDeleteRoleSafely_DeletedUsersAreDetached(t *testing.T) {
	rf := newRoleDeletionFixture(t)
	require.NoError(t, rf.services.Users.SoftDeleteUser(rf.ctx, rf.users[2].ID))
	member := SystemRoleID(RoleMember)

	err := rf.services.Reassigner.DeleteRoleSafely(rf.ctx, rf.role.ID, Reassignment{
		PerUser: map[uuid.UUID]uuid.UUID{rf.users[0].ID: member, rf.users[1].ID: member},
	})
	require.NoError(t, err, "deleted users need no target")
	assert.Nil(t, rf.userRole(t, rf.ctx, rf.users[2].ID))
}

func TestDeleteRoleSafely_OtherTenantsRoleIsNotFound(t *testing.T) {
	rf := newRoleDeletionFixture(t)
	other := rf.createUser(t, rf.in(rf.tenantB), "owner@globex.test", systemRole(RoleOwner))

	err := rf.services.Reassigner.DeleteRoleSafely(rf.as(rf.in(rf.tenantB), other), rf.role.ID, Reassignment{})
	assert.ErrorIs(t, err, ErrRoleNotFound)
	rf.assertUnchanged(t)
}

func TestDeleteRoleSafely_CancelledContextRollsBack(t *testing.T) {
	rf := newRoleDeletionFixture(t)
	member := SystemRoleID(RoleMember)

	ctx, cancel := context.WithCancel(rf.ctx)
	cancel()
	err := rf.services.Reassigner.DeleteRoleSafely(ctx, rf.role.ID, Reassignment{Fallback: &member})
	require.Error(t, err)
	rf.assertUnchanged(t)
}

type teamDeletionFixture struct {
	*fixture
	ctx     context.Context
	team    *Team
	target  *Team
	members []*User
}

func newTeamDeletionFixture(t *testing.T) *teamDeletionFixture {
	t.Helper()
	f := newFixture(t)
	ctx := f.in(f.tenantA)
	admin := f.createUser(t, ctx, "admin@acme.test", systemRole(RoleAdmin))

	tf := &teamDeletionFixture{fixture: f, ctx: f.as(ctx, admin)}
	var err error
	tf.team, err = f.services.Teams.CreateTeam(ctx, CreateTeamRequest{Name: "Blue"})
	require.NoError(t, err)
	tf.target, err = f.services.Teams.CreateTeam(ctx, CreateTeamRequest{Name: "Green"})
	require.NoError(t, err)

	for _, email := range []string{"a@acme.test", "b@acme.test"} {
		u := f.createUser(t, ctx, email, systemRole(RoleMember))
		require.NoError(t, f.services.Teams.AddMember(ctx, tf.team.ID, u.ID))
		tf.members = append(tf.members, u)
	}
	// b already belongs to the target team
	require.NoError(t, f.services.Teams.AddMember(ctx, tf.target.ID, tf.members[1].ID))
	return tf
}

func memberIDs(t *testing.T, ts *TeamService, ctx context.Context, teamID uuid.UUID) []uuid.UUID {
	t.Helper()
	members, err := ts.ListMembers(ctx, teamID)
	require.NoError(t, err)
	ids := make([]uuid.UUID, len(members))
	for i, m := range members {
		ids[i] = m.UserID
	}
	return ids
}

func TestDeleteTeamSafely(t *testing.T) {
	tf := newTeamDeletionFixture(t)

	err := tf.services.Reassigner.DeleteTeamSafely(tf.ctx, tf.team.ID, Reassignment{})
	var rr *ReassignmentRequiredError
	require.True(t, errors.As(err, &rr))
	assert.Equal(t, KindTeam, rr.Kind)
	assert.Len(t, rr.UserIDs, 2)
	assert.Len(t, memberIDs(t, tf.services.Teams, tf.ctx, tf.team.ID), 2)

	require.NoError(t, tf.services.Reassigner.DeleteTeamSafely(tf.ctx, tf.team.ID, Reassignment{Fallback: &tf.target.ID}))

	_, err = tf.services.Teams.GetTeam(tf.ctx, tf.team.ID)
	assert.ErrorIs(t, err, ErrTeamNotFound)
	assert.ElementsMatch(t, []uuid.UUID{tf.members[0].ID, tf.members[1].ID}, memberIDs(t, tf.services.Teams, tf.ctx, tf.target.ID))
	assert.Len(t, tf.audit.ofType(audit.EventTypeTeamDelete), 1)
}

func TestDeleteTeamSafely_InvalidTarget(t *testing.T) {
	tf := newTeamDeletionFixture(t)
	foreign, err := tf.services.Teams.CreateTeam(tf.in(tf.tenantB), CreateTeamRequest{Name: "Red"})
	require.NoError(t, err)

	for _, target := range []uuid.UUID{tf.team.ID, foreign.ID, uuid.New()} {
		target := target
		err := tf.services.Reassigner.DeleteTeamSafely(tf.ctx, tf.team.ID, Reassignment{Fallback: &target})
		assert.ErrorIs(t, err, ErrInvalidReassignmentTarget)
	}
	assert.Len(t, memberIDs(t, tf.services.Teams, tf.ctx, tf.team.ID), 2)
}

func TestDeleteTeamSafely_RequiresPermission(t *testing.T) {
	tf := newTeamDeletionFixture(t)
	ctx := tf.as(tf.in(tf.tenantA), tf.members[0])

	err := tf.services.Reassigner.DeleteTeamSafely(ctx, tf.team.ID, Reassignment{Fallback: &tf.target.ID})
	assert.True(t, IsPermissionDenied(err))
	assert.Len(t, memberIDs(t, tf.services.Teams, tf.ctx, tf.team.ID), 2)
}
