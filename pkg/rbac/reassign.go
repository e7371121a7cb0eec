package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/storage"
)

// Entity kinds reported by ReassignmentRequiredError and metrics
const (
	KindRole = "role"
	KindTeam = "team"
)

// Reassignment says where the users of a deleted role or team go. A PerUser
// entry takes precedence over Fallback for that user.
type Reassignment struct {
	Fallback *uuid.UUID              `json:"fallback,omitempty"`
	PerUser  map[uuid.UUID]uuid.UUID `json:"per_user,omitempty"`
}

func (r Reassignment) target(userID uuid.UUID) (uuid.UUID, bool) {
	if t, ok := r.PerUser[userID]; ok {
		return t, true
	}
	if r.Fallback != nil {
		return *r.Fallback, true
	}
	return uuid.Nil, false
}

// targets returns every target named by r, without duplicates
func (r Reassignment) targets() []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	add := func(id uuid.UUID) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	if r.Fallback != nil {
		add(*r.Fallback)
	}
	for _, t := range r.PerUser {
		add(t)
	}
	return out
}

// Reassigner deletes roles and teams without leaving users pointing at them
type Reassigner struct {
	store     *storage.Store
	roles     *storage.Scoped[Role, *Role]
	rolePerms *storage.Scoped[RolePermission, *RolePermission]
	users     *storage.Scoped[User, *User]
	teams     *storage.Scoped[Team, *Team]
	members   *storage.Scoped[TeamMember, *TeamMember]
	resolver  *Resolver
	opts      options
}

// NewReassigner creates a reassigner. resolver authorizes the acting principal
// and has its cache invalidated for every moved user.
func NewReassigner(store *storage.Store, resolver *Resolver, opts ...Option) *Reassigner {
	return &Reassigner{
		store:     store,
		roles:     storage.NewScoped[Role](store),
		rolePerms: storage.NewScoped[RolePermission](store),
		users:     storage.NewScoped[User](store),
		teams:     storage.NewScoped[Team](store),
		members:   storage.NewScoped[TeamMember](store),
		resolver:  resolver,
		opts:      buildOptions(opts),
	}
}

// authorize requires the principal on ctx to hold p
func (m *Reassigner) authorize(ctx context.Context, p Permission) error {
	principal := auth.PrincipalFromContext(ctx)
	if principal == nil {
		return &PermissionDeniedError{Permission: p}
	}
	return m.resolver.AssertPermission(ctx, principal.UserID, p)
}

func (m *Reassigner) record(kind string, err error, moved int) {
	result := observability.ResultOK
	switch {
	case err == nil:
	case errors.Is(err, ErrReassignmentRequired), errors.Is(err, ErrInvalidReassignmentTarget),
		errors.Is(err, ErrSystemRoleImmutable):
		result = observability.ResultBlocked
	case errors.Is(err, ErrPermissionDenied):
		result = observability.ResultDenied
	default:
		result = observability.ResultError
	}
	m.opts.metrics.Reassignment(kind, result, moved)
}

// DeleteRoleSafely deletes a tenant role after moving its users to the roles
// named by re. Either every user is moved and the role is gone, or nothing
// changes. System roles are refused before the caller's permissions are
// consulted.
func (m *Reassigner) DeleteRoleSafely(ctx context.Context, roleID uuid.UUID, re Reassignment) (err error) {
	ctx, span := observability.StartSpan(ctx, "rbac.DeleteRoleSafely", attribute.String("role.id", roleID.String()))
	var moved []uuid.UUID
	defer func() {
		span.SetAttributes(attribute.Int("reassigned.users", len(moved)))
		observability.EndSpan(span, err)
		m.record(KindRole, err, len(moved))
	}()

	role, err := m.roles.Get(ctx, storage.Where(storage.Eq("id", roleID)))
	if storage.IsNotFound(err) {
		return ErrRoleNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get role: %w", err)
	}
	if role.IsSystem || role.TenantID == nil {
		return ErrSystemRoleImmutable
	}
	if err := m.authorize(ctx, NewPermission(ResourceRole, ActionDelete)); err != nil {
		return err
	}

	err = m.store.InTx(ctx, func(ctx context.Context, tx *storage.Tx) error {
		roles := m.roles.In(tx)
		users := m.users.In(tx)

		for _, target := range re.targets() {
			if target == roleID {
				return fmt.Errorf("%w: cannot reassign to the role being deleted", ErrInvalidReassignmentTarget)
			}
			n, err := roles.Count(ctx, storage.Where(storage.Eq("id", target)))
			if err != nil {
				return fmt.Errorf("failed to check target role: %w", err)
			}
			if n == 0 {
				return fmt.Errorf("%w: role %s does not exist", ErrInvalidReassignmentTarget, target)
			}
		}

		assigned, err := users.Find(ctx, storage.Where(storage.Eq("role_id", roleID), storage.IsNull("deleted_at")).Order("id"))
		if err != nil {
			return fmt.Errorf("failed to list role users: %w", err)
		}

		plan, unresolved := planMoves(assigned, func(u *User) uuid.UUID { return u.ID }, re)
		if len(unresolved) > 0 {
			return &ReassignmentRequiredError{Kind: KindRole, EntityID: roleID, UserIDs: unresolved}
		}

		for target, ids := range plan {
			if _, err := users.Update(ctx, storage.Where(storage.In("id", ids...)), storage.Assign("role_id", target)); err != nil {
				return fmt.Errorf("failed to reassign users: %w", err)
			}
		}
		if _, err := users.Update(ctx,
			storage.Where(storage.Eq("role_id", roleID), storage.NotNull("deleted_at")),
			storage.Assign("role_id", nil),
		); err != nil {
			return fmt.Errorf("failed to detach deleted users: %w", err)
		}
		if _, err := m.rolePerms.In(tx).Delete(ctx, storage.Where(storage.Eq("role_id", roleID))); err != nil {
			return fmt.Errorf("failed to delete role permissions: %w", err)
		}
		n, err := roles.Delete(ctx, storage.Where(storage.Eq("id", roleID)))
		if err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}
		if n == 0 {
			return ErrRoleNotFound
		}

		for _, u := range assigned {
			moved = append(moved, u.ID)
		}
		return nil
	})
	if err != nil {
		moved = nil
		return err
	}

	if err := m.resolver.InvalidateUsers(ctx, moved...); err != nil {
		return err
	}

	event := audit.NewEvent(ctx, audit.EventTypeRoleDelete, audit.ResourceTypeRole, roleID.String())
	event.Metadata["slug"] = role.Slug
	event.Metadata["reassigned_users"] = len(moved)
	audit.Record(ctx, m.opts.audit, event)
	return nil
}

// DeleteTeamSafely deletes a team after moving its memberships to the teams
// named by re. A user who already belongs to their target team keeps that
// single membership.
func (m *Reassigner) DeleteTeamSafely(ctx context.Context, teamID uuid.UUID, re Reassignment) (err error) {
	ctx, span := observability.StartSpan(ctx, "rbac.DeleteTeamSafely", attribute.String("team.id", teamID.String()))
	moved := 0
	defer func() {
		span.SetAttributes(attribute.Int("reassigned.users", moved))
		observability.EndSpan(span, err)
		m.record(KindTeam, err, moved)
	}()

	team, err := m.teams.Get(ctx, storage.Where(storage.Eq("id", teamID)))
	if storage.IsNotFound(err) {
		return ErrTeamNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get team: %w", err)
	}
	if err := m.authorize(ctx, NewPermission(ResourceTeam, ActionDelete)); err != nil {
		return err
	}

	now := m.opts.now()
	err = m.store.InTx(ctx, func(ctx context.Context, tx *storage.Tx) error {
		teams := m.teams.In(tx)
		members := m.members.In(tx)

		for _, target := range re.targets() {
			if target == teamID {
				return fmt.Errorf("%w: cannot reassign to the team being deleted", ErrInvalidReassignmentTarget)
			}
			n, err := teams.Count(ctx, storage.Where(storage.Eq("id", target)))
			if err != nil {
				return fmt.Errorf("failed to check target team: %w", err)
			}
			if n == 0 {
				return fmt.Errorf("%w: team %s does not exist", ErrInvalidReassignmentTarget, target)
			}
		}

		current, err := members.Find(ctx, storage.Where(storage.Eq("team_id", teamID)).Order("user_id"))
		if err != nil {
			return fmt.Errorf("failed to list team members: %w", err)
		}

		plan, unresolved := planMoves(current, func(tm *TeamMember) uuid.UUID { return tm.UserID }, re)
		if len(unresolved) > 0 {
			return &ReassignmentRequiredError{Kind: KindTeam, EntityID: teamID, UserIDs: unresolved}
		}

		for target, ids := range plan {
			existing, err := members.Find(ctx, storage.Where(storage.Eq("team_id", target), storage.In("user_id", ids...)))
			if err != nil {
				return fmt.Errorf("failed to read target team members: %w", err)
			}
			already := make(map[uuid.UUID]bool, len(existing))
			for _, e := range existing {
				already[e.UserID] = true
			}
			for _, id := range ids {
				userID := id.(uuid.UUID)
				if already[userID] {
					continue
				}
				if err := members.Insert(ctx, &TeamMember{TeamID: target, UserID: userID, AddedAt: now}); err != nil {
					return fmt.Errorf("failed to move team member: %w", err)
				}
			}
		}

		if _, err := members.Delete(ctx, storage.Where(storage.Eq("team_id", teamID))); err != nil {
			return fmt.Errorf("failed to delete team members: %w", err)
		}
		n, err := teams.Delete(ctx, storage.Where(storage.Eq("id", teamID)))
		if err != nil {
			return fmt.Errorf("failed to delete team: %w", err)
		}
		if n == 0 {
			return ErrTeamNotFound
		}
		moved = len(current)
		return nil
	})
	if err != nil {
		moved = 0
		return err
	}

	event := audit.NewEvent(ctx, audit.EventTypeTeamDelete, audit.ResourceTypeTeam, teamID.String())
	event.Metadata["slug"] = team.Slug
	event.Metadata["reassigned_users"] = moved
	audit.Record(ctx, m.opts.audit, event)
	return nil
}

// planMoves groups rows by resolved target. The id lists are []any so they
// can be passed straight to storage.In.
func planMoves[T any](rows []*T, userOf func(*T) uuid.UUID, re Reassignment) (map[uuid.UUID][]any, []uuid.UUID) {
	plan := make(map[uuid.UUID][]any)
	var unresolved []uuid.UUID
	for _, row := range rows {
		userID := userOf(row)
		target, ok := re.target(userID)
		if !ok {
			unresolved = append(unresolved, userID)
			continue
		}
		plan[target] = append(plan[target], userID)
	}
	return plan, unresolved
}
