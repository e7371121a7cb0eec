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

// CreateTeamRequest is the input of TeamService.CreateTeam
type CreateTeamRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// TeamService manages the teams of the active tenant
type TeamService struct {
	teams   *storage.Scoped[Team, *Team]
	members *storage.Scoped[TeamMember, *TeamMember]
	users   *storage.Scoped[User, *User]
	opts    options
}

// NewTeamService creates a team service
func NewTeamService(store *storage.Store, opts ...Option) *TeamService {
	return &TeamService{
		teams:   storage.NewScoped[Team](store),
		members: storage.NewScoped[TeamMember](store),
		users:   storage.NewScoped[User](store),
		opts:    buildOptions(opts),
	}
}

// CreateTeam creates a team with a slug derived from its name
func (s *TeamService) CreateTeam(ctx context.Context, req CreateTeamRequest) (*Team, error) {
	name := strings.TrimSpace(req.Name)
	slug := tenants.GenerateSlug(name)
	if name == "" || slug == "" {
		return nil, &ValidationError{Field: "name", Message: "team name is required"}
	}

	team := &Team{
		ID:          uuid.New(),
		Name:        name,
		Slug:        slug,
		Description: req.Description,
		CreatedAt:   s.opts.now(),
	}
	if err := s.teams.Insert(ctx, team); err != nil {
		if storage.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrSlugTaken, slug)
		}
		return nil, fmt.Errorf("failed to create team: %w", err)
	}

	audit.Record(ctx, s.opts.audit, audit.NewEvent(ctx, audit.EventTypeTeamCreate, audit.ResourceTypeTeam, team.ID.String()))
	return team, nil
}

// GetTeam returns a team of the active tenant
func (s *TeamService) GetTeam(ctx context.Context, id uuid.UUID) (*Team, error) {
	team, err := s.teams.Get(ctx, storage.Where(storage.Eq("id", id)))
	if storage.IsNotFound(err) {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return team, nil
}

// ListTeams returns the tenant's teams by slug
func (s *TeamService) ListTeams(ctx context.Context) ([]*Team, error) {
	teams, err := s.teams.Find(ctx, storage.Where().Order("slug"))
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	return teams, nil
}

// AddMember adds an active user of the tenant to a team
func (s *TeamService) AddMember(ctx context.Context, teamID, userID uuid.UUID) error {
	if _, err := s.GetTeam(ctx, teamID); err != nil {
		return err
	}
	n, err := s.users.Count(ctx, storage.Where(storage.Eq("id", userID), storage.IsNull("deleted_at")))
	if err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}

	err = s.members.Insert(ctx, &TeamMember{TeamID: teamID, UserID: userID, AddedAt: s.opts.now()})
	if storage.IsUniqueViolation(err) {
		return ErrAlreadyMember
	}
	if err != nil {
		return fmt.Errorf("failed to add team member: %w", err)
	}

	event := audit.NewEvent(ctx, audit.EventTypeTeamMemberAdd, audit.ResourceTypeTeam, teamID.String())
	event.Metadata["user_id"] = userID.String()
	audit.Record(ctx, s.opts.audit, event)
	return nil
}

// RemoveMember removes a user from a team
func (s *TeamService) RemoveMember(ctx context.Context, teamID, userID uuid.UUID) error {
	n, err := s.members.Delete(ctx, storage.Where(storage.Eq("team_id", teamID), storage.Eq("user_id", userID)))
	if err != nil {
		return fmt.Errorf("failed to remove team member: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("team member: %w", storage.ErrNotFound)
	}

	event := audit.NewEvent(ctx, audit.EventTypeTeamMemberRemove, audit.ResourceTypeTeam, teamID.String())
	event.Metadata["user_id"] = userID.String()
	audit.Record(ctx, s.opts.audit, event)
	return nil
}

// ListMembers returns a team's memberships in the order they were added
func (s *TeamService) ListMembers(ctx context.Context, teamID uuid.UUID) ([]*TeamMember, error) {
	if _, err := s.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	members, err := s.members.Find(ctx, storage.Where(storage.Eq("team_id", teamID)).Order("added_at", "user_id"))
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	return members, nil
}
