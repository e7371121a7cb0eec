package rbac

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/storage"
)

// CreateUserRequest is the input of UserService.CreateUser
type CreateUserRequest struct {
	Email    string     `json:"email"`
	FullName string     `json:"full_name"`
	RoleID   *uuid.UUID `json:"role_id,omitempty"`
}

// UserService manages the users of the active tenant
type UserService struct {
	store     *storage.Store
	users     *storage.Scoped[User, *User]
	roles     *storage.Scoped[Role, *Role]
	overrides *storage.Scoped[Override, *Override]
	members   *storage.Scoped[TeamMember, *TeamMember]
	resolver  *Resolver
	opts      options
}

// NewUserService creates a user service
func NewUserService(store *storage.Store, resolver *Resolver, opts ...Option) *UserService {
	return &UserService{
		store:     store,
		users:     storage.NewScoped[User](store),
		roles:     storage.NewScoped[Role](store),
		overrides: storage.NewScoped[Override](store),
		members:   storage.NewScoped[TeamMember](store),
		resolver:  resolver,
		opts:      buildOptions(opts),
	}
}

// CreateUser adds a user to the active tenant. Emails are unique per tenant.
func (s *UserService) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, &ValidationError{Field: "email", Message: "a valid email address is required"}
	}
	if req.RoleID != nil {
		n, err := s.roles.Count(ctx, storage.Where(storage.Eq("id", *req.RoleID)))
		if err != nil {
			return nil, fmt.Errorf("failed to check role: %w", err)
		}
		if n == 0 {
			return nil, ErrRoleNotFound
		}
	}

	user := &User{
		ID:        uuid.New(),
		Email:     email,
		FullName:  strings.TrimSpace(req.FullName),
		RoleID:    req.RoleID,
		CreatedAt: s.opts.now(),
	}
	if err := s.users.Insert(ctx, user); err != nil {
		if storage.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrEmailTaken, email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	audit.Record(ctx, s.opts.audit, audit.NewEvent(ctx, audit.EventTypeUserCreate, audit.ResourceTypeUser, user.ID.String()))
	return user, nil
}

// GetUser returns an active user of the tenant
func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.resolver.activeUser(ctx, id)
}

// ListUsers returns the tenant's active users by email
func (s *UserService) ListUsers(ctx context.Context) ([]*User, error) {
	users, err := s.users.Find(ctx, storage.Where(storage.IsNull("deleted_at")).Order("email"))
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// SoftDeleteUser marks a user deleted and removes their overrides and team
// memberships in one transaction. The row is kept for the audit trail.
func (s *UserService) SoftDeleteUser(ctx context.Context, id uuid.UUID) error {
	now := s.opts.now()
	err := s.store.InTx(ctx, func(ctx context.Context, tx *storage.Tx) error {
		n, err := s.users.In(tx).Update(ctx,
			storage.Where(storage.Eq("id", id), storage.IsNull("deleted_at")),
			storage.Assign("deleted_at", now),
		)
		if err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		if n == 0 {
			return ErrUserNotFound
		}
		if _, err := s.overrides.In(tx).Delete(ctx, storage.Where(storage.Eq("user_id", id))); err != nil {
			return fmt.Errorf("failed to delete overrides: %w", err)
		}
		if _, err := s.members.In(tx).Delete(ctx, storage.Where(storage.Eq("user_id", id))); err != nil {
			return fmt.Errorf("failed to delete team memberships: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.resolver.InvalidateUser(ctx, id); err != nil {
		return err
	}
	audit.Record(ctx, s.opts.audit, audit.NewEvent(ctx, audit.EventTypeUserDelete, audit.ResourceTypeUser, id.String()))
	return nil
}
