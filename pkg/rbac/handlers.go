package rbac

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
)

// Handlers provides HTTP handlers for RBAC operations. Routes must be mounted
// behind tenant resolution.
type Handlers struct {
	services *Services
	perms    *PermissionMiddleware
}

// NewHandlers creates new RBAC handlers
func NewHandlers(services *Services) *Handlers {
	return &Handlers{
		services: services,
		perms:    NewPermissionMiddleware(services.Resolver),
	}
}

func (h *Handlers) guard(resource Resource, action Action, fn http.HandlerFunc) http.Handler {
	return h.perms.RequirePermission(NewPermission(resource, action))(fn)
}

// RegisterRoutes registers all RBAC routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	// Permission catalog
	router.Handle("/rbac/permissions", h.guard(ResourcePermission, ActionRead, h.ListPermissions)).Methods(http.MethodGet)
	router.HandleFunc("/rbac/me/permissions", h.GetMyPermissions).Methods(http.MethodGet)

	// Role management
	router.Handle("/rbac/roles", h.guard(ResourceRole, ActionCreate, h.CreateRole)).Methods(http.MethodPost)
	router.Handle("/rbac/roles", h.guard(ResourceRole, ActionRead, h.ListRoles)).Methods(http.MethodGet)
	router.Handle("/rbac/roles/{id}", h.guard(ResourceRole, ActionRead, h.GetRole)).Methods(http.MethodGet)
	router.Handle("/rbac/roles/{id}", h.guard(ResourceRole, ActionUpdate, h.UpdateRole)).Methods(http.MethodPut)
	router.Handle("/rbac/roles/{id}/permissions", h.guard(ResourceRole, ActionUpdate, h.SetRolePermissions)).Methods(http.MethodPut)
	// the reassigner authorizes deletions itself, after the system role check
	router.HandleFunc("/rbac/roles/{id}", h.DeleteRole).Methods(http.MethodDelete)

	// User management
	router.Handle("/rbac/users", h.guard(ResourceUser, ActionCreate, h.CreateUser)).Methods(http.MethodPost)
	router.Handle("/rbac/users", h.guard(ResourceUser, ActionRead, h.ListUsers)).Methods(http.MethodGet)
	router.Handle("/rbac/users/{id}", h.guard(ResourceUser, ActionRead, h.GetUser)).Methods(http.MethodGet)
	router.Handle("/rbac/users/{id}", h.guard(ResourceUser, ActionDelete, h.DeleteUser)).Methods(http.MethodDelete)
	router.Handle("/rbac/users/{id}/role", h.guard(ResourceUser, ActionUpdate, h.AssignUserRole)).Methods(http.MethodPut)
	router.Handle("/rbac/users/{id}/permissions", h.guard(ResourcePermission, ActionRead, h.GetUserPermissions)).Methods(http.MethodGet)
	router.Handle("/rbac/users/{id}/overrides", h.guard(ResourcePermission, ActionRead, h.GetUserOverrides)).Methods(http.MethodGet)
	router.Handle("/rbac/users/{id}/overrides", h.guard(ResourcePermission, ActionAssign, h.SetUserOverrides)).Methods(http.MethodPut)

	// Team management
	router.Handle("/rbac/teams", h.guard(ResourceTeam, ActionCreate, h.CreateTeam)).Methods(http.MethodPost)
	router.Handle("/rbac/teams", h.guard(ResourceTeam, ActionRead, h.ListTeams)).Methods(http.MethodGet)
	router.Handle("/rbac/teams/{id}", h.guard(ResourceTeam, ActionRead, h.GetTeam)).Methods(http.MethodGet)
	router.HandleFunc("/rbac/teams/{id}", h.DeleteTeam).Methods(http.MethodDelete)

	// Team member management
	router.Handle("/rbac/teams/{id}/members", h.guard(ResourceTeam, ActionUpdate, h.AddTeamMember)).Methods(http.MethodPost)
	router.Handle("/rbac/teams/{id}/members", h.guard(ResourceTeam, ActionRead, h.GetTeamMembers)).Methods(http.MethodGet)
	router.Handle("/rbac/teams/{id}/members/{user_id}", h.guard(ResourceTeam, ActionUpdate, h.RemoveTeamMember)).Methods(http.MethodDelete)
}

// ListPermissions returns the permission catalog without the wildcard
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.services.Resolver.Registry().List())
}

// GetMyPermissions returns the calling user's effective permissions
func (h *Handlers) GetMyPermissions(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	perms, err := h.services.Resolver.EffectivePermissions(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, perms)
}

// CreateRole creates a new tenant role
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	role, err := h.services.Roles.CreateRole(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, role)
}

// ListRoles lists the tenant's roles and the system roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.services.Roles.ListRoles(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// GetRole gets a role with its permission ids
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	role, err := h.services.Roles.GetRole(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// UpdateRole updates a role's name or description
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	var req UpdateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	role, err := h.services.Roles.UpdateRole(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// SetRolePermissions replaces a role's permissions
func (h *Handlers) SetRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		PermissionIDs []uuid.UUID `json:"permission_ids"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := h.services.Roles.SetRolePermissions(r.Context(), id, req.PermissionIDs); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// DeleteRole deletes a role, moving its users as the optional body says
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	re, ok := parseReassignment(w, r)
	if !ok {
		return
	}
	if err := h.services.Reassigner.DeleteRoleSafely(r.Context(), id, re); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// CreateUser adds a user to the tenant
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	user, err := h.services.Users.CreateUser(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, user)
}

// ListUsers lists the tenant's active users
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.services.Users.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, users)
}

// GetUser gets an active user
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	user, err := h.services.Users.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// DeleteUser soft-deletes a user
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.services.Users.SoftDeleteUser(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// AssignUserRole sets or clears a user's role
func (h *Handlers) AssignUserRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		RoleID *uuid.UUID `json:"role_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := h.services.Roles.AssignUserRole(r.Context(), id, req.RoleID); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// GetUserPermissions returns a user's effective permissions with their status
func (h *Handlers) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	perms, err := h.services.Resolver.EffectivePermissions(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, perms)
}

// GetUserOverrides returns a user's override rows
func (h *Handlers) GetUserOverrides(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	overrides, err := h.services.Resolver.Overrides(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if overrides == nil {
		overrides = []*Override{}
	}
	httputil.WriteSuccess(w, overrides)
}

// SetUserOverrides replaces a user's overrides
func (h *Handlers) SetUserOverrides(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Overrides []OverrideInput `json:"overrides"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := h.services.Resolver.SetUserOverrides(r.Context(), id, req.Overrides); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// CreateTeam creates a team
func (h *Handlers) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var req CreateTeamRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	team, err := h.services.Teams.CreateTeam(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, team)
}

// ListTeams lists the tenant's teams
func (h *Handlers) ListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.services.Teams.ListTeams(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, teams)
}

// GetTeam gets a team
func (h *Handlers) GetTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	team, err := h.services.Teams.GetTeam(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, team)
}

// DeleteTeam deletes a team, moving its members as the optional body says
func (h *Handlers) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	re, ok := parseReassignment(w, r)
	if !ok {
		return
	}
	if err := h.services.Reassigner.DeleteTeamSafely(r.Context(), id, re); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// AddTeamMember adds a user to a team
func (h *Handlers) AddTeamMember(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		UserID uuid.UUID `json:"user_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := h.services.Teams.AddMember(r.Context(), teamID, req.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// GetTeamMembers lists a team's members
func (h *Handlers) GetTeamMembers(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	members, err := h.services.Teams.ListMembers(r.Context(), teamID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if members == nil {
		members = []*TeamMember{}
	}
	httputil.WriteSuccess(w, members)
}

// RemoveTeamMember removes a user from a team
func (h *Handlers) RemoveTeamMember(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathUUIDOrError(w, r, "user_id")
	if !ok {
		return
	}
	if err := h.services.Teams.RemoveMember(r.Context(), teamID, userID); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// parseReassignment reads an optional Reassignment body
func parseReassignment(w http.ResponseWriter, r *http.Request) (Reassignment, bool) {
	var re Reassignment
	if r.Body == nil {
		return re, true
	}
	err := httputil.ParseJSON(r, &re)
	if err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteBadRequest(w, err.Error())
		return re, false
	}
	return re, true
}
