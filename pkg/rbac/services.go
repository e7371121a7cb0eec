package rbac

import (
	"github.com/platinummonkey/tenantguard/pkg/storage"
)

// Services bundles the permission resolver and the administration services
// built on it
type Services struct {
	Resolver   *Resolver
	Roles      *RoleService
	Teams      *TeamService
	Users      *UserService
	Reassigner *Reassigner
}

// NewServices builds every service over one store and registry, sharing opts
func NewServices(store *storage.Store, registry *Registry, opts ...Option) *Services {
	resolver := NewResolver(store, registry, opts...)
	return &Services{
		Resolver:   resolver,
		Roles:      NewRoleService(store, resolver, opts...),
		Teams:      NewTeamService(store, opts...),
		Users:      NewUserService(store, resolver, opts...),
		Reassigner: NewReassigner(store, resolver, opts...),
	}
}
