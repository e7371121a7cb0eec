package rbac

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/storage"
	"github.com/platinummonkey/tenantguard/pkg/storage/storagetest"
	"github.com/platinummonkey/tenantguard/pkg/tenancy"
	"github.com/platinummonkey/tenantguard/pkg/tenants"
)

// recordingAudit keeps every event in memory
type recordingAudit struct {
	mu     sync.Mutex
	events []*audit.Event
	err    error
}

func (r *recordingAudit) Log(_ context.Context, e *audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recordingAudit) Close() error { return nil }

func (r *recordingAudit) ofType(t audit.EventType) []*audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*audit.Event
	for _, e := range r.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store    *storage.Store
	registry *Registry
	services *Services
	cache    *LRUCache
	audit    *recordingAudit
	metrics  *observability.Metrics
	tenantA  uuid.UUID
	tenantB  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ddl := append(append([]string{}, tenants.Schema...), Schema()...)
	store := storagetest.NewSQLiteStore(t, ddl...)
	ctx := context.Background()

	require.NoError(t, SeedCatalog(ctx, store, DefaultCatalog(), SystemRoles()))
	registry, err := LoadRegistry(ctx, store)
	require.NoError(t, err)

	svc := tenants.NewService(store, nil)
	a, err := svc.Create(ctx, tenants.CreateTenantRequest{Name: "Acme"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, tenants.CreateTenantRequest{Name: "Globex"})
	require.NoError(t, err)

	f := &fixture{
		store:    store,
		registry: registry,
		cache:    NewLRUCache(100, time.Minute),
		audit:    &recordingAudit{},
		metrics:  observability.NewMetrics(prometheus.NewRegistry()),
		tenantA:  a.ID,
		tenantB:  b.ID,
	}
	f.services = NewServices(store, registry,
		WithCache(f.cache),
		WithAuditLogger(f.audit),
		WithMetrics(f.metrics),
	)
	return f
}

// in returns a context scoped to tenantID
func (f *fixture) in(tenantID uuid.UUID) context.Context {
	return tenancy.WithTenant(context.Background(), tenantID)
}

// as returns ctx acting as user
func (f *fixture) as(ctx context.Context, user *User) context.Context {
	return auth.WithPrincipal(ctx, &auth.Principal{UserID: user.ID, Email: user.Email, TenantID: user.TenantID})
}

func (f *fixture) createUser(t *testing.T, ctx context.Context, email string, roleID *uuid.UUID) *User {
	t.Helper()
	user, err := f.services.Users.CreateUser(ctx, CreateUserRequest{Email: email, FullName: email, RoleID: roleID})
	require.NoError(t, err)
	return user
}

func (f *fixture) createRole(t *testing.T, ctx context.Context, name string, perms ...Permission) *Role {
	t.Helper()
	ids := make([]uuid.UUID, len(perms))
	for i, p := range perms {
		ids[i] = PermissionID(p)
	}
	role, err := f.services.Roles.CreateRole(ctx, CreateRoleRequest{Name: name, PermissionIDs: ids})
	require.NoError(t, err)
	return role
}

// userRole reads a user's role id, including deleted users
func (f *fixture) userRole(t *testing.T, ctx context.Context, id uuid.UUID) *uuid.UUID {
	t.Helper()
	user, err := storage.NewScoped[User](f.store).Get(ctx, storage.Where(storage.Eq("id", id)))
	require.NoError(t, err)
	return user.RoleID
}

func systemRole(slug string) *uuid.UUID {
	id := SystemRoleID(slug)
	return &id
}
