package tenants

import (
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantguard/pkg/storage"
)

// Tenant is an organization sharing the deployment
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Settings  Settings  `json:"settings"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Spec describes the tenants table. Tenants own rows but are not owned by one,
// so the table has no tenant column.
func (*Tenant) Spec() storage.TableSpec {
	return storage.TableSpec{
		Name:    "tenants",
		Columns: []string{"id", "name", "slug", "settings", "created_at", "updated_at"},
	}
}

func (t *Tenant) Values() []any {
	return []any{t.ID, t.Name, t.Slug, t.Settings, t.CreatedAt, t.UpdatedAt}
}

func (t *Tenant) Pointers() []any {
	return []any{&t.ID, &t.Name, &t.Slug, &t.Settings, &t.CreatedAt, &t.UpdatedAt}
}

// CreateTenantRequest is the input to Service.Create
type CreateTenantRequest struct {
	Name string `json:"name"`
	// Slug is derived from Name when empty
	Slug     string    `json:"slug,omitempty"`
	Settings *Settings `json:"settings,omitempty"`
}
