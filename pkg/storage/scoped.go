package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantguard/pkg/tenancy"
)

// Scoped is the accessor for tenant-owned tables. Every operation reads the
// tenant from ctx at execution time:
//
//   - reads, updates and deletes are filtered on the tenant column
//   - inserts overwrite the model's tenant with the active tenant
//   - with no tenant on ctx, every operation fails with
//     tenancy.ErrMissingTenantContext before reaching the database
type Scoped[T any, PT interface {
	*T
	TenantModel
}] struct {
	core core[T, PT]
}

// NewScoped returns a scoped accessor bound to the store's connection pool
func NewScoped[T any, PT interface {
	*T
	TenantModel
}](s *Store) *Scoped[T, PT] {
	return &Scoped[T, PT]{core: newCore[T, PT](s.db, s.dialect)}
}

// In returns a copy of the accessor bound to tx
func (s *Scoped[T, PT]) In(tx *Tx) *Scoped[T, PT] {
	c := s.core
	c.q = tx
	return &Scoped[T, PT]{core: c}
}

// Spec returns the table description
func (s *Scoped[T, PT]) Spec() TableSpec {
	return s.core.spec
}

func (s *Scoped[T, PT]) readFilter(ctx context.Context, f Filter) (Filter, error) {
	tenantID, err := tenancy.Require(ctx)
	if err != nil {
		return Filter{}, fmt.Errorf("%s: %w", s.core.spec.Name, err)
	}
	if s.core.spec.SharedRows {
		return f.prepend(eqOrNull(s.core.spec.TenantColumn, tenantID)), nil
	}
	return f.prepend(Eq(s.core.spec.TenantColumn, tenantID)), nil
}

func (s *Scoped[T, PT]) writeFilter(ctx context.Context, f Filter) (Filter, error) {
	tenantID, err := tenancy.Require(ctx)
	if err != nil {
		return Filter{}, fmt.Errorf("%s: %w", s.core.spec.Name, err)
	}
	return f.prepend(Eq(s.core.spec.TenantColumn, tenantID)), nil
}

// Get returns the single row matching f within the active tenant
func (s *Scoped[T, PT]) Get(ctx context.Context, f Filter) (*T, error) {
	f, err := s.readFilter(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.core.get(ctx, f)
}

// Find returns all rows matching f within the active tenant
func (s *Scoped[T, PT]) Find(ctx context.Context, f Filter) ([]*T, error) {
	f, err := s.readFilter(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.core.find(ctx, f)
}

// Count returns the number of rows matching f within the active tenant
func (s *Scoped[T, PT]) Count(ctx context.Context, f Filter) (int64, error) {
	f, err := s.readFilter(ctx, f)
	if err != nil {
		return 0, err
	}
	return s.core.count(ctx, f)
}

// Insert stores v under the active tenant, replacing any tenant set on v
func (s *Scoped[T, PT]) Insert(ctx context.Context, v *T) error {
	tenantID, err := tenancy.Require(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", s.core.spec.Name, err)
	}
	PT(v).SetTenantID(tenantID)
	return s.core.insert(ctx, v)
}

// Update applies set to the active tenant's rows matching f
func (s *Scoped[T, PT]) Update(ctx context.Context, f Filter, set ...Assignment) (int64, error) {
	for _, a := range set {
		if a.Column == s.core.spec.TenantColumn {
			return 0, ErrTenantColumnImmutable
		}
	}
	f, err := s.writeFilter(ctx, f)
	if err != nil {
		return 0, err
	}
	return s.core.update(ctx, f, set)
}

// Delete removes the active tenant's rows matching f
func (s *Scoped[T, PT]) Delete(ctx context.Context, f Filter) (int64, error) {
	f, err := s.writeFilter(ctx, f)
	if err != nil {
		return 0, err
	}
	return s.core.delete(ctx, f)
}

// TenantOf is a convenience for models whose tenant column is nullable
func TenantOf(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
