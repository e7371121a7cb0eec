package storage

import (
	"context"
	"fmt"
)

// Unscoped bypasses tenant scoping entirely. It exists for the two legitimate
// escape hatches: resolving a tenant before any tenant context exists, and
// platform administration that spans tenants. Keep every construction site
// easy to find; grep for NewUnscoped.
type Unscoped[T any, PT interface {
	*T
	Model
}] struct {
	core core[T, PT]
}

// NewUnscoped returns an accessor that applies no tenant filtering
func NewUnscoped[T any, PT interface {
	*T
	Model
}](s *Store) *Unscoped[T, PT] {
	return &Unscoped[T, PT]{core: newCore[T, PT](s.db, s.dialect)}
}

// In returns a copy of the accessor bound to tx
func (u *Unscoped[T, PT]) In(tx *Tx) *Unscoped[T, PT] {
	c := u.core
	c.q = tx
	return &Unscoped[T, PT]{core: c}
}

// Get returns the single row matching f across all tenants
func (u *Unscoped[T, PT]) Get(ctx context.Context, f Filter) (*T, error) {
	return u.core.get(ctx, f)
}

// Find returns all rows matching f across all tenants
func (u *Unscoped[T, PT]) Find(ctx context.Context, f Filter) ([]*T, error) {
	return u.core.find(ctx, f)
}

// Count counts rows matching f across all tenants
func (u *Unscoped[T, PT]) Count(ctx context.Context, f Filter) (int64, error) {
	return u.core.count(ctx, f)
}

// Insert stores v exactly as given
func (u *Unscoped[T, PT]) Insert(ctx context.Context, v *T) error {
	return u.core.insert(ctx, v)
}

// Update applies set to every row matching f
func (u *Unscoped[T, PT]) Update(ctx context.Context, f Filter, set ...Assignment) (int64, error) {
	return u.core.update(ctx, f, set)
}

// Delete removes every row matching f
func (u *Unscoped[T, PT]) Delete(ctx context.Context, f Filter) (int64, error) {
	return u.core.delete(ctx, f)
}

// Global is the accessor for tables that belong to no tenant, such as the
// permission catalog. Building one for a tenant-owned table fails.
type Global[T any, PT interface {
	*T
	Model
}] struct {
	core core[T, PT]
}

// NewGlobal returns an accessor for a global table
func NewGlobal[T any, PT interface {
	*T
	Model
}](s *Store) (*Global[T, PT], error) {
	c := newCore[T, PT](s.db, s.dialect)
	if c.spec.IsTenantScoped() {
		return nil, fmt.Errorf("%w: %s", ErrNotGlobal, c.spec.Name)
	}
	return &Global[T, PT]{core: c}, nil
}

// In returns a copy of the accessor bound to tx
func (g *Global[T, PT]) In(tx *Tx) *Global[T, PT] {
	c := g.core
	c.q = tx
	return &Global[T, PT]{core: c}
}

// Get returns the single row matching f
func (g *Global[T, PT]) Get(ctx context.Context, f Filter) (*T, error) {
	return g.core.get(ctx, f)
}

// Find returns all rows matching f
func (g *Global[T, PT]) Find(ctx context.Context, f Filter) ([]*T, error) {
	return g.core.find(ctx, f)
}

// Insert stores v
func (g *Global[T, PT]) Insert(ctx context.Context, v *T) error {
	return g.core.insert(ctx, v)
}
