package rbac

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantguard/pkg/storage"
)

// Registry is the in-memory permission catalog. It is built once at startup
// and read-only afterwards, so it is safe for concurrent use without locking.
type Registry struct {
	byID     map[uuid.UUID]PermissionRecord
	byTuple  map[Permission]PermissionRecord
	listed   []PermissionRecord
	wildcard *PermissionRecord
}

// NewRegistry builds a registry from catalog rows
func NewRegistry(records []PermissionRecord) *Registry {
	r := &Registry{
		byID:    make(map[uuid.UUID]PermissionRecord, len(records)),
		byTuple: make(map[Permission]PermissionRecord, len(records)),
	}
	for _, rec := range records {
		r.byID[rec.ID] = rec
		r.byTuple[rec.Permission()] = rec
		if rec.Permission().IsWildcard() {
			w := rec
			r.wildcard = &w
			continue
		}
		r.listed = append(r.listed, rec)
	}
	sort.Slice(r.listed, func(i, j int) bool {
		return r.listed[i].Permission().String() < r.listed[j].Permission().String()
	})
	return r
}

// LoadRegistry reads the global permission catalog
func LoadRegistry(ctx context.Context, store *storage.Store) (*Registry, error) {
	catalog, err := storage.NewGlobal[PermissionRecord](store)
	if err != nil {
		return nil, err
	}
	rows, err := catalog.Find(ctx, storage.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load permission registry: %w", err)
	}
	records := make([]PermissionRecord, len(rows))
	for i, row := range rows {
		records[i] = *row
	}
	return NewRegistry(records), nil
}

// List returns every permission except the wildcard, ordered by tuple. This is
// the enumeration shown to users.
func (r *Registry) List() []PermissionRecord {
	return append([]PermissionRecord(nil), r.listed...)
}

// All returns every permission including the wildcard
func (r *Registry) All() []PermissionRecord {
	all := r.List()
	if r.wildcard != nil {
		all = append(all, *r.wildcard)
	}
	return all
}

// ByID looks up a permission by id
func (r *Registry) ByID(id uuid.UUID) (PermissionRecord, bool) {
	rec, ok := r.byID[id]
	return rec, ok
}

// ByTuple looks up a permission by tuple
func (r *Registry) ByTuple(p Permission) (PermissionRecord, bool) {
	rec, ok := r.byTuple[p]
	return rec, ok
}

// Wildcard returns the all-permissions record, if the catalog has one
func (r *Registry) Wildcard() (PermissionRecord, bool) {
	if r.wildcard == nil {
		return PermissionRecord{}, false
	}
	return *r.wildcard, true
}

// Validate returns a *ValidationError naming every id not in the registry
func (r *Registry) Validate(ids ...uuid.UUID) error {
	var unknown []uuid.UUID
	for _, id := range ids {
		if _, ok := r.byID[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return &ValidationError{Field: "permission_id", UnknownIDs: unknown}
	}
	return nil
}

// Len returns the number of listed (non-wildcard) permissions
func (r *Registry) Len() int {
	return len(r.listed)
}
