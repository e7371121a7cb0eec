package storage

import (
	"github.com/google/uuid"
)

// TableSpec describes how a model maps onto a table
type TableSpec struct {
	// Name is the table name
	Name string

	// Columns lists every column in the order of Model.Values and Model.Pointers
	Columns []string

	// TenantColumn names the column carrying the owning tenant; empty for global tables
	TenantColumn string

	// SharedRows makes reads also return rows whose tenant column is NULL
	// (platform-wide rows such as system roles). Updates and deletes never
	// match those rows.
	SharedRows bool
}

// IsTenantScoped reports whether rows of the table belong to a tenant
func (s TableSpec) IsTenantScoped() bool {
	return s.TenantColumn != ""
}

// HasColumn reports whether col is one of the table's columns
func (s TableSpec) HasColumn(col string) bool {
	for _, c := range s.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// Model is a row type the storage layer can read and write
type Model interface {
	// Spec describes the backing table
	Spec() TableSpec
	// Values returns column values in Spec().Columns order
	Values() []any
	// Pointers returns scan destinations in Spec().Columns order
	Pointers() []any
}

// TenantModel is a Model owned by a tenant. Only TenantModels can be used
// with Scoped accessors.
type TenantModel interface {
	Model
	GetTenantID() uuid.UUID
	SetTenantID(uuid.UUID)
}

func specOf[T any, PT interface {
	*T
	Model
}]() TableSpec {
	var zero T
	return PT(&zero).Spec()
}
