package storage

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a single-row lookup matches nothing
	ErrNotFound = errors.New("record not found")

	// ErrUnknownColumn is returned when a filter or update names a column the table does not have
	ErrUnknownColumn = errors.New("unknown column")

	// ErrEmptyUpdate is returned for an update without assignments
	ErrEmptyUpdate = errors.New("update has no assignments")

	// ErrTenantColumnImmutable is returned when a scoped update tries to move a row to another tenant
	ErrTenantColumnImmutable = errors.New("tenant column cannot be updated through a scoped accessor")

	// ErrNotGlobal is returned when a Global accessor is built for a tenant-owned table
	ErrNotGlobal = errors.New("table is tenant-scoped")
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation
const uniqueViolation = "23505"

// IsNotFound reports whether err is, or wraps, ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUniqueViolation reports whether err was caused by a unique constraint
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return isSQLiteUniqueViolation(err)
}
