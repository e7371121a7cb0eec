//go:build !cgo

package storage

// go-sqlite3 needs cgo; without it no SQLite error can reach this package.
func isSQLiteUniqueViolation(error) bool { return false }
