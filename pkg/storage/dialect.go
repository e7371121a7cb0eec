package storage

import (
	"fmt"
	"strconv"
)

// Dialect selects placeholder syntax and driver name for generated SQL
type Dialect int

const (
	// Postgres renders $1, $2, ... placeholders (lib/pq)
	Postgres Dialect = iota
	// SQLite renders ? placeholders (used by tests)
	SQLite
)

// Placeholder returns the bind marker for the n-th (1-based) argument
func (d Dialect) Placeholder(n int) string {
	if d == SQLite {
		return "?"
	}
	return "$" + strconv.Itoa(n)
}

// DriverName returns the database/sql driver name for the dialect
func (d Dialect) DriverName() string {
	if d == SQLite {
		return "sqlite3"
	}
	return "postgres"
}

func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	default:
		return fmt.Sprintf("dialect(%d)", int(d))
	}
}
