package storage_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/storage"
	"github.com/platinummonkey/tenantguard/pkg/storage/storagetest"
)

func TestIsUniqueViolation(t *testing.T) {
	store := storagetest.NewSQLiteStore(t, `CREATE TABLE gadgets (id UUID PRIMARY KEY, name TEXT NOT NULL UNIQUE)`)
	insert := func(id uuid.UUID, name string) error {
		_, err := store.DB().Exec(`INSERT INTO gadgets (id, name) VALUES (?, ?)`, id, name)
		return err
	}
	id := uuid.New()
	require.NoError(t, insert(id, "dial"))

	dupName := insert(uuid.New(), "dial")
	require.Error(t, dupName)
	assert.True(t, storage.IsUniqueViolation(fmt.Errorf("failed to insert: %w", dupName)))

	dupKey := insert(id, "knob")
	require.Error(t, dupKey)
	assert.True(t, storage.IsUniqueViolation(dupKey))

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "postgres unique", err: fmt.Errorf("wrapped: %w", &pq.Error{Code: "23505"}), want: true},
		{name: "postgres foreign key", err: &pq.Error{Code: "23503"}, want: false},
		{name: "message only", err: errors.New("UNIQUE constraint failed: gadgets.name"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, storage.IsUniqueViolation(tt.err))
		})
	}
}

func TestIsUniqueViolation_OtherConstraints(t *testing.T) {
	store := storagetest.NewSQLiteStore(t, `CREATE TABLE gadgets (id UUID PRIMARY KEY, name TEXT NOT NULL)`)
	_, err := store.DB().Exec(`INSERT INTO gadgets (id, name) VALUES (?, NULL)`, uuid.New())
	require.Error(t, err)
	assert.False(t, storage.IsUniqueViolation(err))
}
