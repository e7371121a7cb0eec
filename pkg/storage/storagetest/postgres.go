//go:build integration

package storagetest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/tenantguard/pkg/storage"
)

// NewPostgresStore returns a store on a real PostgreSQL with the given DDL
// applied. TEST_POSTGRES_URL selects an existing server; otherwise a
// throwaway container is started and terminated with the test.
func NewPostgresStore(t *testing.T, ddl ...string) *storage.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}
	ctx := context.Background()

	url := os.Getenv("TEST_POSTGRES_URL")
	if url == "" {
		container, err := postgres.Run(ctx, "postgres:15-alpine",
			postgres.WithDatabase("tenantguard_test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		if err != nil {
			t.Fatalf("failed to start postgres container: %v", err)
		}
		t.Cleanup(func() {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := container.Terminate(cleanupCtx); err != nil {
				t.Logf("Warning: failed to terminate container: %v", err)
			}
		})

		url, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			t.Fatalf("failed to get connection string: %v", err)
		}
	}

	cfg := storage.DefaultConnectionConfig()
	cfg.URL = url
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to open postgres: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Exec(ctx, ddl...); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	return store
}
