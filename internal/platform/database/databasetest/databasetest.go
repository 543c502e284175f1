// Package databasetest starts a throwaway PostgreSQL for integration tests.
package databasetest

import (
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/p-n-ai/pai-mastery/internal/platform/database"
)

// Start runs a PostgreSQL container and returns a connected DB. The test is
// skipped in -short mode or when no container runtime is available.
func Start(t *testing.T) *database.DB {
	t.Helper()
	ctx := t.Context()

	db, err := database.New(ctx, database.Options{URL: StartURL(t), MaxConns: 4, MinConns: 1})
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(db.Close)

	// Give the pool a moment after the container reports ready.
	deadline := time.Now().Add(5 * time.Second)
	for db.HealthCheck(ctx) != nil && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
	return db
}

// StartURL runs a PostgreSQL container and returns its connection URL, for
// tests that build their own pool. It skips like Start.
func StartURL(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := t.Context()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("mastery"),
		postgres.WithUsername("mastery"),
		postgres.WithPassword("mastery"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("ConnectionString() error = %v", err)
	}
	return url
}
