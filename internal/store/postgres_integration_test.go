//go:build integration

package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/klntsky/compression-bench/internal/config"
	"github.com/klntsky/compression-bench/internal/store"
)

// newTestRepository spins up a disposable PostgreSQL, either via an
// external CI_DATABASE_URL or via testcontainers locally, applies the
// embedded migrations through store.Open, and returns a ready repository.
func newTestRepository(t *testing.T) *store.Postgres {
	ctx := context.Background()

	if os.Getenv("CI_DATABASE_URL") != "" {
		t.Log("using external PostgreSQL from CI_DATABASE_URL")
		repo, err := store.Open(ctx, ciDatabaseConfig())
		require.NoError(t, err)
		t.Cleanup(func() { _ = repo.Close() })
		return repo
	}

	t.Log("using testcontainers for PostgreSQL")
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("compression_bench_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	repo, err := store.Open(ctx, config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		Username:        "test",
		Password:        "test",
		Database:        "compression_bench_test",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func ciDatabaseConfig() config.DatabaseConfig {
	// CI_DATABASE_URL points at an already-provisioned service container;
	// tests there connect with fixed, known-good defaults baked into the
	// CI compose file rather than parsing the URL.
	return config.DatabaseConfig{
		Host:            "localhost",
		Port:            5432,
		Username:        "test",
		Password:        "test",
		Database:        "compression_bench_test",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
	}
}
