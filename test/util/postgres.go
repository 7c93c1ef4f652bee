// Package util provides shared test infrastructure for packages that need a
// real backing store: a Postgres testcontainer for pkg/state and an
// embedded NATS server for pkg/broker and pkg/taskstore.
package util

import (
	"context"
	stdsql "database/sql"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kindryd/askflash-mcp/pkg/state"
)

type pgParams struct {
	host, port, user, password string
}

var (
	sharedPG      pgParams
	containerOnce sync.Once
	containerErr  error
)

// NewTestStateManager provisions a dedicated Postgres database on a shared
// testcontainer (started once per package), connects a *state.Manager to
// it (applying embedded migrations), and registers cleanup to drop the
// database and close the pool when the test finishes.
func NewTestStateManager(t *testing.T) *state.Manager {
	t.Helper()
	ctx := context.Background()

	params := getOrCreateSharedPostgres(t)
	dbName := generateDatabaseName(t)

	admin, err := stdsql.Open("pgx", adminDSN(params, "postgres"))
	require.NoError(t, err)
	defer func() { _ = admin.Close() }()

	_, err = admin.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName))
	require.NoError(t, err)

	mgr, err := state.Connect(ctx, state.Config{
		Host:     params.host,
		Port:     atoiMust(t, params.port),
		User:     params.user,
		Password: params.password,
		Database: dbName,
		SSLMode:  "disable",
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		mgr.Close()
		admin, err := stdsql.Open("pgx", adminDSN(params, "postgres"))
		if err != nil {
			t.Logf("warning: failed to reopen admin connection to drop %s: %v", dbName, err)
			return
		}
		defer func() { _ = admin.Close() }()
		if _, err := admin.ExecContext(context.Background(), fmt.Sprintf("DROP DATABASE IF EXISTS %s", dbName)); err != nil {
			t.Logf("warning: failed to drop database %s: %v", dbName, err)
		}
	})

	return mgr
}

func adminDSN(p pgParams, database string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", p.user, p.password, p.host, p.port, database)
}

func atoiMust(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	require.NoError(t, err)
	return n
}

// getOrCreateSharedPostgres returns connection parameters to the shared
// database: CI_POSTGRES_DSN-style individual fields when running against an
// external service, or a once-per-package testcontainer for local dev.
func getOrCreateSharedPostgres(t *testing.T) pgParams {
	containerOnce.Do(func() {
		if host := os.Getenv("CI_POSTGRES_HOST"); host != "" {
			sharedPG = pgParams{
				host:     host,
				port:     envOrDefault("CI_POSTGRES_PORT", "5432"),
				user:     envOrDefault("CI_POSTGRES_USER", "test"),
				password: envOrDefault("CI_POSTGRES_PASSWORD", "test"),
			}
			return
		}

		ctx := context.Background()
		t.Log("starting shared Postgres testcontainer for this package's tests")

		pgContainer, err := postgres.Run(ctx,
			"postgres:17-alpine",
			postgres.WithDatabase("postgres"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("start postgres container: %w", err)
			return
		}

		host, err := pgContainer.Host(ctx)
		if err != nil {
			containerErr = fmt.Errorf("container host: %w", err)
			return
		}
		mappedPort, err := pgContainer.MappedPort(ctx, "5432/tcp")
		if err != nil {
			containerErr = fmt.Errorf("container port: %w", err)
			return
		}

		sharedPG = pgParams{host: host, port: mappedPort.Port(), user: "test", password: "test"}
	})

	require.NoError(t, containerErr, "failed to set up shared postgres test container")
	return sharedPG
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// generateDatabaseName returns a unique, Postgres-safe database name derived
// from the running test's name.
func generateDatabaseName(t *testing.T) string {
	name := strings.ToLower(t.Name())
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)
	if len(name) > 40 {
		name = name[:40]
	}

	suffix := make([]byte, 4)
	_, err := rand.Read(suffix)
	require.NoError(t, err)

	return fmt.Sprintf("test_%s_%s", name, hex.EncodeToString(suffix))
}
