// Package state implements the durable, queryable system of record for
// completed and historical tasks, stage
// logs, and agent performance/health, backed by PostgreSQL via pgx/v5.
//
// Unlike the TaskStore (pkg/taskstore), which is a fast, TTL-bounded cache
// for in-flight tasks, the StateManager never expires rows — it exists for
// analytics, audit, and post-hoc debugging once a task leaves the hot path.
package state

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver for migrations
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds PostgreSQL connection and pool configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func (c Config) dsn() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// Manager wraps a pgx connection pool and exposes the StateManager's
// repositories.
type Manager struct {
	pool *pgxpool.Pool

	Tasks       *TaskRepo
	StageLogs   *StageLogRepo
	Agents      *AgentRepo
}

// Connect opens a pooled connection, applies embedded migrations, and
// returns a ready Manager.
func Connect(ctx context.Context, cfg Config) (*Manager, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("state: parse dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("state: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("state: ping: %w", err)
	}

	if err := runMigrations(cfg); err != nil {
		pool.Close()
		return nil, fmt.Errorf("state: migrate: %w", err)
	}

	return &Manager{
		pool:      pool,
		Tasks:     &TaskRepo{pool: pool},
		StageLogs: &StageLogRepo{pool: pool},
		Agents:    &AgentRepo{pool: pool},
	}, nil
}

// Close releases the pool.
func (m *Manager) Close() { m.pool.Close() }

// Health reports pool statistics for the system-status control operation.
type Health struct {
	Status          string `json:"status"`
	ResponseTime    int64  `json:"response_time_ms"`
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
}

// CheckHealth pings the database and reports current pool utilization.
func (m *Manager) CheckHealth(ctx context.Context) Health {
	start := time.Now()
	if err := m.pool.Ping(ctx); err != nil {
		return Health{Status: "unhealthy", ResponseTime: time.Since(start).Milliseconds()}
	}
	stats := m.pool.Stat()
	return Health{
		Status:        "healthy",
		ResponseTime:  time.Since(start).Milliseconds(),
		TotalConns:    stats.TotalConns(),
		IdleConns:     stats.IdleConns(),
		AcquiredConns: stats.AcquiredConns(),
	}
}

// runMigrations applies embedded migration files with golang-migrate: open
// a short-lived database/sql connection (via the pgx stdlib driver) purely
// for the migration run, since golang-migrate's postgres driver wants a
// *sql.DB, not a pgx connection pool.
func runMigrations(cfg Config) error {
	db, err := sql.Open("pgx", cfg.dsn())
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer func() { _ = db.Close() }()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, cfg.Database, driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	// Close only the migration source; calling m.Close() would also close
	// the *sql.DB driver, which is fine here since db is a dedicated,
	// short-lived connection separate from the pgxpool used at runtime.
	return sourceDriver.Close()
}
