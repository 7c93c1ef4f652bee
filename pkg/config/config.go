// Package config loads and validates the orchestrator's YAML configuration:
// built-in defaults merged with an optional mcp.yaml overlay and environment
// variable expansion.
package config

import (
	"fmt"
	"time"
)

// Config is the umbrella configuration object returned by Load and used
// throughout the application.
type Config struct {
	configDir string

	NATS     NATSConfig     `yaml:"nats"`
	Database DatabaseConfig `yaml:"database"`
	Stage    StageConfig    `yaml:"stage"`
	Adaptive AdaptiveConfig `yaml:"adaptive"`
	HTTP     HTTPConfig     `yaml:"http"`
	Retention RetentionConfig `yaml:"retention"`
}

// NATSConfig configures the broker/task-store connection.
type NATSConfig struct {
	URL            string `yaml:"url"`
	TaskStoreKV    string `yaml:"task_store_kv"`
	StreamsName    string `yaml:"streams_name"`
	QueueMaxLength int    `yaml:"queue_max_length"`
	Prefetch       int    `yaml:"prefetch"`
}

// DatabaseConfig configures the StateManager's PostgreSQL connection.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// StageConfig carries the recognized stage timeout/retry options.
type StageConfig struct {
	StageTimeout    time.Duration `yaml:"stage_timeout_seconds"`
	TaskTTL         time.Duration `yaml:"task_ttl_seconds"`
	DefaultTemplate string        `yaml:"dag_default_template"`
	MaxRetries      int           `yaml:"max_retries_on_timeout"`
}

// AdaptiveConfig configures the AdaptiveClient.
type AdaptiveConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"adaptive_timeout_seconds"`
}

// HTTPConfig configures the ControlAPI listener.
type HTTPConfig struct {
	Addr            string   `yaml:"addr"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

// RetentionConfig configures StateManager housekeeping.
type RetentionConfig struct {
	CleanupRetentionDays int           `yaml:"cleanup_retention_days"`
	PruneInterval        time.Duration `yaml:"prune_interval"`
	ReconcileInterval    time.Duration `yaml:"reconcile_interval"`
}

// ConfigDir returns the directory the configuration was loaded from.
func (c *Config) ConfigDir() string { return c.configDir }

// Validate performs fail-fast checks over the options this core
// recognizes.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required")
	}
	if c.Stage.StageTimeout <= 0 {
		return fmt.Errorf("stage.stage_timeout_seconds must be positive")
	}
	if c.Stage.DefaultTemplate == "" {
		return fmt.Errorf("stage.dag_default_template is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	return nil
}
