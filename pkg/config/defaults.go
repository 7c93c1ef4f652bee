package config

import "time"

// Defaults returns the built-in configuration, before any mcp.yaml or
// environment overrides are merged in.
func Defaults() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:            "nats://127.0.0.1:4222",
			TaskStoreKV:    "mcp_tasks",
			StreamsName:    "mcp_task_streams",
			QueueMaxLength: 1000,
			Prefetch:       1,
		},
		Database: DatabaseConfig{
			Host:            "127.0.0.1",
			Port:            5432,
			User:            "mcp",
			Database:        "mcp",
			SSLMode:         "disable",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		Stage: StageConfig{
			StageTimeout:    300 * time.Second,
			TaskTTL:         600 * time.Second,
			DefaultTemplate: "standard_query",
			MaxRetries:      1,
		},
		Adaptive: AdaptiveConfig{
			BaseURL: "http://127.0.0.1:8090",
			Timeout: 5 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Retention: RetentionConfig{
			CleanupRetentionDays: 7,
			PruneInterval:        1 * time.Hour,
			ReconcileInterval:    5 * time.Minute,
		},
	}
}
