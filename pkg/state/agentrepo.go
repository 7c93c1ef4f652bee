package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kindryd/askflash-mcp/pkg/models"
)

// AgentRepo persists agent_performance samples (one row per stage
// execution) and the latest agent_health snapshot per agent name.
type AgentRepo struct {
	pool *pgxpool.Pool
}

// RecordPerformance inserts one agent_performance row for a completed
// stage execution, whether it succeeded or failed.
func (r *AgentRepo) RecordPerformance(ctx context.Context, s models.AgentPerformanceSample) error {
	metadata, err := json.Marshal(s.Metadata)
	if err != nil {
		return fmt.Errorf("state: marshal performance metadata: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO agent_performance (
			agent_name, task_id, stage, duration_ms, success, error_message, metadata, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, s.AgentName, s.TaskID, s.Stage, s.DurationMS, s.Success, s.ErrorMessage, metadata, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("state: record performance for %s: %w", s.AgentName, err)
	}
	return nil
}

// UpsertHealth writes the latest heartbeat/health snapshot for an agent,
// replacing the previous one (agent_health keeps only the current state
// per agent, not a time series — the time series lives in
// agent_performance).
func (r *AgentRepo) UpsertHealth(ctx context.Context, h models.AgentHealth) error {
	metadata, err := json.Marshal(h.Metadata)
	if err != nil {
		return fmt.Errorf("state: marshal health metadata: %w", err)
	}
	now := time.Now()
	_, err = r.pool.Exec(ctx, `
		INSERT INTO agent_health (
			agent_name, status, last_heartbeat, cpu_usage, memory_usage,
			queue_size, processed_tasks, failed_tasks, metadata, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
		ON CONFLICT (agent_name) DO UPDATE SET
			status = EXCLUDED.status,
			last_heartbeat = EXCLUDED.last_heartbeat,
			cpu_usage = EXCLUDED.cpu_usage,
			memory_usage = EXCLUDED.memory_usage,
			queue_size = EXCLUDED.queue_size,
			processed_tasks = EXCLUDED.processed_tasks,
			failed_tasks = EXCLUDED.failed_tasks,
			metadata = EXCLUDED.metadata,
			updated_at = $10
	`, h.AgentName, string(h.Status), h.LastHeartbeat, h.CPUUsage, h.MemoryUsage,
		h.QueueSize, h.ProcessedTasks, h.FailedTasks, metadata, now)
	if err != nil {
		return fmt.Errorf("state: upsert health for %s: %w", h.AgentName, err)
	}
	return nil
}

// AgentPerformanceSummary aggregates performance for one agent over a
// window.
type AgentPerformanceSummary struct {
	AgentName     string  `json:"agent_name"`
	TotalRuns     int64   `json:"total_runs"`
	SuccessRuns   int64   `json:"success_runs"`
	FailureRuns   int64   `json:"failure_runs"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
	P95DurationMS float64 `json:"p95_duration_ms"`
}

// PerformanceSummary aggregates a single agent's recent executions.
func (r *AgentRepo) PerformanceSummary(ctx context.Context, agentName string, since time.Time) (AgentPerformanceSummary, error) {
	summary := AgentPerformanceSummary{AgentName: agentName}
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE success),
			COUNT(*) FILTER (WHERE NOT success),
			COALESCE(AVG(duration_ms), 0),
			COALESCE(PERCENTILE_CONT(0.95) WITHIN GROUP (ORDER BY duration_ms), 0)
		FROM agent_performance
		WHERE agent_name = $1 AND created_at >= $2
	`, agentName, since).Scan(
		&summary.TotalRuns, &summary.SuccessRuns, &summary.FailureRuns,
		&summary.AvgDurationMS, &summary.P95DurationMS,
	)
	if err != nil {
		return AgentPerformanceSummary{}, fmt.Errorf("state: performance summary for %s: %w", agentName, err)
	}
	return summary, nil
}

// AllHealth returns the current health snapshot for every agent that has
// ever reported a heartbeat.
func (r *AgentRepo) AllHealth(ctx context.Context) ([]models.AgentHealth, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT agent_name, status, last_heartbeat, cpu_usage, memory_usage,
		       queue_size, processed_tasks, failed_tasks, metadata
		FROM agent_health ORDER BY agent_name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("state: list agent health: %w", err)
	}
	defer rows.Close()

	var out []models.AgentHealth
	for rows.Next() {
		var h models.AgentHealth
		var status string
		var metadata []byte
		if err := rows.Scan(&h.AgentName, &status, &h.LastHeartbeat, &h.CPUUsage, &h.MemoryUsage,
			&h.QueueSize, &h.ProcessedTasks, &h.FailedTasks, &metadata); err != nil {
			return nil, fmt.Errorf("state: scan agent health: %w", err)
		}
		h.Status = models.AgentStatus(status)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &h.Metadata); err != nil {
				return nil, fmt.Errorf("state: decode agent health metadata: %w", err)
			}
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
