package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// StageLog is one row of task_stage_logs: a durable audit trail of every
// progress transition a task passed through, mirroring what the TaskStore
// publishes live but retained indefinitely.
type StageLog struct {
	TaskID    string         `json:"task_id"`
	Stage     string         `json:"stage"`
	Action    string         `json:"action"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// StageLogRepo persists task_stage_logs rows.
type StageLogRepo struct {
	pool *pgxpool.Pool
}

// Append inserts one stage-log row.
func (r *StageLogRepo) Append(ctx context.Context, log StageLog) error {
	metadata, err := json.Marshal(log.Metadata)
	if err != nil {
		return fmt.Errorf("state: marshal stage log metadata: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO task_stage_logs (task_id, stage, action, message, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, log.TaskID, log.Stage, log.Action, log.Message, metadata, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("state: append stage log for %s/%s: %w", log.TaskID, log.Stage, err)
	}
	return nil
}

// ListByTask returns every stage-log row for a task, in append order.
func (r *StageLogRepo) ListByTask(ctx context.Context, taskID string) ([]StageLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT task_id, stage, action, message, metadata, created_at
		FROM task_stage_logs WHERE task_id = $1 ORDER BY created_at ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("state: list stage logs for %s: %w", taskID, err)
	}
	defer rows.Close()

	var out []StageLog
	for rows.Next() {
		var log StageLog
		var metadata []byte
		if err := rows.Scan(&log.TaskID, &log.Stage, &log.Action, &log.Message, &metadata, &log.CreatedAt); err != nil {
			return nil, fmt.Errorf("state: scan stage log: %w", err)
		}
		if err := json.Unmarshal(metadata, &log.Metadata); err != nil {
			return nil, fmt.Errorf("state: decode stage log metadata: %w", err)
		}
		out = append(out, log)
	}
	return out, rows.Err()
}
