package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kindryd/askflash-mcp/pkg/models"
)

// TaskRepo persists finished and in-flight TaskRecords to task_histories
// for analytics and audit, separate from the TaskStore's fast, TTL-bounded
// copy.
type TaskRepo struct {
	pool *pgxpool.Pool
}

// Upsert writes the current snapshot of a TaskRecord, creating the row on
// first write and updating the mutable columns thereafter.
func (r *TaskRepo) Upsert(ctx context.Context, rec *models.TaskRecord) error {
	plan, err := json.Marshal(rec.Plan)
	if err != nil {
		return fmt.Errorf("state: marshal plan: %w", err)
	}
	completed, err := json.Marshal(rec.CompletedStages)
	if err != nil {
		return fmt.Errorf("state: marshal completed stages: %w", err)
	}
	var response []byte
	if rec.FinalResponse != nil {
		response, err = json.Marshal(rec.FinalResponse)
		if err != nil {
			return fmt.Errorf("state: marshal response: %w", err)
		}
	}
	var currentStage *string
	if rec.CurrentStage != nil {
		cs := *rec.CurrentStage
		currentStage = &cs
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO task_histories (
			id, user_id, query, plan, template, status, current_stage,
			completed_stages, context, response, error, progress_percentage,
			started_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_stage = EXCLUDED.current_stage,
			completed_stages = EXCLUDED.completed_stages,
			context = EXCLUDED.context,
			response = EXCLUDED.response,
			error = EXCLUDED.error,
			progress_percentage = EXCLUDED.progress_percentage,
			updated_at = EXCLUDED.updated_at
	`,
		rec.TaskID, rec.UserID, rec.Query, plan, rec.TemplateName, string(rec.Status),
		currentStage, completed, rec.Context, nullableJSON(response), rec.Error,
		rec.ProgressPercent, rec.StartedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("state: upsert task %s: %w", rec.TaskID, err)
	}
	return nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

// taskHistoryRow is the flat shape task_histories rows decode into before
// being reassembled into a models.TaskRecord.
type taskHistoryRow struct {
	TaskID          string
	UserID          string
	Query           string
	Plan            []string
	Template        string
	Status          string
	CurrentStage    *string
	CompletedStages []string
	Context         string
	Response        []byte
	Error           string
	Progress        int
	StartedAt       time.Time
	UpdatedAt       time.Time
}

const taskHistoryColumns = `
	id, user_id, query, plan, template, status, current_stage,
	completed_stages, context, response, error, progress_percentage,
	started_at, updated_at
`

func scanTaskHistory(row pgx.Row) (*models.TaskRecord, error) {
	var t taskHistoryRow
	var plan, completed []byte
	if err := row.Scan(
		&t.TaskID, &t.UserID, &t.Query, &plan, &t.Template, &t.Status, &t.CurrentStage,
		&completed, &t.Context, &t.Response, &t.Error, &t.Progress, &t.StartedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(plan, &t.Plan); err != nil {
		return nil, fmt.Errorf("state: decode plan: %w", err)
	}
	if err := json.Unmarshal(completed, &t.CompletedStages); err != nil {
		return nil, fmt.Errorf("state: decode completed stages: %w", err)
	}

	rec := &models.TaskRecord{
		TaskID:          t.TaskID,
		UserID:          t.UserID,
		Query:           t.Query,
		TemplateName:    t.Template,
		Plan:            t.Plan,
		CurrentStage:    t.CurrentStage,
		CompletedStages: t.CompletedStages,
		Status:          models.Status(t.Status),
		ProgressPercent: t.Progress,
		Context:         t.Context,
		Error:           t.Error,
		StartedAt:       t.StartedAt,
		UpdatedAt:       t.UpdatedAt,
	}
	if len(t.Response) > 0 {
		var resp models.FinalResponse
		if err := json.Unmarshal(t.Response, &resp); err != nil {
			return nil, fmt.Errorf("state: decode response: %w", err)
		}
		rec.FinalResponse = &resp
	}
	return rec, nil
}

// Get returns a single task by id, or pgx.ErrNoRows if it doesn't exist.
func (r *TaskRepo) Get(ctx context.Context, taskID string) (*models.TaskRecord, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+taskHistoryColumns+" FROM task_histories WHERE id = $1", taskID)
	rec, err := scanTaskHistory(row)
	if err != nil {
		return nil, fmt.Errorf("state: get task %s: %w", taskID, err)
	}
	return rec, nil
}

// ListByUser returns a user's most recent tasks, newest first.
func (r *TaskRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*models.TaskRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		"SELECT "+taskHistoryColumns+" FROM task_histories WHERE user_id = $1 ORDER BY started_at DESC LIMIT $2",
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("state: list tasks for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []*models.TaskRecord
	for rows.Next() {
		rec, err := scanTaskHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// HourlyCount is one hour bucket's task count, for the task analytics
// hourly breakdown.
type HourlyCount struct {
	Hour  time.Time `json:"hour"`
	Count int64     `json:"count"`
}

// TaskAnalytics summarizes task outcomes over a time window.
type TaskAnalytics struct {
	TotalTasks      int64            `json:"total_tasks"`
	CompletedTasks  int64            `json:"completed_tasks"`
	FailedTasks     int64            `json:"failed_tasks"`
	AbortedTasks    int64            `json:"aborted_tasks"`
	AvgDurationMS   float64          `json:"avg_duration_ms"`
	TemplateUsage   map[string]int64 `json:"template_usage"`
	HourlyBreakdown []HourlyCount    `json:"hourly_breakdown"`
}

// Analytics aggregates task outcomes since `since`: totals, per-template
// usage counts, and an hourly bucketed count.
func (r *TaskRepo) Analytics(ctx context.Context, since time.Time) (TaskAnalytics, error) {
	var a TaskAnalytics
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'complete'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'aborted'),
			COALESCE(AVG(EXTRACT(EPOCH FROM (updated_at - started_at)) * 1000) FILTER (WHERE status IN ('complete','failed','aborted')), 0)
		FROM task_histories
		WHERE started_at >= $1
	`, since).Scan(&a.TotalTasks, &a.CompletedTasks, &a.FailedTasks, &a.AbortedTasks, &a.AvgDurationMS)
	if err != nil {
		return TaskAnalytics{}, fmt.Errorf("state: task analytics: %w", err)
	}

	templateRows, err := r.pool.Query(ctx,
		"SELECT template, COUNT(*) FROM task_histories WHERE started_at >= $1 GROUP BY template", since)
	if err != nil {
		return TaskAnalytics{}, fmt.Errorf("state: template usage: %w", err)
	}
	a.TemplateUsage = make(map[string]int64)
	for templateRows.Next() {
		var name string
		var count int64
		if err := templateRows.Scan(&name, &count); err != nil {
			templateRows.Close()
			return TaskAnalytics{}, fmt.Errorf("state: scan template usage: %w", err)
		}
		a.TemplateUsage[name] = count
	}
	templateRows.Close()
	if err := templateRows.Err(); err != nil {
		return TaskAnalytics{}, fmt.Errorf("state: template usage: %w", err)
	}

	hourRows, err := r.pool.Query(ctx, `
		SELECT date_trunc('hour', started_at) AS hour, COUNT(*)
		FROM task_histories
		WHERE started_at >= $1
		GROUP BY hour
		ORDER BY hour ASC
	`, since)
	if err != nil {
		return TaskAnalytics{}, fmt.Errorf("state: hourly breakdown: %w", err)
	}
	defer hourRows.Close()
	for hourRows.Next() {
		var h HourlyCount
		if err := hourRows.Scan(&h.Hour, &h.Count); err != nil {
			return TaskAnalytics{}, fmt.Errorf("state: scan hourly breakdown: %w", err)
		}
		a.HourlyBreakdown = append(a.HourlyBreakdown, h)
	}
	return a, hourRows.Err()
}

// Prune deletes task_histories rows (and cascaded stage logs) older than
// the retention window. The Manager has no maintenance loop and does not
// call Prune itself.
func (r *TaskRepo) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM task_histories WHERE updated_at < $1", olderThan)
	if err != nil {
		return 0, fmt.Errorf("state: prune task histories: %w", err)
	}
	return tag.RowsAffected(), nil
}
