// Package coordinator implements the DAG execution engine that dispatches
// each stage to its queue, waits for
// completion, integrates results into the TaskRecord, advances the plan,
// and packages the final response.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kindryd/askflash-mcp/pkg/adaptive"
	"github.com/kindryd/askflash-mcp/pkg/broker"
	"github.com/kindryd/askflash-mcp/pkg/metrics"
	"github.com/kindryd/askflash-mcp/pkg/models"
	"github.com/kindryd/askflash-mcp/pkg/state"
	"github.com/kindryd/askflash-mcp/pkg/taskstore"
)

// ErrUnknownTemplate is returned by CreateAndExecute for an unrecognized
// template_name.
var ErrUnknownTemplate = errors.New("coordinator: unknown template")

// ErrAlreadyTerminal is returned by AbortTask when the task has already
// reached a terminal status; this is not treated as a hard failure by
// callers, only as a no-op signal.
var ErrAlreadyTerminal = errors.New("coordinator: task already terminal")

// Config configures stage timeouts and retry policy.
type Config struct {
	StageTimeout time.Duration
	MaxRetries   int
}

// Coordinator owns the runtime for every in-flight task execution. It holds
// no ambient singletons — all collaborators are injected.
type Coordinator struct {
	store     *taskstore.Store
	broker    *broker.Broker
	adaptive  *adaptive.Client
	state     *state.Manager
	templates map[string]*models.DAGTemplate
	cfg       Config
	log       *slog.Logger
	metrics   *metrics.Metrics

	qualityGate *QualityGate

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New builds a Coordinator. state may be nil (StateManager is an optional
// durable mirror; the Coordinator degrades to TaskStore-only if it is
// absent). m may be nil; every Metrics method tolerates a nil receiver.
func New(store *taskstore.Store, b *broker.Broker, ac *adaptive.Client, sm *state.Manager, m *metrics.Metrics, cfg Config) *Coordinator {
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 300 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Coordinator{
		store:       store,
		broker:      b,
		adaptive:    ac,
		state:       sm,
		templates:   models.BuiltinTemplates(),
		cfg:         cfg,
		log:         slog.With("component", "coordinator"),
		metrics:     m,
		qualityGate: NewQualityGate(),
		cancels:     make(map[string]context.CancelFunc),
	}
}

// CreateAndExecute selects templateName, requests adaptive recommendations,
// creates the TaskRecord, and spawns an independent execution goroutine.
func (c *Coordinator) CreateAndExecute(ctx context.Context, userID, query, templateName, conversationID string) (string, error) {
	tmpl, ok := c.templates[templateName]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, templateName)
	}

	taskID := uuid.NewString()

	recCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	rec := c.adaptive.Recommend(recCtx, taskID, query, templateName)
	cancel()

	task, err := c.store.CreateTask(taskID, userID, query, templateName, append([]string(nil), tmpl.Stages...))
	if err != nil {
		return "", fmt.Errorf("coordinator: create task: %w", err)
	}
	if conversationID != "" {
		task, err = c.store.UpdateTask(taskID, func(rec *models.TaskRecord) error {
			rec.ConversationID = conversationID
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("coordinator: create task: %w", err)
		}
	}

	if err := c.store.PutAdaptive(taskID, rec); err != nil {
		c.log.Warn("failed to stash adaptive recommendations", "task_id", taskID, "error", err)
	}

	c.emitProgress(taskID, tmpl.Stages[0], models.ActionCreated, "task created")
	c.metrics.IncTaskCreated(templateName)

	if c.state != nil {
		if err := c.state.Tasks.Upsert(ctx, task); err != nil {
			c.log.Warn("failed to mirror task creation to state manager", "task_id", taskID, "error", err)
		}
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancels[taskID] = runCancel
	c.mu.Unlock()

	go c.run(runCtx, taskID)

	return taskID, nil
}

// GetTaskStatus returns the current TaskRecord snapshot.
func (c *Coordinator) GetTaskStatus(taskID string) (*models.TaskRecord, error) {
	return c.store.GetTask(taskID)
}

// AbortTask cancels a task's execution context and marks it aborted.
// Aborting an already-terminal task is a no-op that returns
// ErrAlreadyTerminal alongside the existing terminal record.
func (c *Coordinator) AbortTask(taskID string) (*models.TaskRecord, error) {
	task, err := c.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != models.StatusInProgress {
		return task, ErrAlreadyTerminal
	}

	c.mu.Lock()
	cancel, ok := c.cancels[taskID]
	delete(c.cancels, taskID)
	c.mu.Unlock()
	if ok {
		cancel()
	}

	updated, err := c.store.UpdateTask(taskID, func(rec *models.TaskRecord) error {
		rec.Status = models.StatusAborted
		rec.CurrentStage = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.emitProgress(taskID, "", models.ActionAborted, "task aborted")
	c.metrics.IncTaskCompleted(string(models.StatusAborted))
	c.mirrorToState(taskID, updated)
	return updated, nil
}

// run is the per-task execution loop. It owns ctx's lifetime: cancellation
// (abort) unwinds it at the next suspension point.
func (c *Coordinator) run(ctx context.Context, taskID string) {
	defer func() {
		c.mu.Lock()
		delete(c.cancels, taskID)
		c.mu.Unlock()
	}()

	for {
		task, err := c.store.GetTask(taskID)
		if err != nil {
			c.log.Error("lost task record mid-execution", "task_id", taskID, "error", err)
			return
		}
		if task.Status != models.StatusInProgress || task.CurrentStage == nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		stage := *task.CurrentStage
		c.emitProgress(taskID, stage, models.ActionStageStart, "stage starting")

		if stage == models.StageResponsePackaging {
			c.finishTask(ctx, taskID)
			return
		}

		if done := c.runStage(ctx, task, stage); done {
			return
		}
	}
}

// runStage executes one non-packaging stage end to end (dispatch, wait,
// integrate, advance) and reports whether the task execution loop must
// stop (true on failure or abort).
func (c *Coordinator) runStage(ctx context.Context, task *models.TaskRecord, stage string) bool {
	queue, ok := models.StageQueue[stage]
	if !ok {
		c.failTask(task.TaskID, fmt.Sprintf("unknown_queue:%s", stage))
		return true
	}

	retries := c.cfg.MaxRetries
	stageStarted := time.Now()
	for attempt := 0; ; attempt++ {
		adaptiveRec, err := c.store.GetAdaptive(task.TaskID)
		if err != nil {
			adaptiveRec = models.DefaultRecommendations()
		}

		msg := models.NewTaskMessage(task.TaskID, stage)
		msg.Query = task.Query
		msg.UserID = task.UserID
		msg.Context = task.Context
		msg.PerStageResults = task.PerStageResults
		msg.TemplateName = task.TemplateName
		msg.AdaptiveRecommendations = adaptiveRec
		msg.ConversationID = task.ConversationID

		if err := c.broker.PublishTask(ctx, queue, msg); err != nil {
			if attempt < retries {
				c.log.Warn("publish failed, retrying", "task_id", task.TaskID, "stage", stage, "error", err)
				c.metrics.IncStageRetry(stage)
				continue
			}
			c.metrics.IncStageFailure(stage, "publish_failed")
			c.failTask(task.TaskID, fmt.Sprintf("publish_failed:%s", stage))
			return true
		}

		payload, err := c.broker.WaitForEvent(ctx, models.CompletionChannel(stage), task.TaskID, c.cfg.StageTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return true // aborted while waiting
			}
			c.metrics.IncStageFailure(stage, "wait_failed")
			c.failTask(task.TaskID, fmt.Sprintf("wait_failed:%s", stage))
			return true
		}
		if payload == nil {
			if attempt < retries {
				c.log.Warn("stage timed out, retrying", "task_id", task.TaskID, "stage", stage)
				c.metrics.IncStageRetry(stage)
				continue
			}
			c.metrics.IncStageFailure(stage, "stage_timeout")
			c.failTask(task.TaskID, fmt.Sprintf("stage_timeout:%s", stage))
			return true
		}

		completion, err := decodeCompletion(payload)
		if err != nil {
			c.metrics.IncStageFailure(stage, "schema_error")
			c.failTask(task.TaskID, fmt.Sprintf("schema_error:%s", stage))
			return true
		}
		if !completion.Success {
			if completion.Transient && attempt < retries {
				c.log.Warn("transient stage failure, retrying", "task_id", task.TaskID, "stage", stage, "error", completion.Error)
				c.metrics.IncStageRetry(stage)
				continue
			}
			c.metrics.IncStageFailure(stage, "stage_error")
			c.failTask(task.TaskID, completion.Error)
			return true
		}

		result, err := c.store.GetStageResult(task.TaskID, stage)
		if err != nil {
			c.metrics.IncStageFailure(stage, "missing_stage_result")
			c.failTask(task.TaskID, fmt.Sprintf("missing_stage_result:%s", stage))
			return true
		}

		if err := c.integrateAndAdvance(ctx, task.TaskID, stage, result); err != nil {
			c.metrics.IncStageFailure(stage, "integration_failed")
			c.failTask(task.TaskID, fmt.Sprintf("integration_failed:%s", stage))
			return true
		}
		c.metrics.ObserveStageDuration(stage, "success", time.Since(stageStarted).Seconds())
		return false
	}
}

// finishTask runs response packaging and marks the task complete.
func (c *Coordinator) finishTask(ctx context.Context, taskID string) {
	task, err := c.store.GetTask(taskID)
	if err != nil {
		return
	}

	resp, err := c.packageResponse(task)
	if err != nil {
		c.failTask(taskID, fmt.Sprintf("packaging_failed:%v", err))
		return
	}

	score, issues := c.qualityGate.Score(resp)
	resp.Metadata.QualityScore = score
	resp.Metadata.QualityIssues = issues

	updated, err := c.store.UpdateTask(taskID, func(rec *models.TaskRecord) error {
		rec.CompletedStages = append(rec.CompletedStages, models.StageResponsePackaging)
		rec.CurrentStage = nil
		rec.Status = models.StatusComplete
		rec.ProgressPercent = 100
		rec.FinalResponse = resp
		return nil
	})
	if err != nil {
		c.log.Error("failed to persist completed task", "task_id", taskID, "error", err)
		return
	}

	c.emitProgress(taskID, models.StageResponsePackaging, models.ActionComplete, "task complete")
	c.metrics.IncTaskCompleted(string(models.StatusComplete))
	readyPayload, _ := json.Marshal(map[string]any{"task_id": taskID, "success": true})
	if err := c.broker.PublishEvent(models.ResponseReadyChannel, readyPayload); err != nil {
		c.log.Warn("failed to publish response-ready event", "task_id", taskID, "error", err)
	}
	c.mirrorToState(taskID, updated)
	c.adaptive.ReportOutcome(ctx, taskID, map[string]any{
		"status":        string(updated.Status),
		"duration_ms":   resp.Metadata.DurationMS,
		"quality_score": resp.Metadata.QualityScore,
	})
}

// failTask marks a task failed, records the error, and emits an error
// progress event.
func (c *Coordinator) failTask(taskID, reason string) {
	updated, err := c.store.UpdateTask(taskID, func(rec *models.TaskRecord) error {
		rec.Status = models.StatusFailed
		rec.CurrentStage = nil
		rec.Error = reason
		return nil
	})
	if err != nil {
		c.log.Error("failed to persist failed task", "task_id", taskID, "error", err)
		return
	}
	c.emitProgress(taskID, "", models.ActionError, reason)
	c.metrics.IncTaskCompleted(string(models.StatusFailed))
	c.mirrorToState(taskID, updated)
}

func (c *Coordinator) emitProgress(taskID, stage, action, message string) {
	ev := models.NewProgressEvent(taskID, stage, action, message)
	if err := c.store.EmitProgress(ev); err != nil {
		c.log.Warn("failed to emit progress", "task_id", taskID, "error", err)
	}
	if c.state != nil {
		_ = c.state.StageLogs.Append(context.Background(), state.StageLog{
			TaskID: taskID, Stage: stage, Action: action, Message: message,
			Metadata: map[string]any{}, CreatedAt: time.Now(),
		})
	}
}

func (c *Coordinator) mirrorToState(taskID string, rec *models.TaskRecord) {
	if c.state == nil || rec == nil {
		return
	}
	if err := c.state.Tasks.Upsert(context.Background(), rec); err != nil {
		c.log.Warn("failed to mirror task to state manager", "task_id", taskID, "error", err)
	}
}

func decodeCompletion(payload []byte) (models.CompletionEvent, error) {
	var ev models.CompletionEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return models.CompletionEvent{}, err
	}
	return ev, nil
}
