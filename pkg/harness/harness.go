// Package harness implements the shared agent lifecycle every stage runs
// inside — consume from its stage queue,
// deserialize, bound the actual work with a per-message timeout, persist
// the structured result, publish the completion signal, and emit periodic
// health heartbeats. Agent bodies (pkg/agents) only supply the ProcessFunc;
// everything else here is identical across stages.
package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kindryd/askflash-mcp/pkg/broker"
	"github.com/kindryd/askflash-mcp/pkg/metrics"
	"github.com/kindryd/askflash-mcp/pkg/models"
	"github.com/kindryd/askflash-mcp/pkg/state"
	"github.com/kindryd/askflash-mcp/pkg/taskstore"
)

// ProcessFunc is the actual per-stage work body. A returned error wrapping
// broker.ErrTransient marks the failure retryable (the Coordinator retries
// the stage up to its own retry budget, independent of broker redelivery);
// anything else is reported as non-transient and the Coordinator fails the
// task without retrying the stage.
type ProcessFunc func(ctx context.Context, msg models.TaskMessage) (map[string]any, error)

// Config configures one Harness instance.
type Config struct {
	AgentName         string
	Stage             string
	Queue             string
	ProcessTimeout    time.Duration
	HeartbeatInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.ProcessTimeout <= 0 {
		c.ProcessTimeout = 60 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	return c
}

// Harness runs one agent identity's consume-process-persist-publish-heartbeat
// loop against a single stage queue.
type Harness struct {
	cfg     Config
	store   *taskstore.Store
	broker  *broker.Broker
	state   *state.Manager
	metrics *metrics.Metrics
	process ProcessFunc
	log     *slog.Logger

	processed atomic.Int64
	failed    atomic.Int64
}

// New builds a Harness. sm and m may be nil.
func New(cfg Config, store *taskstore.Store, b *broker.Broker, sm *state.Manager, m *metrics.Metrics, process ProcessFunc) *Harness {
	cfg = cfg.withDefaults()
	return &Harness{
		cfg:     cfg,
		store:   store,
		broker:  b,
		state:   sm,
		metrics: m,
		process: process,
		log:     slog.With("component", "harness", "agent", cfg.AgentName, "stage", cfg.Stage),
	}
}

// Run consumes cfg.Queue until ctx is cancelled, running the heartbeat loop
// alongside it.
func (h *Harness) Run(ctx context.Context) error {
	heartbeatCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go h.runHeartbeat(heartbeatCtx)

	h.log.Info("agent harness starting")
	return h.broker.ConsumeQueue(ctx, h.cfg.Queue, h.cfg.AgentName, h.handle)
}

// handle is the broker.Handler bound to this harness. Returning an error
// tells the broker to requeue (then dead-letter after its own retry
// budget); this is deliberately independent of the per-stage
// CompletionEvent.Transient signal the Coordinator consumes.
func (h *Harness) handle(ctx context.Context, msg models.TaskMessage) error {
	started := time.Now()
	h.emitReact(msg, models.StepThought, fmt.Sprintf("%s received task for stage %s", h.cfg.AgentName, msg.Stage))
	h.emitReact(msg, models.StepAction, fmt.Sprintf("%s starting", h.cfg.AgentName))

	procCtx, cancel := context.WithTimeout(ctx, h.cfg.ProcessTimeout)
	defer cancel()

	result, err := h.process(procCtx, msg)
	duration := time.Since(started)

	if err != nil {
		transient := errors.Is(err, broker.ErrTransient)
		h.failed.Add(1)
		h.log.Warn("stage processing failed", "task_id", msg.TaskID, "error", err, "transient", transient)
		h.publishCompletion(msg, models.CompletionEvent{Success: false, Error: err.Error(), Transient: transient})
		h.emitReact(msg, models.StepObservation, fmt.Sprintf("%s returned an error", h.cfg.AgentName))
		h.emitReact(msg, models.StepError, err.Error())
		h.recordPerformance(msg, duration, false, err.Error())
		h.metrics.ObserveStageDuration(h.cfg.Stage, "failed", duration.Seconds())
		return err
	}

	h.emitReact(msg, models.StepObservation, fmt.Sprintf("%s produced a result in %s", h.cfg.AgentName, duration.Round(time.Millisecond)))

	if err := h.store.PutStageResult(msg.TaskID, msg.Stage, result); err != nil {
		h.failed.Add(1)
		h.log.Error("failed to persist stage result", "task_id", msg.TaskID, "error", err)
		h.publishCompletion(msg, models.CompletionEvent{Success: false, Error: err.Error(), Transient: true})
		h.recordPerformance(msg, duration, false, err.Error())
		return err
	}

	h.processed.Add(1)
	h.publishCompletion(msg, models.CompletionEvent{Success: true, Summary: fmt.Sprintf("%s complete", h.cfg.Stage)})
	h.emitReact(msg, models.StepFinalAnswer, fmt.Sprintf("%s complete", h.cfg.Stage))
	h.recordPerformance(msg, duration, true, "")
	h.metrics.ObserveStageDuration(h.cfg.Stage, "success", duration.Seconds())
	return nil
}

func (h *Harness) publishCompletion(msg models.TaskMessage, partial models.CompletionEvent) {
	ev := models.CompletionEvent{
		Envelope: models.Envelope{
			TaskID:    msg.TaskID,
			Stage:     msg.Stage,
			Kind:      models.KindCompletion,
			Timestamp: time.Now(),
		},
		Success:   partial.Success,
		Summary:   partial.Summary,
		Error:     partial.Error,
		Transient: partial.Transient,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("failed to marshal completion event", "task_id", msg.TaskID, "error", err)
		return
	}
	if err := h.broker.PublishEvent(models.CompletionChannel(msg.Stage), data); err != nil {
		h.log.Error("failed to publish completion event", "task_id", msg.TaskID, "error", err)
	}
}

func (h *Harness) emitReact(msg models.TaskMessage, kind models.StepKind, message string) {
	step := models.NewReActStep(msg.TaskID, msg.Stage, h.cfg.AgentName, kind, message)
	if err := h.store.EmitReact(step); err != nil {
		h.log.Warn("failed to emit react step", "task_id", msg.TaskID, "error", err)
	}
}

func (h *Harness) recordPerformance(msg models.TaskMessage, d time.Duration, success bool, errMsg string) {
	if h.state == nil {
		return
	}
	sample := models.AgentPerformanceSample{
		AgentName:    h.cfg.AgentName,
		TaskID:       msg.TaskID,
		Stage:        msg.Stage,
		DurationMS:   d.Milliseconds(),
		Success:      success,
		ErrorMessage: errMsg,
		CreatedAt:    time.Now(),
	}
	if err := h.state.Agents.RecordPerformance(context.Background(), sample); err != nil {
		h.log.Warn("failed to record agent performance", "task_id", msg.TaskID, "error", err)
	}
}

// runHeartbeat emits an AgentHealth snapshot every HeartbeatInterval until
// ctx is cancelled.
func (h *Harness) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	h.heartbeatOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.heartbeatOnce(ctx)
		}
	}
}

func (h *Harness) heartbeatOnce(ctx context.Context) {
	queueSize := 0
	if status, err := h.broker.GetQueueStatus(h.cfg.Queue); err == nil {
		queueSize = status.MessageCount
		h.metrics.SetQueueDepth(h.cfg.Queue, queueSize)
	}

	health := models.AgentHealth{
		AgentName:      h.cfg.AgentName,
		Status:         models.AgentHealthy,
		LastHeartbeat:  time.Now(),
		QueueSize:      queueSize,
		ProcessedTasks: h.processed.Load(),
		FailedTasks:    h.failed.Load(),
	}
	h.metrics.IncHeartbeat(h.cfg.AgentName)

	if h.state == nil {
		return
	}
	if err := h.state.Agents.UpsertHealth(ctx, health); err != nil {
		h.log.Warn("failed to record heartbeat", "error", err)
	}
}
