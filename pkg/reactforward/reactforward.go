// Package reactforward implements a stateless relay that pattern-subscribes
// to every task's ReAct channel and
// republishes a frontend-normalized payload. Its only state is the
// subscription itself, so a crash loses nothing durable — every step is
// still recoverable from the per-task stream the harness already appends
// to when it calls taskstore.EmitReact.
package reactforward

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kindryd/askflash-mcp/pkg/broker"
	"github.com/kindryd/askflash-mcp/pkg/models"
)

// reactWildcard is the pattern every per-task ReAct channel matches
// (models.ReactChannel(taskID) == "ai.react." + taskID). NATS wildcards
// only bind to a whole dot-delimited token, so the per-task segment must
// be the final token for "*" to match it.
const reactWildcard = "ai.react.*"

// frontendPrefix is where the normalized payload is republished, scoped
// per task the same way the source channel is.
const frontendPrefix = "frontend:stream:"

// frontendPayload is the normalized shape the frontend's WebSocket/SSE
// layer consumes.
type frontendPayload struct {
	Type      string    `json:"type"`
	Step      string    `json:"step"`
	Content   string    `json:"content"`
	Agent     string    `json:"agent"`
	Timestamp time.Time `json:"timestamp"`
}

// Forwarder owns the single long-running subscription.
type Forwarder struct {
	broker *broker.Broker
	log    *slog.Logger
}

// New builds a Forwarder.
func New(b *broker.Broker) *Forwarder {
	return &Forwarder{broker: b, log: slog.With("component", "reactforward")}
}

// Run subscribes and blocks until ctx is cancelled, restarting the
// subscription with backoff if it ever errors — this is the only
// long-running subscriber in the system and must survive individual
// backend hiccups.
func (f *Forwarder) Run(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := f.broker.Subscribe(ctx, reactWildcard, f.relay)
		if err == nil {
			// Subscribe only returns an error synchronously on subscribe
			// failure; successful subscriptions run until ctx is cancelled.
			<-ctx.Done()
			return
		}

		f.log.Warn("react subscription failed, retrying", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (f *Forwarder) relay(subject string, data []byte) {
	var step models.ReActStep
	if err := json.Unmarshal(data, &step); err != nil {
		f.log.Warn("failed to decode react step", "subject", subject, "error", err)
		return
	}

	payload := frontendPayload{
		Type:      "react",
		Step:      string(step.StepKind),
		Content:   step.Message,
		Agent:     step.AgentName,
		Timestamp: step.Timestamp,
	}
	out, err := json.Marshal(payload)
	if err != nil {
		f.log.Warn("failed to marshal frontend payload", "task_id", step.TaskID, "error", err)
		return
	}

	if err := f.broker.PublishEvent(frontendPrefix+step.TaskID, out); err != nil {
		f.log.Warn("failed to publish frontend stream payload", "task_id", step.TaskID, "error", err)
	}
}
