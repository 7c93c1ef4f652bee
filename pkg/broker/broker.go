// Package broker implements the message broker abstraction on top of a
// single NATS JetStream connection: durable work-queue streams for
// per-stage task dispatch (competing consumers, prefetch=1) and core NATS
// publish/subscribe for the ephemeral event channels.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kindryd/askflash-mcp/pkg/models"
)

// DeadLetterSubject is the single dead-letter destination every queue's
// terminally-failed messages are republished to.
const DeadLetterSubject = "mcp.dead_letter"

// deadLetterStream is the JetStream stream backing DeadLetterSubject.
const deadLetterStream = "MCP_DEAD_LETTER"

// maxDeliver caps redelivery attempts per message: first failure requeues
// (redelivery 2), a second failure terminates and is dead-lettered.
const maxDeliver = 2

// ErrQueueFull is returned by PublishTask when a queue is at its configured
// max-length and reject-publish triggers: a rejected publish is a fatal
// task error, never a silent drop.
var ErrQueueFull = errors.New("broker: queue at max length")

// Handler processes one TaskMessage. Any non-nil error, transient or not,
// is Nak'd for redelivery on the first delivery and dead-lettered once the
// retry budget (maxDeliver) is exhausted; the broker does not inspect
// ErrTransient.
type Handler func(context.Context, models.TaskMessage) error

// ErrTransient marks a handler error as retryable.
var ErrTransient = errors.New("broker: transient handler error")

// QueueStatus reports queue depth and consumer count.
type QueueStatus struct {
	Name            string `json:"name"`
	MessageCount    int    `json:"message_count"`
	ConsumerCount   int    `json:"consumer_count"`
	Durable         bool   `json:"durable"`
}

// Broker is the concrete NATS-backed implementation of the message broker
// contract.
type Broker struct {
	nc       *nats.Conn
	js       nats.JetStreamContext
	maxLen   int
	prefetch int
}

// Config configures a new Broker.
type Config struct {
	URL            string
	QueueMaxLength int
	Prefetch       int
}

// KnownQueues are the stage queues this broker routes task dispatch
// through. "responses" carries no stage routing (it exists for parity
// with the wider wire layer) but is still declared so queue-status can
// report on it.
var KnownQueues = []string{
	"intent.task", "embedding.task", "executor.task",
	"moderator.task", "websearch.task", "responses",
}

// Connect dials NATS, opens a JetStream context, and declares the durable
// work-queue streams for every known queue plus the dead-letter stream.
func Connect(cfg Config) (*Broker, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("mcp-broker"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("broker: connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("broker: jetstream context: %w", err)
	}

	b := &Broker{nc: nc, js: js, maxLen: cfg.QueueMaxLength, prefetch: cfg.Prefetch}
	if b.maxLen <= 0 {
		b.maxLen = 1000
	}
	if b.prefetch <= 0 {
		b.prefetch = 1
	}

	for _, q := range KnownQueues {
		if err := b.declareQueue(q); err != nil {
			nc.Close()
			return nil, err
		}
	}
	if err := b.declareDeadLetter(); err != nil {
		nc.Close()
		return nil, err
	}

	return b, nil
}

func (b *Broker) declareQueue(name string) error {
	_, err := b.js.AddStream(&nats.StreamConfig{
		Name:      streamNameFor(name),
		Subjects:  []string{name},
		Retention: nats.WorkQueuePolicy,
		MaxAge:    10 * time.Minute,
		MaxMsgs:   int64(b.maxLen),
		Discard:   nats.DiscardNew,
		Storage:   nats.FileStorage,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("broker: declare queue %s: %w", name, err)
	}
	return nil
}

func (b *Broker) declareDeadLetter() error {
	_, err := b.js.AddStream(&nats.StreamConfig{
		Name:      deadLetterStream,
		Subjects:  []string{DeadLetterSubject},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("broker: declare dead letter: %w", err)
	}
	return nil
}

func streamNameFor(queue string) string {
	out := make([]byte, 0, len(queue)+4)
	out = append(out, "MCP_"...)
	for _, r := range queue {
		if r == '.' || r == '-' {
			out = append(out, '_')
			continue
		}
		out = append(out, byte(r))
	}
	return string(out)
}

// Close closes the underlying NATS connection without draining it.
func (b *Broker) Close() {
	b.nc.Close()
}

// PublishTask durably publishes a TaskMessage onto the named stage queue.
// Delivery persists through broker restart because the queue is backed by
// a JetStream stream.
func (b *Broker) PublishTask(ctx context.Context, queue string, msg models.TaskMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("broker: marshal task message: %w", err)
	}
	_, err = b.js.Publish(queue, data, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrMaxPayload) || isMaxMessagesErr(err) {
			return fmt.Errorf("%w: %s: %v", ErrQueueFull, queue, err)
		}
		return fmt.Errorf("broker: publish task to %s: %w", queue, err)
	}
	return nil
}

func isMaxMessagesErr(err error) bool {
	// JetStream reports overflow under DiscardNew as a 503-class API error;
	// nats.go surfaces it as a generic *nats.APIError whose description
	// contains "maximum messages exceeded".
	var apiErr *nats.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == 10077 || apiErr.Code == 503
	}
	return false
}

// ConsumeQueue starts a durable pull-consumer loop for queue, invoking
// handler for each message with prefetch=1 fairness across consumers. It
// runs until ctx is cancelled. First failure requeues (Nak); a second
// failure terminates the message and republishes it to the dead-letter
// subject.
func (b *Broker) ConsumeQueue(ctx context.Context, queue, consumerID string, handler Handler) error {
	sub, err := b.js.PullSubscribe(queue, queue+"-workers",
		nats.MaxAckPending(b.prefetch),
		nats.AckWait(30*time.Second),
		nats.MaxDeliver(maxDeliver),
	)
	if err != nil {
		return fmt.Errorf("broker: pull subscribe %s: %w", queue, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	log := slog.With("queue", queue, "consumer", consumerID)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(2*time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			log.Warn("fetch failed", "error", err)
			continue
		}

		for _, m := range msgs {
			b.handleOne(ctx, m, handler, log)
		}
	}
}

func (b *Broker) handleOne(ctx context.Context, m *nats.Msg, handler Handler, log *slog.Logger) {
	var msg models.TaskMessage
	if err := json.Unmarshal(m.Data, &msg); err != nil {
		log.Error("schema error, dead-lettering", "error", err)
		b.deadLetter(m.Data, "schema_error")
		_ = m.Term()
		return
	}

	if err := handler(ctx, msg); err != nil {
		meta, _ := m.Metadata()
		delivered := uint64(1)
		if meta != nil {
			delivered = meta.NumDelivered
		}
		if delivered >= maxDeliver {
			log.Error("handler failed, exhausted retries, dead-lettering",
				"task_id", msg.TaskID, "stage", msg.Stage, "error", err)
			b.deadLetter(m.Data, err.Error())
			_ = m.Term()
			return
		}
		log.Warn("handler failed, requeueing", "task_id", msg.TaskID, "stage", msg.Stage, "error", err)
		_ = m.Nak()
		return
	}
	_ = m.Ack()
}

func (b *Broker) deadLetter(data []byte, reason string) {
	envelope := struct {
		Reason  string          `json:"reason"`
		Payload json.RawMessage `json:"payload"`
	}{Reason: reason, Payload: data}
	out, _ := json.Marshal(envelope)
	if _, err := b.js.Publish(DeadLetterSubject, out); err != nil {
		slog.Error("failed to publish to dead letter queue", "error", err)
	}
}

// PublishEvent fire-and-forget publishes payload on channel.
func (b *Broker) PublishEvent(channel string, payload []byte) error {
	if err := b.nc.Publish(channel, payload); err != nil {
		return fmt.Errorf("broker: publish event %s: %w", channel, err)
	}
	return nil
}

// WaitForEvent subscribes to channel and returns the first payload whose
// "task_id" field matches taskID, or nil on timeout. It always unsubscribes
// on exit, including on timeout and context cancellation.
func (b *Broker) WaitForEvent(ctx context.Context, channel, taskID string, timeout time.Duration) ([]byte, error) {
	sub, err := b.nc.SubscribeSync(channel)
	if err != nil {
		return nil, fmt.Errorf("broker: subscribe %s: %w", channel, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		waitCtx, cancel := context.WithTimeout(ctx, remaining)
		msg, err := sub.NextMsgWithContext(waitCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
				return nil, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("broker: wait for event on %s: %w", channel, err)
		}

		var probe struct {
			TaskID string `json:"task_id"`
		}
		if err := json.Unmarshal(msg.Data, &probe); err != nil {
			continue
		}
		if probe.TaskID == taskID {
			return msg.Data, nil
		}
	}
}

// Subscribe pattern-subscribes to subject (which may use NATS wildcards,
// e.g. "ai.react.*" — wildcards only bind to a whole dot-delimited token,
// so every per-task channel this is used with must be dot-separated) and
// delivers every message to handler until ctx is cancelled. Used by the
// ReActForwarder.
func (b *Broker) Subscribe(ctx context.Context, subject string, handler func(subj string, data []byte)) error {
	sub, err := b.nc.Subscribe(subject, func(m *nats.Msg) {
		handler(m.Subject, m.Data)
	})
	if err != nil {
		return fmt.Errorf("broker: subscribe %s: %w", subject, err)
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

// GetQueueStatus reports the current depth and consumer count for queue.
func (b *Broker) GetQueueStatus(queue string) (QueueStatus, error) {
	info, err := b.js.StreamInfo(streamNameFor(queue))
	if err != nil {
		return QueueStatus{}, fmt.Errorf("broker: stream info for %s: %w", queue, err)
	}
	consumers := 0
	ci, err := b.js.ConsumerInfo(streamNameFor(queue), queue+"-workers")
	if err == nil && ci != nil {
		consumers = ci.NumWaiting
	}
	return QueueStatus{
		Name:          queue,
		MessageCount:  int(info.State.Msgs),
		ConsumerCount: consumers,
		Durable:       true,
	}, nil
}
