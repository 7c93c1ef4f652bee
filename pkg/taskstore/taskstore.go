// Package taskstore implements low-latency, TTL-bounded storage for
// TaskRecords and per-stage results on a JetStream
// KV bucket, append-only progress/ReAct streams on a JetStream stream, and
// pub/sub fan-out on core NATS subjects.
package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kindryd/askflash-mcp/pkg/models"
)

// ErrTaskNotFound is returned by GetTask when the key has expired or never
// existed.
var ErrTaskNotFound = errors.New("taskstore: task not found")

// ErrStageResultNotFound is returned by GetStageResult for a missing key.
var ErrStageResultNotFound = errors.New("taskstore: stage result not found")

// streamRetain is how many of the most recent entries each per-task
// progress/ReAct stream subject keeps.
const streamRetain = 200

// Config configures a new Store.
type Config struct {
	URL         string
	Bucket      string
	StreamName  string
	TTL         time.Duration
}

// Store is the concrete JetStream-backed TaskStore.
type Store struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	kv  nats.KeyValue
	ttl time.Duration
}

// Connect dials NATS (or reuses an existing connection when called from the
// same process as the Broker) and provisions the KV bucket and stream.
func Connect(cfg Config) (*Store, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("mcp-taskstore"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("taskstore: connect: %w", err)
	}
	return newStore(nc, cfg)
}

// ConnectUsing builds a Store on top of an already-open *nats.Conn (shared
// with the Broker), avoiding a second TCP connection per process.
func ConnectUsing(nc *nats.Conn, cfg Config) (*Store, error) {
	return newStore(nc, cfg)
}

func newStore(nc *nats.Conn, cfg Config) (*Store, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("taskstore: jetstream context: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	kv, err := js.KeyValue(cfg.Bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket: cfg.Bucket,
			TTL:    ttl,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("taskstore: open kv bucket %s: %w", cfg.Bucket, err)
	}

	streamName := cfg.StreamName
	if streamName == "" {
		streamName = "mcp_task_streams"
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:              streamName,
		Subjects:          []string{"stream.progress.>", "stream.react.>"},
		Retention:         nats.LimitsPolicy,
		MaxMsgsPerSubject: streamRetain,
		MaxAge:            ttl,
		Storage:           nats.FileStorage,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return nil, fmt.Errorf("taskstore: declare stream %s: %w", streamName, err)
	}

	return &Store{nc: nc, js: js, kv: kv, ttl: ttl}, nil
}

// Close closes the underlying NATS connection when the Store owns it
// exclusively (use Close only on a Store built with Connect, not
// ConnectUsing).
func (s *Store) Close() { s.nc.Close() }

// CreateTask assigns a task_id, seeds the TaskRecord with plan[0] as the
// current stage, and writes it with the store's TTL.
func (s *Store) CreateTask(taskID, userID, query, templateName string, plan []string) (*models.TaskRecord, error) {
	now := time.Now()
	var current *string
	if len(plan) > 0 {
		c := plan[0]
		current = &c
	}
	rec := &models.TaskRecord{
		TaskID:          taskID,
		UserID:          userID,
		Query:           query,
		TemplateName:    templateName,
		Plan:            plan,
		CurrentStage:    current,
		CompletedStages: []string{},
		Status:          models.StatusInProgress,
		ProgressPercent: 0,
		PerStageResults: make(map[string]map[string]any),
		StartedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.putTask(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetTask reads the current TaskRecord, or ErrTaskNotFound if it has
// expired or never existed.
func (s *Store) GetTask(taskID string) (*models.TaskRecord, error) {
	entry, err := s.kv.Get(models.TaskKey(taskID))
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("taskstore: get task %s: %w", taskID, err)
	}
	var rec models.TaskRecord
	if err := json.Unmarshal(entry.Value(), &rec); err != nil {
		return nil, fmt.Errorf("taskstore: decode task %s: %w", taskID, err)
	}
	return &rec, nil
}

// UpdateTask performs a read-modify-write of the TaskRecord, refreshing its
// TTL. The updater mutates rec in place; returning an error aborts the
// write.
func (s *Store) UpdateTask(taskID string, updater func(rec *models.TaskRecord) error) (*models.TaskRecord, error) {
	rec, err := s.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if err := updater(rec); err != nil {
		return nil, err
	}
	rec.UpdatedAt = time.Now()
	if err := s.putTask(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) putTask(rec *models.TaskRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("taskstore: marshal task %s: %w", rec.TaskID, err)
	}
	if _, err := s.kv.Put(models.TaskKey(rec.TaskID), data); err != nil {
		return fmt.Errorf("taskstore: put task %s: %w", rec.TaskID, err)
	}
	return nil
}

// PutStageResult writes result under the stage-scoped key; the agent
// handling that stage is the single writer.
func (s *Store) PutStageResult(taskID, stage string, result map[string]any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("taskstore: marshal stage result %s/%s: %w", taskID, stage, err)
	}
	if _, err := s.kv.Put(models.StageResultKey(taskID, stage), data); err != nil {
		return fmt.Errorf("taskstore: put stage result %s/%s: %w", taskID, stage, err)
	}
	return nil
}

// GetStageResult reads a stage-scoped result written by PutStageResult.
func (s *Store) GetStageResult(taskID, stage string) (map[string]any, error) {
	entry, err := s.kv.Get(models.StageResultKey(taskID, stage))
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, ErrStageResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("taskstore: get stage result %s/%s: %w", taskID, stage, err)
	}
	var result map[string]any
	if err := json.Unmarshal(entry.Value(), &result); err != nil {
		return nil, fmt.Errorf("taskstore: decode stage result %s/%s: %w", taskID, stage, err)
	}
	return result, nil
}

// PutAdaptive stashes the adaptive recommendations for a task.
func (s *Store) PutAdaptive(taskID string, rec models.Recommendations) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("taskstore: marshal adaptive %s: %w", taskID, err)
	}
	if _, err := s.kv.Put(models.AdaptiveKey(taskID), data); err != nil {
		return fmt.Errorf("taskstore: put adaptive %s: %w", taskID, err)
	}
	return nil
}

// GetAdaptive reads the stashed adaptive recommendations for a task.
func (s *Store) GetAdaptive(taskID string) (models.Recommendations, error) {
	entry, err := s.kv.Get(models.AdaptiveKey(taskID))
	if err != nil {
		return models.Recommendations{}, fmt.Errorf("taskstore: get adaptive %s: %w", taskID, err)
	}
	var rec models.Recommendations
	if err := json.Unmarshal(entry.Value(), &rec); err != nil {
		return models.Recommendations{}, fmt.Errorf("taskstore: decode adaptive %s: %w", taskID, err)
	}
	return rec, nil
}

// EmitProgress publishes a ProgressEvent on the per-task progress channel
// and appends it to the durable progress stream.
func (s *Store) EmitProgress(ev models.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("taskstore: marshal progress event: %w", err)
	}
	if err := s.nc.Publish(models.ProgressChannel(ev.TaskID), data); err != nil {
		return fmt.Errorf("taskstore: publish progress event: %w", err)
	}
	if _, err := s.js.Publish(models.ProgressStreamKey(ev.TaskID), data); err != nil {
		return fmt.Errorf("taskstore: append progress stream: %w", err)
	}
	return nil
}

// EmitReact publishes a ReActStep on the per-task ReAct channel and appends
// it to the durable ReAct stream.
func (s *Store) EmitReact(step models.ReActStep) error {
	data, err := json.Marshal(step)
	if err != nil {
		return fmt.Errorf("taskstore: marshal react step: %w", err)
	}
	if err := s.nc.Publish(models.ReactChannel(step.TaskID), data); err != nil {
		return fmt.Errorf("taskstore: publish react step: %w", err)
	}
	if _, err := s.js.Publish(models.ReactStreamKey(step.TaskID), data); err != nil {
		return fmt.Errorf("taskstore: append react stream: %w", err)
	}
	return nil
}

// ReplayProgress returns the durable progress stream tail for a task, in
// append order, for clients that prefer polling over subscribing.
func (s *Store) ReplayProgress(ctx context.Context, taskID string) ([]models.ProgressEvent, error) {
	raws, err := s.replay(ctx, models.ProgressStreamKey(taskID))
	if err != nil {
		return nil, err
	}
	out := make([]models.ProgressEvent, 0, len(raws))
	for _, raw := range raws {
		var ev models.ProgressEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// ReplayReact returns the durable ReAct stream tail for a task, in append
// order.
func (s *Store) ReplayReact(ctx context.Context, taskID string) ([]models.ReActStep, error) {
	raws, err := s.replay(ctx, models.ReactStreamKey(taskID))
	if err != nil {
		return nil, err
	}
	out := make([]models.ReActStep, 0, len(raws))
	for _, raw := range raws {
		var step models.ReActStep
		if err := json.Unmarshal(raw, &step); err != nil {
			continue
		}
		out = append(out, step)
	}
	return out, nil
}

func (s *Store) replay(ctx context.Context, subject string) ([][]byte, error) {
	sub, err := s.js.SubscribeSync(subject, nats.DeliverAll(), nats.ReplayInstant())
	if err != nil {
		return nil, fmt.Errorf("taskstore: replay subscribe %s: %w", subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	var out [][]byte
	for {
		waitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		msg, err := sub.NextMsgWithContext(waitCtx)
		cancel()
		if err != nil {
			break
		}
		out = append(out, msg.Data)
		_ = msg.Ack()
	}
	return out, nil
}

// ListUserTasks is intentionally minimal: the JetStream KV bucket has no
// secondary index by user_id, so this core relies on StateManager
// (pkg/state) for the durable, query-able task history. ListUserTasks
// here only serves tasks still live in the fast store, used by
// ControlAPI as a best-effort recency hint.
func (s *Store) ListUserTasks(userID string, limit int) ([]string, error) {
	keys, err := s.kv.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("taskstore: list keys: %w", err)
	}
	var ids []string
	for _, k := range keys {
		const prefix = "task:"
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			entry, err := s.kv.Get(k)
			if err != nil {
				continue
			}
			var rec models.TaskRecord
			if err := json.Unmarshal(entry.Value(), &rec); err != nil {
				continue
			}
			if rec.UserID == userID {
				ids = append(ids, rec.TaskID)
			}
		}
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	return ids, nil
}
