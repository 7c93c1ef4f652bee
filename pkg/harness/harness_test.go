package harness

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindryd/askflash-mcp/pkg/broker"
	"github.com/kindryd/askflash-mcp/pkg/models"
	"github.com/kindryd/askflash-mcp/pkg/taskstore"
	"github.com/kindryd/askflash-mcp/test/util"
)

func newTestRig(t *testing.T) (*broker.Broker, *taskstore.Store) {
	t.Helper()
	url := util.StartTestNATS(t)

	b, err := broker.Connect(broker.Config{URL: url, QueueMaxLength: 10, Prefetch: 1})
	require.NoError(t, err)
	t.Cleanup(b.Close)

	s, err := taskstore.Connect(taskstore.Config{URL: url, Bucket: "mcp_tasks", StreamName: "mcp_task_streams", TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return b, s
}

func TestHarnessRunPersistsResultAndPublishesCompletion(t *testing.T) {
	b, store := newTestRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := store.CreateTask("task-1", "user-1", "how do deployments roll back", "standard_query",
		[]string{models.StageIntentAnalysis})
	require.NoError(t, err)

	h := New(Config{
		AgentName:         "intent_analysis",
		Stage:             models.StageIntentAnalysis,
		Queue:             "intent.task",
		ProcessTimeout:    time.Second,
		HeartbeatInterval: 20 * time.Millisecond,
	}, store, b, nil, nil, func(_ context.Context, msg models.TaskMessage) (map[string]any, error) {
		return map[string]any{"intent_classification": "procedural"}, nil
	})

	go func() { _ = h.Run(ctx) }()

	completion := make(chan []byte, 1)
	require.NoError(t, b.Subscribe(ctx, models.CompletionChannel(models.StageIntentAnalysis), func(_ string, data []byte) {
		completion <- data
	}))
	time.Sleep(50 * time.Millisecond)

	msg := models.NewTaskMessage("task-1", models.StageIntentAnalysis)
	require.NoError(t, b.PublishTask(ctx, "intent.task", msg))

	select {
	case data := <-completion:
		assert.Contains(t, string(data), `"success":true`)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion event")
	}

	result, err := store.GetStageResult("task-1", models.StageIntentAnalysis)
	require.NoError(t, err)
	assert.Equal(t, "procedural", result["intent_classification"])
}

func TestHarnessRunPublishesFailureOnProcessError(t *testing.T) {
	b, store := newTestRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New(Config{
		AgentName:      "intent_analysis",
		Stage:          models.StageIntentAnalysis,
		Queue:          "intent.task",
		ProcessTimeout: time.Second,
	}, store, b, nil, nil, func(_ context.Context, _ models.TaskMessage) (map[string]any, error) {
		return nil, errors.New("boom")
	})

	go func() { _ = h.Run(ctx) }()

	completion := make(chan []byte, 1)
	require.NoError(t, b.Subscribe(ctx, models.CompletionChannel(models.StageIntentAnalysis), func(_ string, data []byte) {
		completion <- data
	}))
	time.Sleep(50 * time.Millisecond)

	msg := models.NewTaskMessage("task-2", models.StageIntentAnalysis)
	require.NoError(t, b.PublishTask(ctx, "intent.task", msg))

	select {
	case data := <-completion:
		assert.Contains(t, string(data), `"success":false`)
		assert.Contains(t, string(data), "boom")
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for failure completion event")
	}
}
