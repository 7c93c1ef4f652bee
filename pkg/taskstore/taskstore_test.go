package taskstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindryd/askflash-mcp/pkg/models"
	"github.com/kindryd/askflash-mcp/test/util"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := util.StartTestNATS(t)
	s, err := Connect(Config{URL: url, Bucket: "mcp_tasks", StreamName: "mcp_task_streams", TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestCreateAndGetTask(t *testing.T) {
	s := newTestStore(t)

	rec, err := s.CreateTask("task-1", "user-1", "how does escalation work", "standard_query",
		[]string{models.StageIntentAnalysis, models.StageResponsePackaging})
	require.NoError(t, err)
	assert.Equal(t, models.StageIntentAnalysis, *rec.CurrentStage)
	assert.Equal(t, models.StatusInProgress, rec.Status)

	got, err := s.GetTask("task-1")
	require.NoError(t, err)
	assert.Equal(t, rec.TaskID, got.TaskID)
	assert.Equal(t, "user-1", got.UserID)
}

func TestGetTaskNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetTask("nonexistent")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestUpdateTaskAppliesUpdaterAndRefreshesTimestamp(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.CreateTask("task-2", "user-1", "q", "standard_query", []string{models.StageIntentAnalysis})
	require.NoError(t, err)
	firstUpdated := rec.UpdatedAt

	time.Sleep(5 * time.Millisecond)
	updated, err := s.UpdateTask("task-2", func(r *models.TaskRecord) error {
		r.Status = models.StatusComplete
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, updated.Status)
	assert.True(t, updated.UpdatedAt.After(firstUpdated))

	got, err := s.GetTask("task-2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, got.Status)
}

func TestUpdateTaskPropagatesUpdaterError(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateTask("task-3", "user-1", "q", "standard_query", []string{models.StageIntentAnalysis})
	require.NoError(t, err)

	sentinel := assert.AnError
	_, err = s.UpdateTask("task-3", func(r *models.TaskRecord) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestStageResultRoundTrip(t *testing.T) {
	s := newTestStore(t)
	result := map[string]any{"intent_classification": "procedural"}

	require.NoError(t, s.PutStageResult("task-4", models.StageIntentAnalysis, result))

	got, err := s.GetStageResult("task-4", models.StageIntentAnalysis)
	require.NoError(t, err)
	assert.Equal(t, "procedural", got["intent_classification"])
}

func TestGetStageResultNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetStageResult("task-missing", models.StageIntentAnalysis)
	assert.ErrorIs(t, err, ErrStageResultNotFound)
}

func TestAdaptiveRoundTrip(t *testing.T) {
	s := newTestStore(t)
	rec := models.Recommendations{Confidence: 0.8, ResponseStyle: map[string]any{"detail_level": "high"}}
	require.NoError(t, s.PutAdaptive("task-5", rec))

	got, err := s.GetAdaptive("task-5")
	require.NoError(t, err)
	assert.Equal(t, 0.8, got.Confidence)
}

func TestEmitAndReplayProgress(t *testing.T) {
	s := newTestStore(t)
	ev := models.NewProgressEvent("task-6", models.StageIntentAnalysis, models.ActionStageStart, "starting")
	require.NoError(t, s.EmitProgress(ev))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := s.ReplayProgress(ctx, "task-6")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "starting", events[0].Message)
}

func TestEmitAndReplayReact(t *testing.T) {
	s := newTestStore(t)
	step := models.NewReActStep("task-7", models.StageExecutorReasoning, "executor", models.StepThought, "considering sources")
	require.NoError(t, s.EmitReact(step))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	steps, err := s.ReplayReact(ctx, "task-7")
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, models.StepThought, steps[0].StepKind)
}

func TestListUserTasksFiltersByUser(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateTask("task-8", "user-a", "q", "standard_query", []string{models.StageIntentAnalysis})
	require.NoError(t, err)
	_, err = s.CreateTask("task-9", "user-b", "q", "standard_query", []string{models.StageIntentAnalysis})
	require.NoError(t, err)

	ids, err := s.ListUserTasks("user-a", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"task-8"}, ids)
}
