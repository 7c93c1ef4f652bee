package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindryd/askflash-mcp/pkg/models"
	"github.com/kindryd/askflash-mcp/pkg/taskstore"
	"github.com/kindryd/askflash-mcp/test/util"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	url := util.StartTestNATS(t)
	store, err := taskstore.Connect(taskstore.Config{URL: url, Bucket: "mcp_tasks", StreamName: "mcp_task_streams", TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return New(store, nil, nil, nil, nil, Config{})
}

func TestPackageResponseCombinesExecutorAndModeration(t *testing.T) {
	c := newTestCoordinator(t)

	task := &models.TaskRecord{
		TaskID:    "task-1",
		Plan:      []string{models.StageIntentAnalysis, models.StageExecutorReasoning, models.StageModeration, models.StageResponsePackaging},
		StartedAt: time.Now().Add(-2 * time.Second),
		PerStageResults: map[string]map[string]any{
			models.StageExecutorReasoning: {"content": "rollbacks use the deploy tool's revert command", "confidence": 0.8},
			models.StageModeration:        {"approved": true, "safety_score": 0.7, "reason": ""},
		},
	}

	require.NoError(t, c.store.EmitReact(models.NewReActStep("task-1", models.StageIntentAnalysis, "intent_analysis", models.StepThought, "classifying")))
	require.NoError(t, c.store.EmitReact(models.NewReActStep("task-1", models.StageExecutorReasoning, "executor", models.StepFinalAnswer, "done")))

	resp, err := c.packageResponse(task)
	require.NoError(t, err)
	assert.Equal(t, "rollbacks use the deploy tool's revert command", resp.Content)
	assert.Equal(t, 0.7, resp.Confidence) // min(0.8, 0.7) moderation caps executor confidence
	assert.Equal(t, 0.7, resp.Metadata.SafetyScore)
	assert.Equal(t, 4, resp.Metadata.TotalStages)
	assert.Equal(t, 2, resp.Metadata.ReactCount)
	assert.Equal(t, 2, resp.Metadata.AgentCount)
	assert.Len(t, resp.ReactSteps, 2)
}

func TestPackageResponseDefaultsWhenStagesMissing(t *testing.T) {
	c := newTestCoordinator(t)

	task := &models.TaskRecord{
		TaskID:    "task-2",
		Plan:      []string{models.StageIntentAnalysis},
		StartedAt: time.Now(),
	}

	resp, err := c.packageResponse(task)
	require.NoError(t, err)
	assert.Equal(t, "", resp.Content)
	assert.Equal(t, 1.0, resp.Confidence)
	assert.Equal(t, 1.0, resp.Metadata.SafetyScore)
	assert.Empty(t, resp.Sources)
}
