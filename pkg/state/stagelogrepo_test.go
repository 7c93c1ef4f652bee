package state_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindryd/askflash-mcp/pkg/models"
	"github.com/kindryd/askflash-mcp/pkg/state"
	"github.com/kindryd/askflash-mcp/test/util"
)

func TestStageLogRepoAppendAndListByTask(t *testing.T) {
	mgr := util.NewTestStateManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.Tasks.Upsert(ctx, sampleTask("task-log-1", "user-1", "standard_query", models.StatusInProgress)))

	first := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, mgr.StageLogs.Append(ctx, state.StageLog{
		TaskID: "task-log-1", Stage: models.StageIntentAnalysis, Action: "stage_start",
		Message: "starting", Metadata: map[string]any{"attempt": float64(1)}, CreatedAt: first,
	}))
	second := first.Add(time.Second)
	require.NoError(t, mgr.StageLogs.Append(ctx, state.StageLog{
		TaskID: "task-log-1", Stage: models.StageIntentAnalysis, Action: "stage_complete",
		Message: "done", Metadata: map[string]any{}, CreatedAt: second,
	}))

	logs, err := mgr.StageLogs.ListByTask(ctx, "task-log-1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "stage_start", logs[0].Action)
	assert.Equal(t, "stage_complete", logs[1].Action)
	assert.Equal(t, float64(1), logs[0].Metadata["attempt"])
}

func TestStageLogRepoListByTaskEmptyForUnknownTask(t *testing.T) {
	mgr := util.NewTestStateManager(t)
	logs, err := mgr.StageLogs.ListByTask(context.Background(), "no-such-task")
	require.NoError(t, err)
	assert.Empty(t, logs)
}
