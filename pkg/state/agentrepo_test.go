package state_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindryd/askflash-mcp/pkg/models"
	"github.com/kindryd/askflash-mcp/test/util"
)

func TestAgentRepoRecordPerformanceAndSummarize(t *testing.T) {
	mgr := util.NewTestStateManager(t)
	ctx := context.Background()
	since := time.Now().UTC().Add(-time.Hour)

	samples := []models.AgentPerformanceSample{
		{AgentName: "intent_analysis", TaskID: "task-p1", Stage: models.StageIntentAnalysis, DurationMS: 100, Success: true, CreatedAt: time.Now().UTC()},
		{AgentName: "intent_analysis", TaskID: "task-p2", Stage: models.StageIntentAnalysis, DurationMS: 200, Success: true, CreatedAt: time.Now().UTC()},
		{AgentName: "intent_analysis", TaskID: "task-p3", Stage: models.StageIntentAnalysis, DurationMS: 300, Success: false, ErrorMessage: "timeout", CreatedAt: time.Now().UTC()},
	}
	for _, s := range samples {
		require.NoError(t, mgr.Agents.RecordPerformance(ctx, s))
	}

	summary, err := mgr.Agents.PerformanceSummary(ctx, "intent_analysis", since)
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.TotalRuns)
	assert.Equal(t, int64(2), summary.SuccessRuns)
	assert.Equal(t, int64(1), summary.FailureRuns)
	assert.InDelta(t, 200, summary.AvgDurationMS, 0.01)
}

func TestAgentRepoPerformanceSummaryEmptyForUnknownAgent(t *testing.T) {
	mgr := util.NewTestStateManager(t)
	summary, err := mgr.Agents.PerformanceSummary(context.Background(), "nobody", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.TotalRuns)
}

func TestAgentRepoUpsertHealthAndAllHealth(t *testing.T) {
	mgr := util.NewTestStateManager(t)
	ctx := context.Background()

	h := models.AgentHealth{
		AgentName: "executor", Status: models.AgentHealthy, LastHeartbeat: time.Now().UTC(),
		CPUUsage: 0.25, MemoryUsage: 0.4, QueueSize: 3, ProcessedTasks: 10, FailedTasks: 1,
		Metadata: map[string]any{"version": "1.0"},
	}
	require.NoError(t, mgr.Agents.UpsertHealth(ctx, h))

	h.Status = models.AgentUnhealthy
	h.QueueSize = 9
	require.NoError(t, mgr.Agents.UpsertHealth(ctx, h))

	other := models.AgentHealth{AgentName: "embedding_lookup", Status: models.AgentHealthy, LastHeartbeat: time.Now().UTC()}
	require.NoError(t, mgr.Agents.UpsertHealth(ctx, other))

	all, err := mgr.Agents.AllHealth(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "embedding_lookup", all[0].AgentName)
	assert.Equal(t, "executor", all[1].AgentName)
	assert.Equal(t, models.AgentUnhealthy, all[1].Status)
	assert.Equal(t, 9, all[1].QueueSize)
	assert.Equal(t, "1.0", all[1].Metadata["version"])
}
