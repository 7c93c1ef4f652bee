package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindryd/askflash-mcp/pkg/models"
)

func TestExecutorReasoningUsesAccumulatedContext(t *testing.T) {
	msg := models.NewTaskMessage("task-1", models.StageExecutorReasoning)
	msg.Query = "How does on-call escalation work?"
	msg.Context = "The on-call rotation follows a weekly handoff schedule."
	msg.AdaptiveRecommendations = models.DefaultRecommendations()

	result, err := ExecutorReasoning(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, msg.Context, result["content"])
	assert.InDelta(t, 0.45, result["confidence"], 0.001)
}

func TestExecutorReasoningFallsBackToTitlesWithoutContext(t *testing.T) {
	msg := models.NewTaskMessage("task-1", models.StageExecutorReasoning)
	msg.Query = "How does on-call escalation work?"
	msg.AdaptiveRecommendations = models.DefaultRecommendations()
	msg.PerStageResults[models.StageEmbeddingLookup] = map[string]any{
		"documents": []any{
			map[string]any{"id": "d1", "title": "On-call rotation policy", "score": 0.9},
		},
	}

	result, err := ExecutorReasoning(context.Background(), msg)
	require.NoError(t, err)

	assert.Contains(t, result["content"], "On-call rotation policy")
	assert.InDelta(t, 0.55, result["confidence"], 0.001)
}

func TestExecutorReasoningNoMaterialLowConfidence(t *testing.T) {
	msg := models.NewTaskMessage("task-1", models.StageExecutorReasoning)
	msg.Query = "Something unanswerable"
	msg.AdaptiveRecommendations = models.DefaultRecommendations()

	result, err := ExecutorReasoning(context.Background(), msg)
	require.NoError(t, err)

	assert.Contains(t, result["content"], "do not have enough indexed material")
	assert.InDelta(t, 0.45, result["confidence"], 0.001)
}

func TestExecutorReasoningMergesSourcesAcrossStages(t *testing.T) {
	msg := models.NewTaskMessage("task-1", models.StageExecutorReasoning)
	msg.Query = "What does our deploy runbook say?"
	msg.AdaptiveRecommendations = models.DefaultRecommendations()
	msg.PerStageResults[models.StageEmbeddingLookup] = map[string]any{
		"documents": []any{map[string]any{"id": "d1", "title": "Deployment runbook", "score": 0.8}},
	}
	msg.PerStageResults[models.StageWebSearch] = map[string]any{
		"documents": []any{map[string]any{"id": "w1", "title": "External release notes", "score": 0.7}},
	}

	result, err := ExecutorReasoning(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, 2, result["reasoning_metadata"].(map[string]any)["sources_considered"])
	assert.InDelta(t, 0.625, result["confidence"], 0.001)
}

func TestSummarizeRespectsDetailLevel(t *testing.T) {
	text := ""
	for i := 0; i < 200; i++ {
		text += "word "
	}

	assert.LessOrEqual(t, len(summarize(text, "concise")), 163)
	assert.LessOrEqual(t, len(summarize(text, "detailed")), 803)
	assert.Equal(t, "short text", summarize("short text", "moderate"))
}
