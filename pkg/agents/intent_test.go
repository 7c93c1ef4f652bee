package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindryd/askflash-mcp/pkg/models"
)

func TestIntentAnalysisClassifiesQuestionWords(t *testing.T) {
	cases := []struct {
		query string
		want  string
	}{
		{"How do I roll back a deployment?", "procedural"},
		{"Why did the incident trigger?", "diagnostic"},
		{"What is the SLO for this service?", "informational"},
		{"Where do I request access?", "navigational"},
		{"Which team owns the on-call rotation?", "comparative"},
		{"Deploy the service now.", "informational"},
	}

	for _, tc := range cases {
		msg := models.NewTaskMessage("task-1", models.StageIntentAnalysis)
		msg.Query = tc.query

		result, err := IntentAnalysis(context.Background(), msg)
		require.NoError(t, err)
		assert.Equal(t, tc.want, result["intent_classification"], "query: %s", tc.query)
	}
}

func TestIntentAnalysisPicksStrategyByWordCount(t *testing.T) {
	short := models.NewTaskMessage("t", models.StageIntentAnalysis)
	short.Query = "What is on-call?"
	result, err := IntentAnalysis(context.Background(), short)
	require.NoError(t, err)
	assert.Equal(t, "direct_answer", result["processing_strategy"])

	long := models.NewTaskMessage("t", models.StageIntentAnalysis)
	for i := 0; i < 20; i++ {
		long.Query += "word "
	}
	result, err = IntentAnalysis(context.Background(), long)
	require.NoError(t, err)
	assert.Equal(t, "context_augmented", result["processing_strategy"])

	longer := models.NewTaskMessage("t", models.StageIntentAnalysis)
	for i := 0; i < 45; i++ {
		longer.Query += "word "
	}
	result, err = IntentAnalysis(context.Background(), longer)
	require.NoError(t, err)
	assert.Equal(t, "multi_step_research", result["processing_strategy"])
}
