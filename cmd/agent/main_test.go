package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindryd/askflash-mcp/pkg/agents"
	"github.com/kindryd/askflash-mcp/pkg/models"
)

func TestSelectStagesAllReturnsEveryStage(t *testing.T) {
	ws := agents.NewWebSearcher("", 0)
	specs, err := selectStages("all", ws)
	require.NoError(t, err)
	assert.Len(t, specs, 5)
}

func TestSelectStagesCommaSeparatedSubset(t *testing.T) {
	ws := agents.NewWebSearcher("", 0)
	specs, err := selectStages("intent_analysis, moderation", ws)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, models.StageIntentAnalysis, specs[0].stage)
	assert.Equal(t, models.StageModeration, specs[1].stage)
}

func TestSelectStagesUnknownStageErrors(t *testing.T) {
	ws := agents.NewWebSearcher("", 0)
	_, err := selectStages("not_a_stage", ws)
	assert.Error(t, err)
}

func TestSelectStagesEmptyValueErrors(t *testing.T) {
	ws := agents.NewWebSearcher("", 0)
	_, err := selectStages("", ws)
	assert.Error(t, err)
}
