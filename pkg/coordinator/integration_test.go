package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindryd/askflash-mcp/pkg/models"
)

func TestAppendDedupeKeepsEarliestOnCollision(t *testing.T) {
	existing := []models.SourceHit{{ID: "a", Title: "first"}}
	incoming := []models.SourceHit{{ID: "a", Title: "second"}, {ID: "b", Title: "new"}}

	out := appendDedupe(existing, incoming)

	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].Title)
	assert.Equal(t, "b", out[1].ID)
}

func TestAppendDedupePreservesOrder(t *testing.T) {
	existing := []models.SourceHit{{ID: "x"}, {ID: "y"}}
	incoming := []models.SourceHit{{ID: "z"}}

	out := appendDedupe(existing, incoming)

	require.Len(t, out, 3)
	assert.Equal(t, []string{"x", "y", "z"}, []string{out[0].ID, out[1].ID, out[2].ID})
}

func TestSourceHitsRoundTrip(t *testing.T) {
	rec := &models.TaskRecord{}

	assert.Nil(t, sourceHits(rec))

	hits := []models.SourceHit{{ID: "a", Score: 0.5}}
	setSourceHits(rec, hits)

	got := sourceHits(rec)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, 0.5, got[0].Score)
}

func TestAdvanceDAGMovesToNextStage(t *testing.T) {
	stage := models.StageIntentAnalysis
	rec := &models.TaskRecord{
		Plan:         []string{models.StageIntentAnalysis, models.StageEmbeddingLookup, models.StageResponsePackaging},
		CurrentStage: &stage,
	}

	advanceDAG(rec)

	require.NotNil(t, rec.CurrentStage)
	assert.Equal(t, models.StageEmbeddingLookup, *rec.CurrentStage)
	assert.Equal(t, []string{models.StageIntentAnalysis}, rec.CompletedStages)
	assert.Equal(t, 33, rec.ProgressPercent)
}

func TestAdvanceDAGClearsCurrentStageAtEnd(t *testing.T) {
	stage := models.StageResponsePackaging
	rec := &models.TaskRecord{
		Plan:         []string{models.StageIntentAnalysis, models.StageResponsePackaging},
		CompletedStages: []string{models.StageIntentAnalysis},
		CurrentStage: &stage,
	}

	advanceDAG(rec)

	assert.Nil(t, rec.CurrentStage)
	assert.Equal(t, 100, rec.ProgressPercent)
}

func TestAdvanceDAGNoopWhenCurrentStageNil(t *testing.T) {
	rec := &models.TaskRecord{Plan: []string{models.StageIntentAnalysis}}
	advanceDAG(rec)
	assert.Nil(t, rec.CurrentStage)
	assert.Empty(t, rec.CompletedStages)
}

func TestIntegrateStageResultEmbeddingLookupMergesContext(t *testing.T) {
	rec := &models.TaskRecord{}
	result := map[string]any{
		"context":   "some retrieved context",
		"documents": []map[string]any{{"id": "doc1", "score": 0.8}},
	}

	err := integrateStageResult(rec, models.StageEmbeddingLookup, result)
	require.NoError(t, err)

	assert.Equal(t, "some retrieved context", rec.Context)
	hits := sourceHits(rec)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc1", hits[0].ID)
}

func TestIntegrateStageResultWebSearchMergesWithExistingHits(t *testing.T) {
	rec := &models.TaskRecord{}
	setSourceHits(rec, []models.SourceHit{{ID: "doc1", Score: 0.5}})

	result := map[string]any{
		"documents": []map[string]any{{"id": "doc2", "score": 0.7}},
	}

	err := integrateStageResult(rec, models.StageWebSearch, result)
	require.NoError(t, err)

	hits := sourceHits(rec)
	require.Len(t, hits, 2)
	assert.Equal(t, "doc1", hits[0].ID)
	assert.Equal(t, "doc2", hits[1].ID)
}

func TestIntegrateStageResultUnknownStageIsNoop(t *testing.T) {
	rec := &models.TaskRecord{}
	err := integrateStageResult(rec, models.StageIntentAnalysis, map[string]any{"intent_classification": "x"})
	assert.NoError(t, err)
}

func TestIntegrateStageResultInvalidDocumentsErrors(t *testing.T) {
	rec := &models.TaskRecord{}
	result := map[string]any{"documents": func() {}}

	err := integrateStageResult(rec, models.StageEmbeddingLookup, result)
	assert.Error(t, err)
}
