package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindryd/askflash-mcp/pkg/models"
)

func TestEmbeddingLookupFindsRelevantDocument(t *testing.T) {
	msg := models.NewTaskMessage("task-1", models.StageEmbeddingLookup)
	msg.Query = "What is the on-call rotation schedule?"

	result, err := EmbeddingLookup(context.Background(), msg)
	require.NoError(t, err)

	docs, ok := result["documents"].([]models.SourceHit)
	require.True(t, ok)
	require.NotEmpty(t, docs)
	assert.Equal(t, "d1", docs[0].ID)
	assert.NotEmpty(t, result["context"])
}

func TestEmbeddingLookupCapsAtThreeHits(t *testing.T) {
	msg := models.NewTaskMessage("task-1", models.StageEmbeddingLookup)
	msg.Query = "on-call escalation deployment SLO access"

	result, err := EmbeddingLookup(context.Background(), msg)
	require.NoError(t, err)

	docs := result["documents"].([]models.SourceHit)
	assert.LessOrEqual(t, len(docs), 3)
}

func TestEmbeddingLookupNoMatchReturnsEmpty(t *testing.T) {
	msg := models.NewTaskMessage("task-1", models.StageEmbeddingLookup)
	msg.Query = "xyzzy nonexistent gibberish term"

	result, err := EmbeddingLookup(context.Background(), msg)
	require.NoError(t, err)

	docs := result["documents"].([]models.SourceHit)
	assert.Empty(t, docs)
	assert.Equal(t, "", result["context"])
}

func TestOverlapScoreIgnoresShortTokens(t *testing.T) {
	query := tokenize("is a on-call")
	candidate := tokenize("on-call rotation")
	score := overlapScore(query, candidate)
	assert.Greater(t, score, 0.0)
}
