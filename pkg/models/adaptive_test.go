package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultRecommendationsNeverNil(t *testing.T) {
	rec := DefaultRecommendations()

	assert.NotNil(t, rec.ResponseStyle)
	assert.NotNil(t, rec.ContextOptimization)
	assert.NotNil(t, rec.ConversationFlow)
	assert.NotNil(t, rec.Personalization)
	assert.Equal(t, 0.4, rec.Confidence)
}
