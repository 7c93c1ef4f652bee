package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinTemplatesFiveNamed(t *testing.T) {
	templates := BuiltinTemplates()
	require.Len(t, templates, 5)

	for _, name := range []string{
		"standard_query", "simple_lookup", "complex_research", "web_enhanced", "quick_answer",
	} {
		tmpl, ok := templates[name]
		require.Truef(t, ok, "missing template %q", name)
		assert.NotEmpty(t, tmpl.Stages)
		assert.Equal(t, name, tmpl.Name)
	}
}

func TestBuiltinTemplatesEndInResponsePackaging(t *testing.T) {
	for name, tmpl := range BuiltinTemplates() {
		last := tmpl.Stages[len(tmpl.Stages)-1]
		assert.Equalf(t, StageResponsePackaging, last, "template %q must end in response_packaging", name)
	}
}

func TestStageQueueCoversEveryDispatchedStage(t *testing.T) {
	for _, stage := range []string{
		StageIntentAnalysis, StageEmbeddingLookup, StageExecutorReasoning, StageModeration, StageWebSearch,
	} {
		_, ok := StageQueue[stage]
		assert.Truef(t, ok, "missing queue mapping for stage %q", stage)
	}
	_, ok := StageQueue[StageResponsePackaging]
	assert.False(t, ok, "response_packaging runs inline and must not have a queue")
}
