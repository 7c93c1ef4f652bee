package models

// DAGTemplate is a declarative, named, ordered list of stages. Templates are
// immutable at runtime and are used only to select and seed a TaskRecord's
// plan — execution never consults Conditions again once a plan is chosen.
type DAGTemplate struct {
	Name                string         `yaml:"name" json:"name"`
	Description         string         `yaml:"description" json:"description"`
	Stages              []string       `yaml:"stages" json:"stages"`
	Conditions          map[string]any `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	EstimatedDurationMS int            `yaml:"estimated_duration_ms" json:"estimated_duration_ms"`
}

// Well-known stage names.
const (
	StageIntentAnalysis    = "intent_analysis"
	StageEmbeddingLookup   = "embedding_lookup"
	StageWebSearch         = "web_search"
	StageExecutorReasoning = "executor_reasoning"
	StageModeration        = "moderation"
	StageResponsePackaging = "response_packaging"
)

// BuiltinTemplates returns the five built-in DAG templates. Stage order is
// normative and must not be re-derived from Conditions.
func BuiltinTemplates() map[string]*DAGTemplate {
	templates := []*DAGTemplate{
		{
			Name:        "standard_query",
			Description: "Standard question answering flow for most queries",
			Stages: []string{
				StageIntentAnalysis, StageEmbeddingLookup, StageExecutorReasoning,
				StageModeration, StageResponsePackaging,
			},
			Conditions:          map[string]any{"complexity": "medium", "requires_web_search": false},
			EstimatedDurationMS: 15000,
		},
		{
			Name:                "simple_lookup",
			Description:         "Simple document lookup without complex reasoning",
			Stages:              []string{StageEmbeddingLookup, StageResponsePackaging},
			Conditions:          map[string]any{"complexity": "low", "direct_answer": true},
			EstimatedDurationMS: 5000,
		},
		{
			Name:        "complex_research",
			Description: "Complex multi-step research with web augmentation",
			Stages: []string{
				StageIntentAnalysis, StageEmbeddingLookup, StageWebSearch,
				StageExecutorReasoning, StageModeration, StageResponsePackaging,
			},
			Conditions:          map[string]any{"complexity": "high", "requires_web_search": true},
			EstimatedDurationMS: 30000,
		},
		{
			Name:        "web_enhanced",
			Description: "Web search enhanced response for current information",
			Stages: []string{
				StageIntentAnalysis, StageWebSearch, StageEmbeddingLookup,
				StageExecutorReasoning, StageModeration, StageResponsePackaging,
			},
			Conditions:          map[string]any{"complexity": "medium", "requires_web_search": true},
			EstimatedDurationMS: 20000,
		},
		{
			Name:        "quick_answer",
			Description: "Ultra-fast response for simple factual queries",
			Stages: []string{
				StageEmbeddingLookup, StageExecutorReasoning, StageResponsePackaging,
			},
			Conditions:          map[string]any{"complexity": "very_low", "direct_answer": true},
			EstimatedDurationMS: 3000,
		},
	}

	out := make(map[string]*DAGTemplate, len(templates))
	for _, t := range templates {
		out[t.Name] = t
	}
	return out
}

// StageQueue maps a stage name to the broker queue name that handles it.
// response_packaging has no queue: the Coordinator executes it inline.
var StageQueue = map[string]string{
	StageIntentAnalysis:    "intent.task",
	StageEmbeddingLookup:   "embedding.task",
	StageExecutorReasoning: "executor.task",
	StageModeration:        "moderator.task",
	StageWebSearch:         "websearch.task",
}
