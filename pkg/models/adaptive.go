package models

// Recommendations is the fixed top-level shape returned by the
// AdaptiveClient. Every field is always present, even in the
// built-in-defaults fallback, so agents never need to nil-check it.
type Recommendations struct {
	ResponseStyle        map[string]any `json:"response_style"`
	ContextOptimization  map[string]any `json:"context_optimization"`
	ConversationFlow     map[string]any `json:"conversation_flow"`
	Personalization      map[string]any `json:"personalization"`
	Confidence           float64        `json:"confidence"`
}

// DefaultRecommendations returns the built-in defaults used when the
// adaptive service times out or errors: moderate detail, medium technical
// depth, examples on, structured on, minimal personalization, confidence
// 0.4.
func DefaultRecommendations() Recommendations {
	return Recommendations{
		ResponseStyle: map[string]any{
			"detail_level":    "moderate",
			"technical_depth": "medium",
			"examples":        true,
			"structured":      true,
		},
		ContextOptimization: map[string]any{
			"max_context_tokens": 4000,
			"prioritize_recent":  true,
		},
		ConversationFlow: map[string]any{
			"follow_up_suggestions": true,
		},
		Personalization: map[string]any{
			"level": "minimal",
		},
		Confidence: 0.4,
	}
}
