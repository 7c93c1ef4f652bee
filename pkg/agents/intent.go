// Package agents provides the five interchangeable stage bodies the
// harness dispatches to: intent classification, document retrieval, web
// search, executor synthesis, and content moderation. None of these call
// an external model or search provider — they are compact, heuristic
// stand-ins that satisfy the same per-stage result shapes a real
// implementation would, so the core can be exercised end-to-end without
// network dependencies.
package agents

import (
	"context"
	"regexp"
	"strings"

	"github.com/kindryd/askflash-mcp/pkg/models"
)

var questionWordPattern = regexp.MustCompile(`(?i)^(what|why|how|when|where|who|which)\b`)

// intentCategories mirrors the fixed classification vocabulary a real
// intent classifier would return.
var intentCategories = map[string]string{
	"how":   "procedural",
	"why":   "diagnostic",
	"what":  "informational",
	"where": "navigational",
	"which": "comparative",
}

// IntentAnalysis classifies the query's primary intent and picks a
// processing strategy from its estimated complexity, in place of the
// original's GPT-backed classifier.
func IntentAnalysis(_ context.Context, msg models.TaskMessage) (map[string]any, error) {
	query := strings.TrimSpace(msg.Query)

	classification := "informational"
	if m := questionWordPattern.FindString(strings.ToLower(query)); m != "" {
		if c, ok := intentCategories[strings.ToLower(m)]; ok {
			classification = c
		}
	}

	wordCount := len(strings.Fields(query))
	strategy := "direct_answer"
	switch {
	case wordCount > 40:
		strategy = "multi_step_research"
	case wordCount > 15:
		strategy = "context_augmented"
	}

	result := models.IntentResult{
		IntentClassification: classification,
		ProcessingStrategy:   strategy,
		Metadata: map[string]any{
			"word_count": wordCount,
		},
	}
	return result.ToMap(), nil
}
