package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/kindryd/askflash-mcp/pkg/models"
)

// ExecutorReasoning synthesizes a response from whatever context and
// documents earlier stages accumulated. Confidence scales with how much
// material was available to draw on and with the adaptive service's own
// confidence in its recommendations.
func ExecutorReasoning(_ context.Context, msg models.TaskMessage) (map[string]any, error) {
	var titles []string
	sourceCount := 0
	for _, stage := range []string{models.StageEmbeddingLookup, models.StageWebSearch} {
		result, ok := msg.PerStageResults[stage]
		if !ok {
			continue
		}
		docs, err := decodeSourceHits(result["documents"])
		if err != nil {
			continue
		}
		sourceCount += len(docs)
		for _, d := range docs {
			if d.Title != "" {
				titles = append(titles, d.Title)
			}
		}
	}

	style, _ := msg.AdaptiveRecommendations.ResponseStyle["detail_level"].(string)
	if style == "" {
		style = "moderate"
	}

	var content string
	switch {
	case msg.Context != "":
		content = summarize(msg.Context, style)
	case len(titles) > 0:
		content = fmt.Sprintf("Based on %s, here is a response to: %s", strings.Join(titles, ", "), msg.Query)
	default:
		content = fmt.Sprintf("I do not have enough indexed material to answer confidently: %s", msg.Query)
	}

	confidence := 0.5
	switch {
	case sourceCount >= 2:
		confidence = 0.85
	case sourceCount == 1:
		confidence = 0.7
	}
	confidence = (confidence + msg.AdaptiveRecommendations.Confidence) / 2

	result := models.ExecutorResult{
		Content:    content,
		Confidence: confidence,
		ReasoningMetadata: map[string]any{
			"sources_considered": sourceCount,
			"detail_level":       style,
		},
	}
	return result.ToMap(), nil
}

// summarize trims the accumulated context to a length appropriate for the
// requested detail level, the cheap stand-in for an LLM call honoring a
// token budget.
func summarize(context, style string) string {
	limit := 400
	switch style {
	case "concise":
		limit = 160
	case "detailed":
		limit = 800
	}
	if len(context) <= limit {
		return context
	}
	return context[:limit] + "..."
}

func decodeSourceHits(v any) ([]models.SourceHit, error) {
	raw, ok := v.([]any)
	if !ok {
		return nil, nil
	}
	out := make([]models.SourceHit, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		hit := models.SourceHit{}
		if id, ok := m["id"].(string); ok {
			hit.ID = id
		}
		if title, ok := m["title"].(string); ok {
			hit.Title = title
		}
		if u, ok := m["url"].(string); ok {
			hit.URL = u
		}
		if score, ok := m["score"].(float64); ok {
			hit.Score = score
		}
		out = append(out, hit)
	}
	return out, nil
}
