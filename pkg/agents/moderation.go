package agents

import (
	"context"
	"regexp"
	"strings"

	"github.com/kindryd/askflash-mcp/pkg/models"
)

// blockedPattern matches a small built-in list of terms that fail
// moderation outright, standing in for the original's profanity/PII
// classifier.
var blockedPattern = regexp.MustCompile(`(?i)\b(damn|hell|crap)\b`)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// Moderation scores the executor's content for safety and approves or
// rejects it; response packaging downstream clamps confidence to
// min(ai_confidence, moderation_safety_score).
func Moderation(_ context.Context, msg models.TaskMessage) (map[string]any, error) {
	content := ""
	if er, ok := msg.PerStageResults[models.StageExecutorReasoning]; ok {
		if c, ok := er["content"].(string); ok {
			content = c
		}
	}

	safety := 1.0
	var reasons []string

	if blockedPattern.MatchString(content) {
		safety -= 0.4
		reasons = append(reasons, "blocked_term")
	}
	if urls := urlPattern.FindAllString(content, -1); len(urls) > 3 {
		safety -= 0.2
		reasons = append(reasons, "excessive_links")
	}
	if strings.TrimSpace(content) == "" {
		safety -= 0.3
		reasons = append(reasons, "empty_content")
	}
	if safety < 0 {
		safety = 0
	}

	result := models.ModerationResult{
		Approved:    safety >= 0.8,
		SafetyScore: safety,
		Reason:      strings.Join(reasons, ","),
	}
	return result.ToMap(), nil
}
