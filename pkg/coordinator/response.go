package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/kindryd/askflash-mcp/pkg/models"
)

// packageResponse assembles the final response from accumulated per-stage
// results: executor content/confidence, deduplicated source hits,
// moderation-clamped confidence, and the chronological ReAct history.
func (c *Coordinator) packageResponse(task *models.TaskRecord) (*models.FinalResponse, error) {
	executor, err := decodeExecutorResult(task.PerStageResults[models.StageExecutorReasoning])
	if err != nil {
		return nil, fmt.Errorf("decode executor result: %w", err)
	}
	moderation, err := decodeModerationResult(task.PerStageResults[models.StageModeration])
	if err != nil {
		return nil, fmt.Errorf("decode moderation result: %w", err)
	}

	safetyScore := 1.0
	if moderation != nil {
		safetyScore = moderation.SafetyScore
	}
	confidence := safetyScore
	if executor != nil {
		confidence = min(executor.Confidence, safetyScore)
	}

	reactSteps, err := c.store.ReplayReact(context.Background(), task.TaskID)
	if err != nil {
		reactSteps = nil
	}
	sort.SliceStable(reactSteps, func(i, j int) bool {
		return reactSteps[i].Timestamp.Before(reactSteps[j].Timestamp)
	})

	content := ""
	if executor != nil {
		content = executor.Content
	}

	hits := sourceHits(task)

	resp := &models.FinalResponse{
		Content:    content,
		Sources:    hits,
		Confidence: confidence,
		ReactSteps: reactSteps,
		Metadata: models.ResponseMeta{
			TotalStages: len(task.Plan),
			DurationMS:  time.Since(task.StartedAt).Milliseconds(),
			AgentCount:  len(distinctAgents(reactSteps)),
			ReactCount:  len(reactSteps),
			SourceCount: len(hits),
			SafetyScore: safetyScore,
		},
	}
	return resp, nil
}

func distinctAgents(steps []models.ReActStep) map[string]struct{} {
	out := make(map[string]struct{})
	for _, s := range steps {
		out[s.AgentName] = struct{}{}
	}
	return out
}

func decodeExecutorResult(m map[string]any) (*models.ExecutorResult, error) {
	if m == nil {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var r models.ExecutorResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func decodeModerationResult(m map[string]any) (*models.ModerationResult, error) {
	if m == nil {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var r models.ModerationResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
