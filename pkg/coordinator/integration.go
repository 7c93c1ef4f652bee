package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/kindryd/askflash-mcp/pkg/models"
)

// integrateAndAdvance applies the fixed, normative stage-result integration
// rule for stage, then advances the DAG, in one read-modify-write against
// the TaskRecord.
func (c *Coordinator) integrateAndAdvance(ctx context.Context, taskID, stage string, result map[string]any) error {
	_, err := c.store.UpdateTask(taskID, func(rec *models.TaskRecord) error {
		if rec.PerStageResults == nil {
			rec.PerStageResults = make(map[string]map[string]any)
		}
		rec.PerStageResults[stage] = result

		if err := integrateStageResult(rec, stage, result); err != nil {
			return err
		}
		advanceDAG(rec)
		return nil
	})
	if err != nil {
		return err
	}

	c.emitProgress(taskID, stage, models.ActionTransition, "stage complete")
	return nil
}

// integrateStageResult applies the fixed per-stage integration table.
// Stages not named in the table (e.g. response_packaging, which never
// reaches here) are a no-op.
func integrateStageResult(rec *models.TaskRecord, stage string, result map[string]any) error {
	switch stage {
	case models.StageIntentAnalysis:
		// intent_classification, processing_strategy written verbatim; no
		// further shaping needed since the agent already wrote the map shape.
		return nil

	case models.StageEmbeddingLookup:
		// Merges with whatever web_search may have already accumulated
		// (some templates run web_search first) rather than clobbering it,
		// using the same append-dedupe rule web_search uses. When
		// embedding_lookup runs first, existing is empty and this reduces
		// to a plain assignment.
		docs, err := decodeDocuments(result["documents"])
		if err != nil {
			return fmt.Errorf("coordinator: decode embedding_lookup documents: %w", err)
		}
		rec.Context = stringField(result["context"])
		setSourceHits(rec, appendDedupe(sourceHits(rec), docs))
		return nil

	case models.StageWebSearch:
		docs, err := decodeDocuments(result["documents"])
		if err != nil {
			return fmt.Errorf("coordinator: decode web_search documents: %w", err)
		}
		existing := sourceHits(rec)
		merged := appendDedupe(existing, docs)
		setSourceHits(rec, merged)
		return nil

	case models.StageExecutorReasoning:
		// ai_response, reasoning_metadata live directly in
		// PerStageResults[executor_reasoning]; response packaging reads them
		// from there.
		return nil

	case models.StageModeration:
		// moderation_result, safety_score likewise read directly from
		// PerStageResults[moderation] by response packaging.
		return nil
	}
	return nil
}

// advanceDAG appends current_stage to completed_stages, moves to plan[i+1]
// or null, and recomputes progress_percentage.
func advanceDAG(rec *models.TaskRecord) {
	if rec.CurrentStage == nil {
		return
	}
	stage := *rec.CurrentStage
	rec.CompletedStages = append(rec.CompletedStages, stage)

	idx := -1
	for i, s := range rec.Plan {
		if s == stage {
			idx = i
			break
		}
	}
	if idx >= 0 && idx+1 < len(rec.Plan) {
		next := rec.Plan[idx+1]
		rec.CurrentStage = &next
	} else {
		rec.CurrentStage = nil
	}

	rec.ProgressPercent = int(math.Floor(100 * float64(len(rec.CompletedStages)) / float64(len(rec.Plan))))
}

func decodeDocuments(v any) ([]models.SourceHit, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var docs []models.SourceHit
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func stringField(v any) string {
	s, _ := v.(string)
	return s
}

// sourceHitsKey is the internal PerStageResults pseudo-slot the Coordinator
// uses to carry the accumulated, deduplicated hit list across
// embedding_lookup and web_search integration. It is distinct from any
// individual stage's own result.
const sourceHitsKey = "_accumulated_sources"

func sourceHits(rec *models.TaskRecord) []models.SourceHit {
	raw, ok := rec.PerStageResults[sourceHitsKey]
	if !ok {
		return nil
	}
	docs, _ := decodeDocuments(raw["hits"])
	return docs
}

func setSourceHits(rec *models.TaskRecord, hits []models.SourceHit) {
	if rec.PerStageResults == nil {
		rec.PerStageResults = make(map[string]map[string]any)
	}
	rec.PerStageResults[sourceHitsKey] = map[string]any{"hits": hits}
}

// appendDedupe appends incoming to existing, keeping the earliest-inserted
// entry on id collision and otherwise preserving order.
func appendDedupe(existing, incoming []models.SourceHit) []models.SourceHit {
	seen := make(map[string]struct{}, len(existing))
	out := make([]models.SourceHit, 0, len(existing)+len(incoming))
	for _, h := range existing {
		if _, dup := seen[h.ID]; dup {
			continue
		}
		seen[h.ID] = struct{}{}
		out = append(out, h)
	}
	for _, h := range incoming {
		if _, dup := seen[h.ID]; dup {
			continue
		}
		seen[h.ID] = struct{}{}
		out = append(out, h)
	}
	return out
}
