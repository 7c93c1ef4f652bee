package coordinator

import (
	"fmt"

	"github.com/kindryd/askflash-mcp/pkg/models"
)

// QualityGate scores a packaged FinalResponse as a pure function: a
// weighted blend of confidence, completeness, corroboration, and safety against
// what the Coordinator actually has at packaging time — source count,
// executor confidence, and moderation safety — rather than raw document
// metadata, since vector search and content moderation are themselves
// external stages this core only schedules.
//
// QualityGate never gates completion: a low score is surfaced as metadata
// and an issue list, never a failure.
type QualityGate struct {
	lowQualityThreshold float64
}

// NewQualityGate builds a QualityGate with the built-in low-quality warning
// threshold.
func NewQualityGate() *QualityGate {
	return &QualityGate{lowQualityThreshold: 0.6}
}

// Score computes a blended quality score in [0,1] and any issues worth
// surfacing to the caller alongside the response.
func (g *QualityGate) Score(resp *models.FinalResponse) (float64, []string) {
	if resp == nil {
		return 0, []string{"empty_response"}
	}

	var issues []string

	sourceScore := completenessScore(len(resp.Sources))
	if len(resp.Sources) == 0 {
		issues = append(issues, "no_sources_cited")
	}

	corroboration := corroborationScore(resp.Sources)

	score := resp.Confidence*0.4 + sourceScore*0.3 + corroboration*0.2 + resp.Metadata.SafetyScore*0.1

	if resp.Metadata.SafetyScore < 0.8 {
		issues = append(issues, "low_safety_score")
	}
	if score < g.lowQualityThreshold {
		issues = append(issues, fmt.Sprintf("below_quality_threshold:%.2f", g.lowQualityThreshold))
	}

	return clamp01(score), issues
}

// completenessScore rewards a small number of distinct citations,
// plateauing past three — a single uncorroborated source is weaker
// evidence than a handful, but additional sources beyond a few add little.
func completenessScore(sourceCount int) float64 {
	switch {
	case sourceCount == 0:
		return 0.2
	case sourceCount == 1:
		return 0.6
	case sourceCount <= 3:
		return 0.85
	default:
		return 1.0
	}
}

// corroborationScore rewards sources whose relevance scores cluster high,
// a cheap proxy for multiple sources agreeing, without needing the
// original's cross-document entity extraction.
func corroborationScore(sources []models.SourceHit) float64 {
	if len(sources) == 0 {
		return 0
	}
	var sum float64
	for _, s := range sources {
		sum += s.Score
	}
	return clamp01(sum / float64(len(sources)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
