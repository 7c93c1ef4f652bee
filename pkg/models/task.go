package models

import "time"

// Status is the lifecycle state of a TaskRecord.
type Status string

// Task lifecycle states.
const (
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
	StatusAborted    Status = "aborted"
)

// TaskRecord is the authoritative live state of one query's execution.
// It is exclusively owned by the Coordinator while Status == StatusInProgress;
// agents never mutate it directly.
type TaskRecord struct {
	TaskID       string   `json:"task_id"`
	UserID       string   `json:"user_id"`
	Query        string   `json:"query"`
	TemplateName string   `json:"template_name"`
	Plan         []string `json:"plan"`

	CurrentStage     *string  `json:"current_stage"`
	CompletedStages  []string `json:"completed_stages"`
	Status           Status   `json:"status"`
	ProgressPercent  int      `json:"progress_percentage"`
	Context          string   `json:"context"`

	// PerStageResults holds opaque, stage-specific structured results keyed
	// by stage name. Values are generic JSON-decoded maps so the Coordinator
	// need not know every agent's payload shape to round-trip it.
	PerStageResults map[string]map[string]any `json:"per_stage_results"`

	FinalResponse *FinalResponse `json:"final_response,omitempty"`
	Error         string         `json:"error,omitempty"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// ConversationID threads an optional external conversation identity
	// through to agents; the core neither stores nor interprets it.
	ConversationID string `json:"conversation_id,omitempty"`
}

// FinalResponse is the packaged terminal payload produced by the
// response_packaging stage.
type FinalResponse struct {
	Content     string         `json:"content"`
	Sources     []SourceHit    `json:"sources"`
	Confidence  float64        `json:"confidence"`
	ReactSteps  []ReActStep    `json:"react_steps"`
	Metadata    ResponseMeta   `json:"metadata"`
}

// ResponseMeta is the metadata block attached to a FinalResponse.
type ResponseMeta struct {
	TotalStages    int     `json:"total_stages"`
	DurationMS     int64   `json:"duration_ms"`
	AgentCount     int     `json:"agent_count"`
	ReactCount     int     `json:"react_count"`
	SourceCount    int     `json:"source_count"`
	SafetyScore    float64 `json:"safety_score"`
	QualityScore   float64 `json:"quality_score,omitempty"`
	QualityIssues  []string `json:"quality_issues,omitempty"`
}

// SourceHit is one deduplicated retrieval hit accumulated across
// embedding_lookup and web_search stages; the accumulated list keeps
// first-seen order and is not sorted by score.
type SourceHit struct {
	ID    string  `json:"id"`
	Title string  `json:"title,omitempty"`
	URL   string  `json:"url,omitempty"`
	Score float64 `json:"score"`
}

// Clone returns a deep-enough copy of the record for safe hand-off between
// the Coordinator goroutine and readers (ControlAPI snapshots).
func (t *TaskRecord) Clone() *TaskRecord {
	if t == nil {
		return nil
	}
	c := *t
	c.Plan = append([]string(nil), t.Plan...)
	c.CompletedStages = append([]string(nil), t.CompletedStages...)
	if t.CurrentStage != nil {
		cs := *t.CurrentStage
		c.CurrentStage = &cs
	}
	c.PerStageResults = make(map[string]map[string]any, len(t.PerStageResults))
	for k, v := range t.PerStageResults {
		inner := make(map[string]any, len(v))
		for ik, iv := range v {
			inner[ik] = iv
		}
		c.PerStageResults[k] = inner
	}
	return &c
}
