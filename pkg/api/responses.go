package api

import (
	"time"

	"github.com/kindryd/askflash-mcp/pkg/broker"
	"github.com/kindryd/askflash-mcp/pkg/models"
	"github.com/kindryd/askflash-mcp/pkg/state"
)

// createTaskResponse is returned by POST /api/v1/tasks.
type createTaskResponse struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	Template string `json:"template"`
	UserID   string `json:"user_id"`
}

// progressResponse is returned by GET /api/v1/tasks/:id/progress.
type progressResponse struct {
	Status             models.Status      `json:"status"`
	ProgressPercentage int                `json:"progress_percentage"`
	CurrentStage       *string            `json:"current_stage"`
	ThinkingSteps      []models.ReActStep `json:"thinking_steps"`
	TotalStages        int                `json:"total_stages"`
	CompletedStages    []string           `json:"completed_stages"`
	LastUpdated        time.Time          `json:"last_updated"`
}

// abortResponse is returned by POST /api/v1/tasks/:id/abort.
type abortResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// queueStatusResponse wraps the broker's per-queue status list.
type queueStatusResponse struct {
	Queues []broker.QueueStatus `json:"queues"`
}

// componentHealth is one entry in systemStatusResponse's per-component
// breakdown.
type componentHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// systemStatusResponse is returned by GET /api/v1/system/status. It never
// errors: every facet degrades to an unhealthy componentHealth entry
// instead of failing the whole request.
type systemStatusResponse struct {
	MCP            componentHealth    `json:"mcp"`
	CoreServices   []componentHealth  `json:"core_services"`
	Infrastructure []componentHealth  `json:"infrastructure"`
	Agents         []models.AgentHealth `json:"agents"`
	OverallHealth  string             `json:"overall_health"`
}

type taskAnalyticsResponse struct {
	state.TaskAnalytics
	WindowHours int `json:"window_hours"`
}

type agentAnalyticsResponse struct {
	Agents      []state.AgentPerformanceSummary `json:"agents"`
	WindowHours int                             `json:"window_hours"`
}
