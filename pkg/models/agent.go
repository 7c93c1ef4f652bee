package models

import "time"

// AgentStatus enumerates the lifecycle states of a worker agent identity.
type AgentStatus string

// Agent health statuses.
const (
	AgentHealthy  AgentStatus = "healthy"
	AgentUnhealthy AgentStatus = "unhealthy"
	AgentStarting AgentStatus = "starting"
	AgentStopping AgentStatus = "stopping"
)

// AgentHealth is one row per agent identity, backing the agent_health
// durable store table.
type AgentHealth struct {
	AgentName      string         `json:"agent_name"`
	Status         AgentStatus    `json:"status"`
	LastHeartbeat  time.Time      `json:"last_heartbeat"`
	CPUUsage       float64        `json:"cpu_usage,omitempty"`
	MemoryUsage    float64        `json:"memory_usage,omitempty"`
	QueueSize      int            `json:"queue_size,omitempty"`
	ProcessedTasks int64          `json:"processed_tasks,omitempty"`
	FailedTasks    int64          `json:"failed_tasks,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// AgentPerformanceSample is an append-only record of one stage execution,
// backing the agent_performance durable store table.
type AgentPerformanceSample struct {
	AgentName    string         `json:"agent_name"`
	TaskID       string         `json:"task_id"`
	Stage        string         `json:"stage"`
	DurationMS   int64          `json:"duration_ms"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
