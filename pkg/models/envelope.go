// Package models defines the wire and persistence types shared across the
// MCP core: task records, DAG templates, progress/ReAct events, and the
// per-stage messages and results that flow through the broker.
package models

import "time"

// Envelope is the shared header embedded in every message that crosses a
// component boundary (design note: tagged sum types with a small shared
// envelope instead of free-form JSON maps).
type Envelope struct {
	TaskID    string    `json:"task_id"`
	Stage     string    `json:"stage,omitempty"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// Kind values used as the envelope discriminator.
const (
	KindTaskMessage    = "task_message"
	KindCompletion     = "completion_event"
	KindProgress       = "progress_event"
	KindReAct          = "react_step"
	KindIntentResult   = "intent_result"
	KindEmbeddingResult = "embedding_result"
	KindExecutorResult = "executor_result"
	KindModerationResult = "moderation_result"
	KindWebSearchResult = "websearch_result"
)
