package models

import "time"

// TaskMessage is placed on a stage queue to request work from an agent.
type TaskMessage struct {
	Envelope
	Query                   string                     `json:"query"`
	UserID                  string                     `json:"user_id"`
	Context                 string                     `json:"context"`
	PerStageResults         map[string]map[string]any  `json:"per_stage_results"`
	TemplateName            string                     `json:"template_name"`
	AdaptiveRecommendations Recommendations            `json:"adaptive_recommendations"`
	ConversationID          string                     `json:"conversation_id,omitempty"`
}

// NewTaskMessage builds a TaskMessage envelope-first, the way every wire type
// in this package is constructed.
func NewTaskMessage(taskID, stage string) TaskMessage {
	return TaskMessage{
		Envelope: Envelope{
			TaskID:    taskID,
			Stage:     stage,
			Kind:      KindTaskMessage,
			Timestamp: time.Now(),
		},
		PerStageResults: make(map[string]map[string]any),
	}
}

// CompletionEvent is published when a stage finishes. The full structured
// result lives in the TaskStore under a per-stage result key; this event is
// only the signal.
type CompletionEvent struct {
	Envelope
	Success bool   `json:"success"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
	// Transient marks an error as retryable rather than terminal.
	Transient bool `json:"transient,omitempty"`
}

// CompletionChannel returns the pub/sub channel name a stage's completion
// is published on.
func CompletionChannel(stage string) string {
	switch stage {
	case StageIntentAnalysis:
		return "ai:intent:complete"
	case StageEmbeddingLookup:
		return "ai:embedding:complete"
	case StageExecutorReasoning:
		return "ai:execution:complete"
	case StageModeration:
		return "ai:moderation:complete"
	case StageWebSearch:
		return "ai:websearch:complete"
	default:
		return "ai:" + stage + ":complete"
	}
}

// ProgressChannel returns the per-task progress channel name. Dot-separated
// so the "ai.progress.*" wildcard subscription matches it: NATS wildcards
// only bind to a whole dot-delimited token, so a colon-joined subject like
// "ai:progress:task-1" would be a single literal token and never match.
func ProgressChannel(taskID string) string { return "ai.progress." + taskID }

// ReactChannel returns the per-task ReAct channel name, matching the
// "ai.react.*" wildcard the ReActForwarder subscribes with.
func ReactChannel(taskID string) string { return "ai.react." + taskID }

// ResponseReadyChannel is the single terminal-delivery channel.
const ResponseReadyChannel = "ai:response:ready"

// ProgressStreamKey returns the JetStream subject a task's progress events
// are appended to. Dot-separated so the "stream.progress.>" wildcard
// subscription used to declare the durable stream matches it.
func ProgressStreamKey(taskID string) string { return "stream.progress." + taskID }

// ReactStreamKey returns the JetStream subject a task's ReAct steps are
// appended to, matching the "stream.react.>" wildcard.
func ReactStreamKey(taskID string) string { return "stream.react." + taskID }

// StageResultKey returns the TaskStore key a stage's result is written under.
func StageResultKey(taskID, stage string) string { return "stage_result:" + taskID + ":" + stage }

// AdaptiveKey returns the TaskStore key adaptive recommendations are stashed under.
func AdaptiveKey(taskID string) string { return "adaptive:" + taskID }

// TaskKey returns the TaskStore key the TaskRecord itself is stored under.
func TaskKey(taskID string) string { return "task:" + taskID }
