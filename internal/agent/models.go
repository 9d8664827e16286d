// internal/agent/models.go
package agent

import (
	"time"

	"github.com/quantumagi/agi-sdk-go/internal/action"
)

// Status represents the agent's position in the task-loop state machine.
type Status string

const (
	StatusIdle                Status = "idle"                 // No task has been started.
	StatusRunning             Status = "running"              // The loop is driving capture/inference/execute cycles.
	StatusPaused              Status = "paused"               // The loop is suspended at the pause gate.
	StatusWaitingConfirmation Status = "waiting_confirmation" // Blocked on a user confirm decision.
	StatusWaitingQuestion     Status = "waiting_question"     // Blocked on a user answer.
	StatusFinished            Status = "finished"             // The agent believes the task is complete.
	StatusFailed              Status = "failed"               // The task ended unsuccessfully.
)

// State is the read-only snapshot of the agent exposed to callers and hooks.
// The state machine owns the authoritative copy; readers always get a
// consistent deep copy.
type State struct {
	Status          Status         `json:"status"`
	Task            string         `json:"task,omitempty"`
	CurrentStep     int            `json:"current_step"`
	ProgressMessage string         `json:"progress_message,omitempty"`
	Error           string         `json:"error,omitempty"`
	LastAction      *action.Action `json:"last_action,omitempty"`
}

// ConfirmationRequest is a suspended decision point created when inference
// returns a confirm-type action (or flags requires_confirmation). Resolved by
// a user Confirm command.
type ConfirmationRequest struct {
	ActionDescription string                 `json:"action_description"`
	ImpactLevel       string                 `json:"impact_level,omitempty"`
	PendingAction     *action.Action         `json:"pending_action,omitempty"`
	Context           map[string]interface{} `json:"context,omitempty"`
}

// QuestionRequest is a suspended decision point created when inference asks a
// free-text question. Resolved by a user Answer command.
type QuestionRequest struct {
	Question string                 `json:"question"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// TaskResult is the single terminal outcome channel for a task run. Callers
// never need to distinguish an exception from a semantic failure.
type TaskResult struct {
	Success         bool    `json:"success"`
	Message         string  `json:"message"`
	StepsTaken      int     `json:"steps_taken"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Message roles in the conversation buffer.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged entry of the rolling conversation used to build
// each inference request.
type Message struct {
	Role      string         `json:"role"`
	Text      string         `json:"text,omitempty"`
	ImageB64  string         `json:"image_base64,omitempty"`
	Action    *action.Action `json:"action,omitempty"`
	Reasoning string         `json:"reasoning,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EncodedImage is an opaque encoded screenshot produced by a Capturer.
type EncodedImage struct {
	Base64 string
	Width  int
	Height int
	Format string // "png" unless the capturer says otherwise
}

// InferenceResult is what an Inferencer returns for one step.
type InferenceResult struct {
	Action               action.Action
	Reasoning            string
	Confidence           float64
	RequiresConfirmation bool
}
