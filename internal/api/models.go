// internal/api/models.go
package api

import (
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/quantumagi/agi-sdk-go/internal/agent"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// startSessionRequest opens a remote agent session.
type startSessionRequest struct {
	Task     string                 `json:"task"`
	DeviceID string                 `json:"device_id,omitempty"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// SessionInfo is the server's view of a session.
type SessionInfo struct {
	ID        string `json:"id"`
	Task      string `json:"task"`
	Status    string `json:"status"`
	StepCount int    `json:"step_count"`
	DeviceID  string `json:"device_id,omitempty"`
	StartedAt string `json:"started_at,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// inferenceRequest asks the server for the next action given the rolling
// conversation. Model optionally overrides the server-side model selection.
type inferenceRequest struct {
	Messages []agent.Message `json:"messages"`
	Model    string          `json:"model,omitempty"`
}

// inferenceResponse is the server's next-action decision. The action payload
// stays raw until the validating decoder has seen it.
type inferenceResponse struct {
	SessionID            string              `json:"session_id"`
	StepNumber           int                 `json:"step_number"`
	Action               jsoniter.RawMessage `json:"action"`
	Reasoning            string              `json:"reasoning,omitempty"`
	Confidence           float64             `json:"confidence"`
	RequiresConfirmation bool                `json:"requires_confirmation"`
}

// finishSessionRequest closes a session as finished or failed.
type finishSessionRequest struct {
	Status string `json:"status"` // "finish" or "fail"
	Reason string `json:"reason,omitempty"`
}

// TelemetryEvent is one entry of a telemetry batch posted through the proxy
// endpoint.
type TelemetryEvent struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Level     string                 `json:"level"`
	Timestamp time.Time              `json:"timestamp"`
	Tags      map[string]string      `json:"tags,omitempty"`
	Extras    map[string]interface{} `json:"extras,omitempty"`
}

// telemetryBatch is the proxy endpoint's wire format.
type telemetryBatch struct {
	Events []TelemetryEvent `json:"events"`
}
