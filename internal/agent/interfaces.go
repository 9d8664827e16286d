// internal/agent/interfaces.go
package agent

import (
	"context"

	"github.com/quantumagi/agi-sdk-go/internal/action"
)

// Capturer produces an encoded screenshot of the current screen state.
// A capture failure ends the step (and with it the task run).
type Capturer interface {
	Capture(ctx context.Context) (EncodedImage, error)
}

// Executor performs one device action against the local input subsystem.
// Implementations must reject control-type actions; the loop intercepts those
// before they reach this port.
type Executor interface {
	Execute(ctx context.Context, act action.Action) error
}

// Inferencer returns the next action for the accumulated conversation.
// sessionID is the remote session the step belongs to; direct providers may
// ignore it.
type Inferencer interface {
	Infer(ctx context.Context, sessionID string, conversation []Message) (InferenceResult, error)
}

// SessionService brackets the loop with remote session open/close calls.
// Close calls are best-effort from the loop's perspective: their errors are
// swallowed and never mask the primary TaskResult.
type SessionService interface {
	StartSession(ctx context.Context, task string, taskContext map[string]interface{}) (sessionID string, err error)
	FinishSession(ctx context.Context, sessionID, reason string) error
	FailSession(ctx context.Context, sessionID, reason string) error
}

// TelemetrySink receives loop lifecycle events. Implementations must never
// block the loop; failures are theirs to swallow.
type TelemetrySink interface {
	CaptureEvent(name string, tags map[string]string, extras map[string]interface{})
	CaptureError(err error, tags map[string]string)
}

// NopTelemetry discards all events.
type NopTelemetry struct{}

func (NopTelemetry) CaptureEvent(string, map[string]string, map[string]interface{}) {}
func (NopTelemetry) CaptureError(error, map[string]string)                          {}

// Hooks are observer callbacks fired synchronously from within the loop's
// execution context at the moment of the corresponding transition. Hooks
// receive immutable snapshots and must not try to steer the loop from inside
// the callback; use the command methods instead.
type Hooks struct {
	OnStatusChange         func(State)
	OnConfirmationRequired func(ConfirmationRequest)
	OnQuestionRequired     func(QuestionRequest)
	OnActionExecuted       func(action.Action)
}
