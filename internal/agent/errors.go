// internal/agent/errors.go
package agent

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned by Start when a task is already active. It is
// the only error Start returns directly; every other outcome resolves through
// the TaskResult.
var ErrAlreadyRunning = errors.New("agent is already running a task")

// SessionStartError reports that the remote session could not be opened. The
// loop never begins; the run terminates as Failed.
type SessionStartError struct {
	Err error
}

func (e *SessionStartError) Error() string {
	return fmt.Sprintf("failed to start session: %v", e.Err)
}

func (e *SessionStartError) Unwrap() error { return e.Err }

// ErrorCode is a string type used for structured step-failure reporting.
type ErrorCode string

const (
	ErrCodeCaptureFailure   ErrorCode = "CAPTURE_FAILURE"
	ErrCodeInferenceFailure ErrorCode = "INFERENCE_FAILURE"
	ErrCodeExecutionFailure ErrorCode = "EXECUTION_FAILURE"
	ErrCodeMalformedAction  ErrorCode = "MALFORMED_ACTION"
	ErrCodeUnknownAction    ErrorCode = "UNKNOWN_ACTION_TYPE"
	ErrCodeCancelled        ErrorCode = "CANCELLED"
	ErrCodeLoopPanic        ErrorCode = "LOOP_PANIC"
)

// stepError carries the failing phase of a step alongside the cause. A step
// error ends the whole task run; there is no per-step retry.
type stepError struct {
	Code ErrorCode
	Err  error
}

func (e *stepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *stepError) Unwrap() error { return e.Err }
