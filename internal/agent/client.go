// internal/agent/client.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quantumagi/agi-sdk-go/internal/action"
	"github.com/quantumagi/agi-sdk-go/internal/config"
)

const sessionCloseTimeout = 10 * time.Second

// Options bundles everything a Client needs. Capturer, Executor, Inferencer
// and Sessions are required; Telemetry defaults to a no-op sink and Logger to
// a no-op logger.
type Options struct {
	Config     config.AgentConfig
	Logger     *zap.Logger
	Capturer   Capturer
	Executor   Executor
	Inferencer Inferencer
	Sessions   SessionService
	Telemetry  TelemetrySink
	Hooks      Hooks
}

// Client is the agent task-loop state machine. One logical loop runs per
// Start call; command methods may be invoked concurrently from any goroutine
// and influence the loop through guarded state and signal channels. Every
// suspension point (pause gate, confirmation wait, question wait,
// paused-for-finish wait) is a channel receive raced against the run's stop
// channel, so EndSession can force-release all of them at once.
type Client struct {
	logger     *zap.Logger
	capturer   Capturer
	executor   Executor
	inferencer Inferencer
	sessions   SessionService
	telemetry  TelemetrySink
	hooks      Hooks

	maxSteps  int
	stepDelay time.Duration

	mu                  sync.Mutex
	state               State
	running             bool
	paused              bool
	pausedForFinish     bool
	stopped             bool
	pendingConfirmation *ConfirmationRequest
	pendingQuestion     *QuestionRequest
	sessionID           string
	correlationID       string

	conv *conversation

	// Per-run wait plumbing. stopCh is closed exactly once by EndSession;
	// the others are buffered so a command never blocks on a slow loop.
	stopCh    chan struct{}
	resumeCh  chan struct{}
	confirmCh chan bool
	answerCh  chan *string
	finishCh  chan struct{}
}

// New creates a task-loop client from the given options.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	telemetry := opts.Telemetry
	if telemetry == nil {
		telemetry = NopTelemetry{}
	}
	maxSteps := opts.Config.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 100
	}
	stepDelay := opts.Config.StepDelay
	if stepDelay < 0 {
		stepDelay = 0
	}
	return &Client{
		logger:     logger.Named("agent"),
		capturer:   opts.Capturer,
		executor:   opts.Executor,
		inferencer: opts.Inferencer,
		sessions:   opts.Sessions,
		telemetry:  telemetry,
		hooks:      opts.Hooks,
		maxSteps:   maxSteps,
		stepDelay:  stepDelay,
		conv:       newConversation(opts.Config.ContextWindow),
		state:      State{Status: StatusIdle},
	}
}

// State returns a consistent deep-copied snapshot of the agent state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Client) snapshotLocked() State {
	out := c.state
	if c.state.LastAction != nil {
		cloned := c.state.LastAction.Clone()
		out.LastAction = &cloned
	}
	return out
}

// Start runs a task to completion and returns its TaskResult. It blocks until
// the loop exits; drive it from a dedicated goroutine when commands need to
// be issued concurrently. The only error returned directly is
// ErrAlreadyRunning; every other outcome, including session-start failures,
// port errors and panics, resolves through the TaskResult.
func (c *Client) Start(ctx context.Context, task string, taskContext map[string]interface{}) (TaskResult, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return TaskResult{}, ErrAlreadyRunning
	}
	c.running = true
	c.paused = false
	c.pausedForFinish = false
	c.stopped = false
	c.pendingConfirmation = nil
	c.pendingQuestion = nil
	c.sessionID = ""
	c.correlationID = newCorrelationID()
	correlationID := c.correlationID
	c.stopCh = make(chan struct{})
	c.resumeCh = nil
	c.confirmCh = make(chan bool, 1)
	c.answerCh = make(chan *string, 1)
	c.finishCh = make(chan struct{}, 1)
	c.conv.reset()
	c.state = State{Status: StatusRunning, Task: task, ProgressMessage: "Starting task..."}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	c.notifyStatus(snapshot)

	c.logger.Info("Starting task", zap.String("task", task), zap.String("correlation_id", correlationID))
	c.telemetry.CaptureEvent("session_start",
		map[string]string{"correlation_id": correlationID},
		map[string]interface{}{"task": task, "max_steps": c.maxSteps},
	)

	start := time.Now()
	result := c.runTask(ctx, task, taskContext, start)

	c.mu.Lock()
	c.running = false
	c.paused = false
	c.pausedForFinish = false
	c.pendingConfirmation = nil
	c.pendingQuestion = nil
	c.mu.Unlock()

	c.logger.Info("Task finished",
		zap.Bool("success", result.Success),
		zap.Int("steps", result.StepsTaken),
		zap.Float64("duration_s", result.DurationSeconds),
	)
	return result, nil
}

// runTask brackets the loop with the remote session lifecycle and converts
// panics into a Failed outcome. The session close is attempted exactly once
// on every exit path and its errors never mask the primary result.
func (c *Client) runTask(ctx context.Context, task string, taskContext map[string]interface{}, start time.Time) TaskResult {
	sessionID, err := c.sessions.StartSession(ctx, task, taskContext)
	if err != nil {
		serr := &SessionStartError{Err: err}
		c.failState(serr.Error())
		c.telemetry.CaptureError(serr, map[string]string{"correlation_id": c.correlation()})
		return TaskResult{Success: false, Message: serr.Error(), DurationSeconds: time.Since(start).Seconds()}
	}
	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()

	c.conv.appendText(RoleUser, "Task: "+task)

	result, loopErr := func() (tr TaskResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &stepError{Code: ErrCodeLoopPanic, Err: fmt.Errorf("panic in task loop: %v", r)}
			}
		}()
		return c.loop(ctx, task, start), nil
	}()
	if loopErr != nil {
		c.logger.Error("Task loop panicked", zap.Error(loopErr))
		c.telemetry.CaptureError(loopErr, map[string]string{
			"correlation_id": c.correlation(),
			"error_code":     string(ErrCodeLoopPanic),
		})
		c.failState(loopErr.Error())
		result = TaskResult{
			Success:         false,
			Message:         "Task failed: " + loopErr.Error(),
			StepsTaken:      c.State().CurrentStep,
			DurationSeconds: time.Since(start).Seconds(),
		}
	}

	c.closeSession(context.WithoutCancel(ctx))
	return result
}

// loop is the per-step algorithm. It runs while the agent is running and the
// step counter is below the limit; waiting sub-states neither capture a
// screenshot nor advance the counter.
func (c *Client) loop(ctx context.Context, task string, start time.Time) TaskResult {
	step := 0
	fail := func(code ErrorCode, err error) TaskResult {
		c.logger.Error("Step failed", zap.String("error_code", string(code)), zap.Int("step", step), zap.Error(err))
		c.failState(err.Error())
		c.telemetry.CaptureError(err, map[string]string{
			"correlation_id": c.correlation(),
			"error_code":     string(code),
			"step":           strconv.Itoa(step),
		})
		return TaskResult{
			Success:         false,
			Message:         "Task failed: " + err.Error(),
			StepsTaken:      step,
			DurationSeconds: time.Since(start).Seconds(),
		}
	}
	succeed := func(message string) TaskResult {
		return TaskResult{
			Success:         true,
			Message:         message,
			StepsTaken:      step,
			DurationSeconds: time.Since(start).Seconds(),
		}
	}

	for step < c.maxSteps && c.isRunning() {
		// Pause gate: suspend until Resume closes the gate or the run stops.
		if gate := c.pauseGate(); gate != nil {
			select {
			case <-gate:
			case <-c.stop():
			case <-ctx.Done():
				return fail(ErrCodeCancelled, ctx.Err())
			}
			continue
		}
		if !c.isRunning() {
			break
		}

		if req := c.pendingConfirmationCopy(); req != nil {
			c.setStatus(StatusWaitingConfirmation, "Waiting for confirmation: "+req.ActionDescription)
			approved := false
			select {
			case approved = <-c.confirmCh:
			case <-c.stop():
				// Forced release counts as a denial; the loop exits at the
				// top of the next iteration.
			case <-ctx.Done():
				return fail(ErrCodeCancelled, ctx.Err())
			}
			if approved {
				c.conv.appendText(RoleUser, "User confirmed the action.")
				if req.PendingAction != nil {
					if err := c.runAction(ctx, *req.PendingAction); err != nil {
						return fail(ErrCodeExecutionFailure, fmt.Errorf("executing confirmed action %s: %w", req.PendingAction, err))
					}
				}
			} else {
				c.conv.appendText(RoleUser, fmt.Sprintf("User denied the action: %s. Please try a different approach.", req.ActionDescription))
			}
			c.clearPendingConfirmation()
			c.resumeRunning("")
			continue
		}

		if q := c.pendingQuestionCopy(); q != nil {
			c.setStatus(StatusWaitingQuestion, "Waiting for answer: "+q.Question)
			var answer *string
			select {
			case answer = <-c.answerCh:
			case <-c.stop():
			case <-ctx.Done():
				return fail(ErrCodeCancelled, ctx.Err())
			}
			if answer != nil {
				c.conv.appendText(RoleUser, "User answer: "+*answer)
			} else {
				c.conv.appendText(RoleUser, "User declined to answer. Please proceed without this information.")
			}
			c.clearPendingQuestion()
			c.resumeRunning("")
			continue
		}

		step++
		c.setStep(step)

		img, err := c.capturer.Capture(ctx)
		if err != nil {
			return fail(ErrCodeCaptureFailure, fmt.Errorf("screenshot capture: %w", err))
		}
		c.conv.appendScreenshot(img)

		res, err := c.inferencer.Infer(ctx, c.session(), c.conv.snapshot())
		if err != nil {
			code := ErrCodeInferenceFailure
			var malformed *action.MalformedActionError
			var unrecognized *action.UnrecognizedTypeError
			if errors.As(err, &malformed) {
				code = ErrCodeMalformedAction
			} else if errors.As(err, &unrecognized) {
				code = ErrCodeUnknownAction
			}
			return fail(code, fmt.Errorf("inference: %w", err))
		}
		act := res.Action

		c.telemetry.CaptureEvent("inference_response",
			map[string]string{
				"correlation_id": c.correlation(),
				"session_id":     c.session(),
			},
			map[string]interface{}{
				"step":                  step,
				"action_type":           string(act.Type),
				"confidence":            res.Confidence,
				"requires_confirmation": res.RequiresConfirmation,
				"reasoning":             res.Reasoning,
			},
		)

		switch {
		case act.Type == action.TypeConfirm || res.RequiresConfirmation:
			c.raiseConfirmation(act, res, step, task)
			continue

		case act.Type == action.TypeAskQuestion:
			c.raiseQuestion(act, step, task)
			continue

		case act.Type == action.TypeFinish:
			message := act.Message
			if message == "" {
				message = "Task completed successfully"
			}
			// Paused-for-finish: hold the result until the caller either
			// continues with SendMessage or commits with End.
			c.enterFinishWait(message)
			select {
			case <-c.finishCh:
			case <-c.stop():
			case <-ctx.Done():
				return succeed(message)
			}
			c.mu.Lock()
			c.pausedForFinish = false
			stillRunning := c.running
			c.mu.Unlock()
			if !stillRunning {
				return succeed(message)
			}
			c.resumeRunning("")
			continue

		case act.Type == action.TypeFail:
			reason := act.Reason
			if reason == "" {
				reason = "Unknown error"
			}
			c.failState(reason)
			return TaskResult{
				Success:         false,
				Message:         reason,
				StepsTaken:      step,
				DurationSeconds: time.Since(start).Seconds(),
			}

		case act.Type == action.TypeScreenshot:
			// Legacy control action: the next iteration captures anyway.
			c.conv.appendAction(act, res.Reasoning)
			continue

		default:
			if err := c.runAction(ctx, act); err != nil {
				return fail(ErrCodeExecutionFailure, fmt.Errorf("executing %s: %w", act, err))
			}
			c.conv.appendAction(act, res.Reasoning)
			if !c.sleep(ctx, c.stepDelay) {
				continue
			}
		}
	}

	if c.wasStopped() {
		return succeed("Session ended by user")
	}

	c.failState("Maximum steps reached")
	return TaskResult{
		Success:         false,
		Message:         "Maximum steps reached without completing task",
		StepsTaken:      step,
		DurationSeconds: time.Since(start).Seconds(),
	}
}

// runAction records the action as the most recent one, hands it to the
// executor port, and fires the executed hook. Execution failures are fatal to
// the run; there is no automatic retry.
func (c *Client) runAction(ctx context.Context, act action.Action) error {
	c.mu.Lock()
	cloned := act.Clone()
	c.state.LastAction = &cloned
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	c.notifyStatus(snapshot)

	if err := c.executor.Execute(ctx, act); err != nil {
		return err
	}
	if c.hooks.OnActionExecuted != nil {
		c.hooks.OnActionExecuted(act.Clone())
	}
	return nil
}

func (c *Client) raiseConfirmation(act action.Action, res InferenceResult, step int, task string) {
	reqContext := map[string]interface{}{"step": step, "task": task}
	var req ConfirmationRequest
	if act.Type == action.TypeConfirm {
		req = ConfirmationRequest{
			ActionDescription: act.ActionDescription,
			ImpactLevel:       act.ImpactLevel,
			PendingAction:     act.PendingAction,
			Context:           reqContext,
		}
	} else {
		// requires_confirmation was flagged on a plain action: synthesize a
		// confirmation wrapping it.
		cloned := act.Clone()
		description := res.Reasoning
		if description == "" {
			description = act.String()
		}
		req = ConfirmationRequest{
			ActionDescription: description,
			ImpactLevel:       "high",
			PendingAction:     &cloned,
			Context:           reqContext,
		}
	}
	if req.ActionDescription == "" {
		req.ActionDescription = "Confirm this action?"
	}

	c.mu.Lock()
	c.pendingConfirmation = &req
	c.mu.Unlock()
	if c.hooks.OnConfirmationRequired != nil {
		c.hooks.OnConfirmationRequired(req)
	}
}

func (c *Client) raiseQuestion(act action.Action, step int, task string) {
	q := QuestionRequest{
		Question: act.Question,
		Context:  map[string]interface{}{"step": step, "task": task},
	}
	c.mu.Lock()
	c.pendingQuestion = &q
	c.mu.Unlock()
	if c.hooks.OnQuestionRequired != nil {
		c.hooks.OnQuestionRequired(q)
	}
}

// closeSession finishes or fails the remote session depending on the terminal
// status. Errors are logged and swallowed.
func (c *Client) closeSession(parent context.Context) {
	c.mu.Lock()
	id := c.sessionID
	status := c.state.Status
	reason := c.state.Error
	c.mu.Unlock()
	if id == "" {
		return
	}

	ctx, cancel := context.WithTimeout(parent, sessionCloseTimeout)
	defer cancel()

	var err error
	if status == StatusFailed {
		err = c.sessions.FailSession(ctx, id, reason)
	} else {
		err = c.sessions.FinishSession(ctx, id, "")
	}
	if err != nil {
		c.logger.Warn("Failed to close session", zap.String("session_id", id), zap.Error(err))
	}

	c.mu.Lock()
	c.sessionID = ""
	c.mu.Unlock()
}

func newCorrelationID() string {
	return fmt.Sprintf("qs-%s-%s", time.Now().UTC().Format("20060102-150405"), uuid.New().String()[:8])
}
