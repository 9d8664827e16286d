// pkg/agi/agi.go
// Package agi is the public entry point of the SDK. It assembles the task
// loop from the configured adapters and exposes the loop's command surface.
//
// A minimal caller looks like:
//
//	cfg := config.NewDefaultConfig()
//	sdk, err := agi.New(ctx, cfg)
//	if err != nil { ... }
//	defer sdk.Close()
//	result, err := sdk.Start(ctx, "book a table for two", nil)
package agi

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quantumagi/agi-sdk-go/internal/agent"
	"github.com/quantumagi/agi-sdk-go/internal/api"
	"github.com/quantumagi/agi-sdk-go/internal/browseradapter"
	"github.com/quantumagi/agi-sdk-go/internal/config"
	"github.com/quantumagi/agi-sdk-go/internal/inference"
	"github.com/quantumagi/agi-sdk-go/internal/telemetry"
)

// Re-exported view types so callers never import internal packages.
type (
	State               = agent.State
	Status              = agent.Status
	TaskResult          = agent.TaskResult
	ConfirmationRequest = agent.ConfirmationRequest
	QuestionRequest     = agent.QuestionRequest
	Hooks               = agent.Hooks
	Capturer            = agent.Capturer
	Executor            = agent.Executor
	Inferencer          = agent.Inferencer
	SessionService      = agent.SessionService
)

// Status values of the task loop.
const (
	StatusIdle                = agent.StatusIdle
	StatusRunning             = agent.StatusRunning
	StatusPaused              = agent.StatusPaused
	StatusWaitingConfirmation = agent.StatusWaitingConfirmation
	StatusWaitingQuestion     = agent.StatusWaitingQuestion
	StatusFinished            = agent.StatusFinished
	StatusFailed              = agent.StatusFailed
)

// ErrAlreadyRunning is returned by Start when a task is already in flight.
var ErrAlreadyRunning = agent.ErrAlreadyRunning

// Option customizes SDK assembly.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	hooks      agent.Hooks
	capturer   agent.Capturer
	executor   agent.Executor
	inferencer agent.Inferencer
	sessions   agent.SessionService
	maxSteps   int
	stepDelay  time.Duration
	hasDelay   bool
}

// WithLogger overrides the zap logger used by every component.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHooks installs observer callbacks on the task loop.
func WithHooks(hooks Hooks) Option {
	return func(o *options) { o.hooks = hooks }
}

// WithCapturer replaces the screenshot source. Supplying both a capturer and
// an executor skips launching the built-in browser.
func WithCapturer(c Capturer) Option {
	return func(o *options) { o.capturer = c }
}

// WithExecutor replaces the action executor.
func WithExecutor(e Executor) Option {
	return func(o *options) { o.executor = e }
}

// WithInferencer replaces the next-action source.
func WithInferencer(i Inferencer) Option {
	return func(o *options) { o.inferencer = i }
}

// WithSessionService replaces the session lifecycle service.
func WithSessionService(s SessionService) Option {
	return func(o *options) { o.sessions = s }
}

// WithMaxSteps overrides the configured step ceiling.
func WithMaxSteps(n int) Option {
	return func(o *options) { o.maxSteps = n }
}

// WithStepDelay overrides the configured delay between executed steps.
func WithStepDelay(d time.Duration) Option {
	return func(o *options) { o.stepDelay = d; o.hasDelay = true }
}

// SDK is the assembled agent. All methods are safe for concurrent use.
type SDK struct {
	client  *agent.Client
	browser *browseradapter.Browser
	emitter *telemetry.Emitter
	logger  *zap.Logger
}

// New assembles an SDK from the configuration. Components not overridden by
// options are built from their config sections: the remote API client (or a
// direct provider plus local sessions when inference.provider is set), the
// chromedp browser adapter, and the batching telemetry emitter.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*SDK, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	apiClient := api.NewClient(cfg.API, cfg.Agent.DeviceID, logger)

	inferencer := o.inferencer
	if inferencer == nil {
		direct, err := inference.NewInferencer(ctx, cfg.Inference, logger)
		if err != nil {
			return nil, err
		}
		if direct != nil {
			inferencer = direct
		} else {
			inferencer = apiClient
		}
	}

	sessions := o.sessions
	if sessions == nil {
		if cfg.Inference.Provider != "" {
			sessions = inference.NewLocalSessionService(logger)
		} else {
			sessions = apiClient
		}
	}

	sdk := &SDK{logger: logger}

	capturer := o.capturer
	executor := o.executor
	if capturer == nil || executor == nil {
		browser, err := browseradapter.New(ctx, cfg.Browser, logger)
		if err != nil {
			return nil, err
		}
		sdk.browser = browser
		if capturer == nil {
			capturer = browser
		}
		if executor == nil {
			executor = browser
		}
	}

	var sink agent.TelemetrySink = agent.NopTelemetry{}
	if cfg.Telemetry.Enabled {
		sdk.emitter = telemetry.NewEmitter(cfg.Telemetry, apiClient, logger)
		sink = sdk.emitter
	}

	agentCfg := cfg.Agent
	if o.maxSteps > 0 {
		agentCfg.MaxSteps = o.maxSteps
	}
	if o.hasDelay {
		agentCfg.StepDelay = o.stepDelay
	}

	sdk.client = agent.New(agent.Options{
		Config:     agentCfg,
		Logger:     logger,
		Capturer:   capturer,
		Executor:   executor,
		Inferencer: inferencer,
		Sessions:   sessions,
		Telemetry:  sink,
		Hooks:      o.hooks,
	})
	return sdk, nil
}

// Start runs a task to completion and blocks until the loop exits.
func (s *SDK) Start(ctx context.Context, task string, taskContext map[string]interface{}) (TaskResult, error) {
	return s.client.Start(ctx, task, taskContext)
}

// StartAsync runs a task on its own goroutine and delivers the result on the
// returned channel. An immediate ErrAlreadyRunning is delivered as a failed
// TaskResult.
func (s *SDK) StartAsync(ctx context.Context, task string, taskContext map[string]interface{}) <-chan TaskResult {
	ch := make(chan TaskResult, 1)
	go func() {
		result, err := s.client.Start(ctx, task, taskContext)
		if err != nil {
			result = TaskResult{Success: false, Message: err.Error()}
		}
		ch <- result
	}()
	return ch
}

// State returns a snapshot of the loop state.
func (s *SDK) State() State { return s.client.State() }

// Pause suspends the loop before its next step.
func (s *SDK) Pause() { s.client.Pause() }

// Resume releases a paused loop.
func (s *SDK) Resume() { s.client.Resume() }

// Confirm resolves a pending confirmation.
func (s *SDK) Confirm(approved bool) { s.client.Confirm(approved) }

// Answer resolves a pending question; nil declines it.
func (s *SDK) Answer(answer *string) { s.client.Answer(answer) }

// SendMessage injects user guidance into the conversation.
func (s *SDK) SendMessage(text string) { s.client.SendMessage(text) }

// End commits a finish the loop is holding open.
func (s *SDK) End() { s.client.End() }

// EndSession force-terminates the current run.
func (s *SDK) EndSession() { s.client.EndSession() }

// Close releases the browser and drains telemetry. The SDK is unusable
// afterwards.
func (s *SDK) Close() {
	s.client.EndSession()
	if s.browser != nil {
		s.browser.Close()
	}
	if s.emitter != nil {
		s.emitter.Close()
	}
}
