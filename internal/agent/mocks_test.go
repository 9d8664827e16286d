// File: internal/agent/mocks_test.go
package agent

import (
	"context"
	"sync"

	"github.com/quantumagi/agi-sdk-go/internal/action"
)

// stubCapturer returns a canned screenshot, or a fixed error.
type stubCapturer struct {
	err error
}

func (s stubCapturer) Capture(context.Context) (EncodedImage, error) {
	if s.err != nil {
		return EncodedImage{}, s.err
	}
	return EncodedImage{Base64: "aW1n", Width: 2, Height: 2, Format: "png"}, nil
}

// recordExecutor records executed actions and optionally fails.
type recordExecutor struct {
	mu   sync.Mutex
	acts []action.Action
	err  error
}

func (r *recordExecutor) Execute(_ context.Context, act action.Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.acts = append(r.acts, act.Clone())
	return nil
}

func (r *recordExecutor) executed() []action.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]action.Action, len(r.acts))
	copy(out, r.acts)
	return out
}

// scriptStep is one scripted inference outcome.
type scriptStep struct {
	res InferenceResult
	err error
}

// scriptInferencer replays a fixed script. With repeatLast set, the final
// entry answers every further call, which keeps max-steps tests simple.
type scriptInferencer struct {
	mu         sync.Mutex
	script     []scriptStep
	i          int
	repeatLast bool
}

func (s *scriptInferencer) Infer(context.Context, string, []Message) (InferenceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.i
	if idx >= len(s.script) {
		if !s.repeatLast || len(s.script) == 0 {
			panic("inference script exhausted")
		}
		idx = len(s.script) - 1
	} else {
		s.i++
	}
	step := s.script[idx]
	return step.res, step.err
}

// panicInferencer simulates a buggy provider that panics mid-step.
type panicInferencer struct {
	msg string
}

func (p panicInferencer) Infer(context.Context, string, []Message) (InferenceResult, error) {
	panic(p.msg)
}

// gateInferencer blocks each Infer call until the test feeds a result, which
// gives tests a deterministic suspension point inside a step.
type gateInferencer struct {
	feed    chan scriptStep
	entered chan struct{}
}

func newGateInferencer() *gateInferencer {
	return &gateInferencer{
		feed:    make(chan scriptStep),
		entered: make(chan struct{}, 16),
	}
}

func (g *gateInferencer) Infer(ctx context.Context, _ string, _ []Message) (InferenceResult, error) {
	g.entered <- struct{}{}
	select {
	case step := <-g.feed:
		return step.res, step.err
	case <-ctx.Done():
		return InferenceResult{}, ctx.Err()
	}
}

// stubSessions records lifecycle calls.
type stubSessions struct {
	mu         sync.Mutex
	startErr   error
	started    int
	finished   int
	failed     int
	failReason string
}

func (s *stubSessions) StartSession(context.Context, string, map[string]interface{}) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return "", s.startErr
	}
	s.started++
	return "sess-1", nil
}

func (s *stubSessions) FinishSession(context.Context, string, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished++
	return nil
}

func (s *stubSessions) FailSession(_ context.Context, _ string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
	s.failReason = reason
	return nil
}

func (s *stubSessions) counts() (started, finished, failed int, failReason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started, s.finished, s.failed, s.failReason
}

// recordTelemetry keeps every event and error for assertions.
type recordedEvent struct {
	name string
	tags map[string]string
}

type recordTelemetry struct {
	mu     sync.Mutex
	events []recordedEvent
	errs   []recordedEvent
}

func (r *recordTelemetry) CaptureEvent(name string, tags map[string]string, _ map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{name: name, tags: tags})
}

func (r *recordTelemetry) CaptureError(_ error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, recordedEvent{name: "error", tags: tags})
}

func (r *recordTelemetry) eventNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.name
	}
	return out
}

func (r *recordTelemetry) errorCodes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.errs {
		out = append(out, ev.tags["error_code"])
	}
	return out
}
