// internal/agent/commands.go
//
// Command methods mutate guarded state and signal the blocked loop. All of
// them are safe to call from any goroutine at any time: when a command's
// precondition state does not hold it is a no-op, and calling after the loop
// has exited never panics.
package agent

import (
	"context"
	"fmt"
	"time"
)

// Pause suspends the loop at its next poll point. Only effective while
// running; the suspension is cooperative, not preemptive.
func (c *Client) Pause() {
	c.mu.Lock()
	if !c.running || c.paused || c.pausedForFinish {
		c.mu.Unlock()
		return
	}
	c.paused = true
	c.resumeCh = make(chan struct{})
	c.state.Status = StatusPaused
	c.state.ProgressMessage = "Agent paused"
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	c.notifyStatus(snapshot)
}

// Resume releases a paused loop.
func (c *Client) Resume() {
	c.mu.Lock()
	if !c.running || !c.paused {
		c.mu.Unlock()
		return
	}
	c.paused = false
	if c.resumeCh != nil {
		close(c.resumeCh)
		c.resumeCh = nil
	}
	c.state.Status = StatusRunning
	c.state.ProgressMessage = "Agent resumed"
	c.state.Error = ""
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	c.notifyStatus(snapshot)
}

// Confirm resolves a pending confirmation. approved=true executes the
// pending action before the loop resumes; approved=false records a denial so
// the next inference round can adapt. No-op when nothing is pending.
func (c *Client) Confirm(approved bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingConfirmation == nil || c.confirmCh == nil {
		return
	}
	select {
	case c.confirmCh <- approved:
	default:
		// A resolution is already queued; this one is dropped.
	}
}

// Answer resolves a pending question. Pass nil to decline answering; the
// agent proceeds without the information. No-op when nothing is pending.
func (c *Client) Answer(answer *string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingQuestion == nil || c.answerCh == nil {
		return
	}
	select {
	case c.answerCh <- answer:
	default:
	}
}

// SendMessage appends a user message to the conversation so the next
// inference round sees it. During paused-for-finish it also resumes the loop
// for another round.
func (c *Client) SendMessage(text string) {
	c.conv.appendText(RoleUser, text)

	c.mu.Lock()
	if !c.pausedForFinish || c.finishCh == nil {
		c.mu.Unlock()
		return
	}
	c.state.Status = StatusRunning
	c.state.Error = ""
	snapshot := c.snapshotLocked()
	finishCh := c.finishCh
	c.mu.Unlock()
	c.notifyStatus(snapshot)
	select {
	case finishCh <- struct{}{}:
	default:
	}
}

// End commits a finish: during paused-for-finish it terminates the loop and
// yields the successful TaskResult. It cancels only the paused-for-finish
// wait and is a no-op in every other state.
func (c *Client) End() {
	c.mu.Lock()
	if !c.pausedForFinish || c.finishCh == nil {
		c.mu.Unlock()
		return
	}
	c.running = false
	finishCh := c.finishCh
	c.mu.Unlock()
	select {
	case finishCh <- struct{}{}:
	default:
	}
}

// EndSession is the universal cancel: from any state it transitions to
// Finished, clears running/paused/waiting flags and force-releases every
// suspended wait with a denial/decline outcome so no goroutine hangs.
// Calling it repeatedly is idempotent.
func (c *Client) EndSession() {
	c.mu.Lock()
	alreadyStopped := c.stopped
	c.stopped = true
	c.running = false
	c.paused = false
	c.pausedForFinish = false
	if c.resumeCh != nil {
		close(c.resumeCh)
		c.resumeCh = nil
	}
	if c.stopCh != nil && !alreadyStopped {
		close(c.stopCh)
	}
	changed := c.state.Status != StatusFinished
	c.state.Status = StatusFinished
	c.state.ProgressMessage = "Session ended by user"
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	if changed && !alreadyStopped {
		c.notifyStatus(snapshot)
	}
}

// -- loop-side state helpers --

func (c *Client) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Client) wasStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *Client) session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) correlation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.correlationID
}

// pauseGate returns the channel to wait on while paused, or nil when the
// loop may proceed.
func (c *Client) pauseGate() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return nil
	}
	return c.resumeCh
}

// stop returns the current run's stop channel.
func (c *Client) stop() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopCh
}

func (c *Client) pendingConfirmationCopy() *ConfirmationRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingConfirmation == nil {
		return nil
	}
	req := *c.pendingConfirmation
	return &req
}

func (c *Client) pendingQuestionCopy() *QuestionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingQuestion == nil {
		return nil
	}
	q := *c.pendingQuestion
	return &q
}

func (c *Client) clearPendingConfirmation() {
	c.mu.Lock()
	c.pendingConfirmation = nil
	c.mu.Unlock()
}

func (c *Client) clearPendingQuestion() {
	c.mu.Lock()
	c.pendingQuestion = nil
	c.mu.Unlock()
}

func (c *Client) setStatus(status Status, progress string) {
	c.mu.Lock()
	c.state.Status = status
	if progress != "" {
		c.state.ProgressMessage = progress
	}
	if status == StatusRunning || status == StatusFinished {
		c.state.Error = ""
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	c.notifyStatus(snapshot)
}

// resumeRunning returns the loop to Running after a resolved waiting
// sub-state, unless the run was stopped while waiting.
func (c *Client) resumeRunning(progress string) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.state.Status = StatusRunning
	if progress != "" {
		c.state.ProgressMessage = progress
	}
	c.state.Error = ""
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	c.notifyStatus(snapshot)
}

func (c *Client) setStep(step int) {
	c.mu.Lock()
	c.state.CurrentStep = step
	c.state.ProgressMessage = fmt.Sprintf("Executing step %d...", step)
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	c.notifyStatus(snapshot)
}

func (c *Client) failState(message string) {
	c.mu.Lock()
	c.state.Status = StatusFailed
	c.state.Error = message
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	c.notifyStatus(snapshot)
}

// enterFinishWait marks the paused-for-finish sub-state.
func (c *Client) enterFinishWait(message string) {
	c.mu.Lock()
	c.pausedForFinish = true
	c.state.Status = StatusFinished
	c.state.ProgressMessage = message
	c.state.Error = ""
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	c.notifyStatus(snapshot)
}

// sleep applies the inter-step delay, returning false when the run stopped
// or the context was cancelled mid-delay.
func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.stop():
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *Client) notifyStatus(snapshot State) {
	if c.hooks.OnStatusChange != nil {
		c.hooks.OnStatusChange(snapshot)
	}
}
