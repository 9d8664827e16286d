// File: internal/store/store_test.go
package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quantumagi/agi-sdk-go/internal/action"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(context.Background(), path, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	started := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.StartRun(ctx, RunRecord{
		ID:        "run-1",
		SessionID: "sess-1",
		Task:      "book a flight",
		Status:    "running",
		StartedAt: started,
	}))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, "book a flight", runs[0].Task)
	assert.Equal(t, "running", runs[0].Status)
	assert.Nil(t, runs[0].FinishedAt, "in-flight runs have no finish time")

	require.NoError(t, s.FinishRun(ctx, "run-1", "finished", "Booked it", 7))

	runs, err = s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "finished", runs[0].Status)
	assert.Equal(t, "Booked it", runs[0].Message)
	assert.Equal(t, 7, runs[0].StepsTaken)
	require.NotNil(t, runs[0].FinishedAt)
	assert.False(t, runs[0].FinishedAt.Before(started))
}

func TestRecordAndListSteps(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.StartRun(ctx, RunRecord{
		ID: "run-1", SessionID: "s", Task: "t", Status: "running", StartedAt: time.Now().UTC(),
	}))

	click := action.Action{Type: action.TypeClick, X: 10, Y: 20, Button: "left"}
	typed := action.Action{Type: action.TypeType, Text: "hello"}
	require.NoError(t, s.RecordStep(ctx, "run-1", 1, click, "find the field"))
	require.NoError(t, s.RecordStep(ctx, "run-1", 2, typed, "fill it in"))

	steps, err := s.RunSteps(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, steps, 2)

	assert.Equal(t, 1, steps[0].StepNumber)
	assert.Equal(t, "click", steps[0].ActionType)
	assert.Equal(t, "find the field", steps[0].Reasoning)
	assert.Equal(t, 2, steps[1].StepNumber)
	assert.Equal(t, "type", steps[1].ActionType)

	// The stored JSON must decode back to the original action.
	decoder := action.NewDecoder()
	got, err := decoder.Decode([]byte(steps[0].ActionJSON))
	require.NoError(t, err)
	assert.Equal(t, click, got)
}

func TestDuplicateStepNumberRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.StartRun(ctx, RunRecord{
		ID: "run-1", SessionID: "s", Task: "t", Status: "running", StartedAt: time.Now().UTC(),
	}))

	act := action.Action{Type: action.TypeScreenshot}
	require.NoError(t, s.RecordStep(ctx, "run-1", 1, act, ""))
	err := s.RecordStep(ctx, "run-1", 1, act, "")
	assert.Error(t, err, "step numbers are unique per run")
}

func TestListRunsOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.StartRun(ctx, RunRecord{
			ID:        string(rune('a' + i)),
			SessionID: "s",
			Task:      "t",
			Status:    "finished",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := s.ListRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "e", runs[0].ID, "newest run first")
	assert.Equal(t, "d", runs[1].ID)
	assert.Equal(t, "c", runs[2].ID)

	runs, err = s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 5, "non-positive limit falls back to the default")
}

func TestRunStepsEmptyRun(t *testing.T) {
	s := openTestStore(t)

	steps, err := s.RunSteps(context.Background(), "no-such-run")
	require.NoError(t, err)
	assert.Empty(t, steps)
}
