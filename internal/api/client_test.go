// File: internal/api/client_test.go
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quantumagi/agi-sdk-go/internal/action"
	"github.com/quantumagi/agi-sdk-go/internal/agent"
	"github.com/quantumagi/agi-sdk-go/internal/config"
)

func testClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	cfg := config.APIConfig{
		BaseURL:        serverURL,
		APIKey:         "sk-test",
		Timeout:        5 * time.Second,
		MaxElapsedTime: 3 * time.Second,
		MaxInterval:    200 * time.Millisecond,
	}
	return NewClient(cfg, "device-77", zaptest.NewLogger(t))
}

func TestStartSessionSendsAuthAndDevice(t *testing.T) {
	var gotAuth, gotContentType string
	var gotBody startSessionRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/quantum/sessions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(SessionInfo{ID: "sess-42", Task: gotBody.Task, Status: "active"})
	}))
	defer srv.Close()

	client := testClient(t, srv.URL)
	id, err := client.StartSession(context.Background(), "buy milk", map[string]interface{}{"region": "eu"})
	require.NoError(t, err)

	assert.Equal(t, "sess-42", id)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "buy milk", gotBody.Task)
	assert.Equal(t, "device-77", gotBody.DeviceID)
	assert.Equal(t, "eu", gotBody.Context["region"])
}

func TestInferDecodesAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/quantum/sessions/sess-42/inference", r.URL.Path)

		var req inferenceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.Messages)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"session_id":            "sess-42",
			"step_number":           3,
			"action":                map[string]interface{}{"type": "click", "x": 12, "y": 34},
			"reasoning":             "the button is there",
			"confidence":            0.9,
			"requires_confirmation": false,
		})
	}))
	defer srv.Close()

	client := testClient(t, srv.URL)
	res, err := client.Infer(context.Background(), "sess-42", []agent.Message{
		{Role: agent.RoleUser, Text: "Task: click"},
	})
	require.NoError(t, err)

	assert.Equal(t, action.TypeClick, res.Action.Type)
	assert.Equal(t, 12, res.Action.X)
	assert.Equal(t, "left", res.Action.Button)
	assert.Equal(t, "the button is there", res.Reasoning)
	assert.InDelta(t, 0.9, res.Confidence, 0.0001)
}

func TestInferRejectsMalformedAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"session_id": "s",
			"action":     map[string]interface{}{"type": "click", "x": 1},
		})
	}))
	defer srv.Close()

	client := testClient(t, srv.URL)
	_, err := client.Infer(context.Background(), "s", nil)

	var malformed *action.MalformedActionError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "y", malformed.Field)
}

func TestTransientErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(SessionInfo{ID: "sess-1"})
	}))
	defer srv.Close()

	client := testClient(t, srv.URL)
	id, err := client.StartSession(context.Background(), "t", nil)
	require.NoError(t, err)

	assert.Equal(t, "sess-1", id)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "bad task"}`))
	}))
	defer srv.Close()

	client := testClient(t, srv.URL)
	_, err := client.StartSession(context.Background(), "t", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load(), "4xx responses must fail immediately")
}

func TestFinishAndFailSessionPaths(t *testing.T) {
	type call struct {
		path string
		body finishSessionRequest
	}
	var calls []call

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body finishSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		calls = append(calls, call{path: r.URL.Path, body: body})
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := testClient(t, srv.URL)
	require.NoError(t, client.FinishSession(context.Background(), "sess-9", ""))
	require.NoError(t, client.FailSession(context.Background(), "sess-9", "capture broke"))

	require.Len(t, calls, 2)
	assert.Equal(t, "/v1/quantum/sessions/sess-9/finish", calls[0].path)
	assert.Equal(t, "finish", calls[0].body.Status)
	assert.Equal(t, "/v1/quantum/sessions/sess-9/fail", calls[1].path)
	assert.Equal(t, "fail", calls[1].body.Status)
	assert.Equal(t, "capture broke", calls[1].body.Reason)
}

func TestPostTelemetry(t *testing.T) {
	var got telemetryBatch
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/quantum/telemetry", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := testClient(t, srv.URL)

	require.NoError(t, client.PostTelemetry(context.Background(), nil), "an empty batch is a no-op")
	assert.Zero(t, calls.Load())

	events := []TelemetryEvent{{ID: "1", Name: "session_start", Level: "info", Timestamp: time.Now().UTC()}}
	require.NoError(t, client.PostTelemetry(context.Background(), events))
	require.Len(t, got.Events, 1)
	assert.Equal(t, "session_start", got.Events[0].Name)
}
