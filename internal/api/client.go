// internal/api/client.go
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/quantumagi/agi-sdk-go/internal/action"
	"github.com/quantumagi/agi-sdk-go/internal/agent"
	"github.com/quantumagi/agi-sdk-go/internal/config"
)

const (
	sessionsPath  = "/v1/quantum/sessions"
	telemetryPath = "/v1/quantum/telemetry"
)

// Client talks to the hosted agent API. It implements both the session
// lifecycle and the remote inference port of the agent loop.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	deviceID   string
	httpClient *http.Client
	logger     *zap.Logger
	limiter    *rate.Limiter
	decoder    *action.Decoder

	maxElapsedTime time.Duration
	maxInterval    time.Duration
}

// NewClient builds a Client from configuration. The device ID, when set,
// is attached to every session the client opens. A nil logger falls back to
// a no-op logger so the client is safe to use from tests.
func NewClient(cfg config.APIConfig, deviceID string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Limit(cfg.InferenceRate)
	if cfg.InferenceRate <= 0 {
		limit = rate.Inf
	}
	maxElapsed := cfg.MaxElapsedTime
	if maxElapsed <= 0 {
		maxElapsed = 2 * time.Minute
	}
	maxInterval := cfg.MaxInterval
	if maxInterval <= 0 {
		maxInterval = 30 * time.Second
	}
	return &Client{
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		deviceID:       deviceID,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		logger:         logger,
		limiter:        rate.NewLimiter(limit, 1),
		decoder:        action.NewDecoder(),
		maxElapsedTime: maxElapsed,
		maxInterval:    maxInterval,
	}
}

// StartSession opens a session for the given task and returns its ID.
func (c *Client) StartSession(ctx context.Context, task string, taskContext map[string]interface{}) (string, error) {
	reqBody := startSessionRequest{
		Task:     task,
		DeviceID: c.deviceID,
		Context:  taskContext,
	}
	var info SessionInfo
	if err := c.postJSON(ctx, sessionsPath, reqBody, &info); err != nil {
		return "", fmt.Errorf("starting session: %w", err)
	}
	c.logger.Info("Session started", zap.String("session_id", info.ID))
	return info.ID, nil
}

// Infer sends the conversation to the server and decodes its next-action
// decision. Calls are rate limited to stay within the API quota.
func (c *Client) Infer(ctx context.Context, sessionID string, conversation []agent.Message) (agent.InferenceResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return agent.InferenceResult{}, err
	}
	reqBody := inferenceRequest{
		Messages: conversation,
		Model:    c.model,
	}
	start := time.Now()
	var resp inferenceResponse
	path := fmt.Sprintf("%s/%s/inference", sessionsPath, sessionID)
	if err := c.postJSON(ctx, path, reqBody, &resp); err != nil {
		return agent.InferenceResult{}, fmt.Errorf("inference request: %w", err)
	}
	c.logger.Debug("Inference response received",
		zap.String("session_id", sessionID),
		zap.Int("step", resp.StepNumber),
		zap.Duration("duration", time.Since(start)))

	act, err := c.decoder.Decode(resp.Action)
	if err != nil {
		return agent.InferenceResult{}, err
	}
	return agent.InferenceResult{
		Action:               act,
		Reasoning:            resp.Reasoning,
		Confidence:           resp.Confidence,
		RequiresConfirmation: resp.RequiresConfirmation,
	}, nil
}

// FinishSession marks a session as completed.
func (c *Client) FinishSession(ctx context.Context, sessionID, reason string) error {
	path := fmt.Sprintf("%s/%s/finish", sessionsPath, sessionID)
	return c.postJSON(ctx, path, finishSessionRequest{Status: "finish", Reason: reason}, nil)
}

// FailSession marks a session as failed with a reason.
func (c *Client) FailSession(ctx context.Context, sessionID, reason string) error {
	path := fmt.Sprintf("%s/%s/fail", sessionsPath, sessionID)
	return c.postJSON(ctx, path, finishSessionRequest{Status: "fail", Reason: reason}, nil)
}

// PostTelemetry forwards a batch of telemetry events through the proxy
// endpoint.
func (c *Client) PostTelemetry(ctx context.Context, events []TelemetryEvent) error {
	if len(events) == 0 {
		return nil
	}
	return c.postJSON(ctx, telemetryPath, telemetryBatch{Events: events}, nil)
}

// postJSON performs a POST with retry. Transient server responses are retried
// with exponential backoff until the elapsed-time ceiling; everything else
// fails immediately.
func (c *Client) postJSON(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("marshaling request body: %w", err))
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("API request failed, will retry", zap.String("path", path), zap.Error(err))
			return err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return c.handleAPIError(resp.StatusCode, respBody, path)
		}
		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return backoff.Permanent(fmt.Errorf("unmarshaling response: %w", err))
			}
		}
		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = c.maxElapsedTime
	expBackoff.MaxInterval = c.maxInterval

	return backoff.Retry(operation, backoff.WithContext(expBackoff, ctx))
}

// handleAPIError classifies non-200 responses into retryable and permanent
// failures.
func (c *Client) handleAPIError(statusCode int, body []byte, path string) error {
	apiErr := fmt.Errorf("API error on %s: status %d: %s", path, statusCode, string(body))
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
		c.logger.Warn("Transient API error, will retry",
			zap.Int("status", statusCode),
			zap.String("path", path))
		return apiErr
	default:
		return backoff.Permanent(apiErr)
	}
}
