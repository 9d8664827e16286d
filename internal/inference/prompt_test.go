// File: internal/inference/prompt_test.go
package inference

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quantumagi/agi-sdk-go/internal/action"
	"github.com/quantumagi/agi-sdk-go/internal/config"
)

// -- Response parsing --

func TestParseModelResponseBareAction(t *testing.T) {
	decoder := action.NewDecoder()

	res, err := parseModelResponse(`{"type": "click", "x": 100, "y": 200}`, decoder)
	require.NoError(t, err)

	assert.Equal(t, action.TypeClick, res.Action.Type)
	assert.Equal(t, 100, res.Action.X)
	assert.Equal(t, 1.0, res.Confidence, "bare actions carry full confidence")
	assert.Empty(t, res.Reasoning)
}

func TestParseModelResponseEnvelope(t *testing.T) {
	decoder := action.NewDecoder()

	raw := `{"action": {"type": "type", "text": "hello"}, "reasoning": "the field is focused", "confidence": 0.75}`
	res, err := parseModelResponse(raw, decoder)
	require.NoError(t, err)

	assert.Equal(t, action.TypeType, res.Action.Type)
	assert.Equal(t, "hello", res.Action.Text)
	assert.Equal(t, "the field is focused", res.Reasoning)
	assert.Equal(t, 0.75, res.Confidence)
}

func TestParseModelResponseFenced(t *testing.T) {
	decoder := action.NewDecoder()

	raw := "```json\n{\"type\": \"finish\", \"message\": \"done\"}\n```"
	res, err := parseModelResponse(raw, decoder)
	require.NoError(t, err)

	assert.Equal(t, action.TypeFinish, res.Action.Type)
	assert.Equal(t, "done", res.Action.Message)
}

func TestParseModelResponseRejectsGarbage(t *testing.T) {
	decoder := action.NewDecoder()

	_, err := parseModelResponse("I will now click the button.", decoder)
	require.Error(t, err)

	var malformed *action.MalformedActionError
	assert.ErrorAs(t, err, &malformed)
}

func TestParseModelResponseInvalidActionInEnvelope(t *testing.T) {
	decoder := action.NewDecoder()

	_, err := parseModelResponse(`{"action": {"type": "warp"}, "reasoning": "x"}`, decoder)

	var unrecognized *action.UnrecognizedTypeError
	require.ErrorAs(t, err, &unrecognized)
	assert.Equal(t, "warp", unrecognized.Type)
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"{\"type\": \"screenshot\"}":                      `{"type": "screenshot"}`,
		"```json\n{\"a\": 1}\n```":                        `{"a": 1}`,
		"```\n{\"a\": 1}\n```":                            `{"a": 1}`,
		"  \n```json\n{\"a\": 1}\n```\n ":                 `{"a": 1}`,
	}
	for in, want := range cases {
		assert.Equal(t, want, stripFences(in))
	}
}

// -- High-impact heuristic --

func TestIsHighImpact(t *testing.T) {
	click := action.Action{Type: action.TypeClick, X: 1, Y: 2, Button: "left"}

	assert.False(t, isHighImpact(click, "moving to the next page"))
	assert.True(t, isHighImpact(click, "clicking the Delete button"))
	assert.True(t, isHighImpact(click, "submit the order form"))

	typed := action.Action{Type: action.TypeType, Text: "confirm purchase"}
	assert.True(t, isHighImpact(typed, ""))

	safe := action.Action{Type: action.TypeScroll, X: 0, Y: 0, Direction: "down", Amount: 3}
	assert.False(t, isHighImpact(safe, ""))
}

func TestHighImpactSetsRequiresConfirmation(t *testing.T) {
	decoder := action.NewDecoder()

	res, err := parseModelResponse(`{"action": {"type": "click", "x": 5, "y": 5}, "reasoning": "pay the invoice"}`, decoder)
	require.NoError(t, err)
	assert.True(t, res.RequiresConfirmation)

	res, err = parseModelResponse(`{"type": "hover", "x": 5, "y": 5}`, decoder)
	require.NoError(t, err)
	assert.False(t, res.RequiresConfirmation)
}

// -- Provider selection --

func TestNewInferencer(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("empty provider means remote inference", func(t *testing.T) {
		inf, err := NewInferencer(context.Background(), config.InferenceConfig{}, logger)
		require.NoError(t, err)
		assert.Nil(t, inf)
	})

	t.Run("openai", func(t *testing.T) {
		cfg := config.InferenceConfig{Provider: "openai", Model: "gpt-4o", APIKey: "sk-x"}
		inf, err := NewInferencer(context.Background(), cfg, logger)
		require.NoError(t, err)
		assert.IsType(t, &OpenAIProvider{}, inf)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewInferencer(context.Background(), config.InferenceConfig{Provider: "bard"}, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown inference provider")
	})
}

func TestLocalSessionService(t *testing.T) {
	svc := NewLocalSessionService(zaptest.NewLogger(t))

	id, err := svc.StartSession(context.Background(), "some task", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "local-"))

	id2, err := svc.StartSession(context.Background(), "another task", nil)
	require.NoError(t, err)
	assert.NotEqual(t, id, id2)

	assert.NoError(t, svc.FinishSession(context.Background(), id, "done"))
	assert.NoError(t, svc.FailSession(context.Background(), id2, "broke"))
}
