// internal/inference/openai.go
package inference

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/quantumagi/agi-sdk-go/internal/action"
	"github.com/quantumagi/agi-sdk-go/internal/agent"
	"github.com/quantumagi/agi-sdk-go/internal/config"
)

// OpenAIProvider runs inference directly against an OpenAI-compatible chat
// completions endpoint, bypassing the hosted agent API.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	decoder     *action.Decoder
	logger      *zap.Logger
}

// NewOpenAIProvider builds a provider from the direct-inference config.
func NewOpenAIProvider(cfg config.InferenceConfig, logger *zap.Logger) *OpenAIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}
	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		decoder:     action.NewDecoder(),
		logger:      logger,
	}
}

// Infer converts the conversation into chat messages, requests a JSON-mode
// completion and decodes the returned action.
func (p *OpenAIProvider) Infer(ctx context.Context, _ string, conversation []agent.Message) (agent.InferenceResult, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(conversation)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, msg := range conversation {
		messages = append(messages, toChatMessage(msg))
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return agent.InferenceResult{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return agent.InferenceResult{}, fmt.Errorf("openai chat completion: empty choices")
	}
	p.logger.Debug("OpenAI completion received",
		zap.String("model", p.model),
		zap.Duration("duration", time.Since(start)))

	return parseModelResponse(resp.Choices[0].Message.Content, p.decoder)
}

// toChatMessage maps a conversation entry onto the chat API's message shape.
// Screenshot entries become image parts; everything else is plain text.
func toChatMessage(msg agent.Message) openai.ChatCompletionMessage {
	role := openai.ChatMessageRoleUser
	if msg.Role == agent.RoleAssistant {
		role = openai.ChatMessageRoleAssistant
	}

	if msg.ImageB64 != "" {
		parts := []openai.ChatMessagePart{}
		if msg.Text != "" {
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: msg.Text,
			})
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:image/png;base64," + msg.ImageB64,
				Detail: openai.ImageURLDetailAuto,
			},
		})
		return openai.ChatCompletionMessage{Role: role, MultiContent: parts}
	}

	text := msg.Text
	if msg.Action != nil {
		text = msg.Action.String()
		if msg.Reasoning != "" {
			text += "\nReasoning: " + msg.Reasoning
		}
	}
	return openai.ChatCompletionMessage{Role: role, Content: text}
}
