// internal/inference/gemini.go
package inference

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/quantumagi/agi-sdk-go/internal/action"
	"github.com/quantumagi/agi-sdk-go/internal/agent"
	"github.com/quantumagi/agi-sdk-go/internal/config"
)

// GeminiProvider runs inference directly against the Gemini API.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int
	decoder     *action.Decoder
	logger      *zap.Logger
}

// NewGeminiProvider builds a provider from the direct-inference config.
func NewGeminiProvider(ctx context.Context, cfg config.InferenceConfig, logger *zap.Logger) (*GeminiProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiProvider{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		decoder:     action.NewDecoder(),
		logger:      logger,
	}, nil
}

// Infer converts the conversation into Gemini content, requests a JSON
// response and decodes the returned action.
func (p *GeminiProvider) Infer(ctx context.Context, _ string, conversation []agent.Message) (agent.InferenceResult, error) {
	contents := make([]*genai.Content, 0, len(conversation))
	for _, msg := range conversation {
		content, err := toGeminiContent(msg)
		if err != nil {
			return agent.InferenceResult{}, err
		}
		contents = append(contents, content)
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(p.temperature),
		ResponseMIMEType: "application/json",
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
	}
	if p.maxTokens > 0 {
		genCfg.MaxOutputTokens = int32(p.maxTokens)
	}

	start := time.Now()
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, genCfg)
	if err != nil {
		return agent.InferenceResult{}, fmt.Errorf("gemini generate content: %w", err)
	}
	p.logger.Debug("Gemini completion received",
		zap.String("model", p.model),
		zap.Duration("duration", time.Since(start)))

	text := resp.Text()
	if text == "" {
		return agent.InferenceResult{}, fmt.Errorf("gemini generate content: empty response")
	}
	return parseModelResponse(text, p.decoder)
}

// toGeminiContent maps a conversation entry onto Gemini's content shape.
func toGeminiContent(msg agent.Message) (*genai.Content, error) {
	role := genai.RoleUser
	if msg.Role == agent.RoleAssistant {
		role = genai.RoleModel
	}

	parts := []*genai.Part{}
	if msg.ImageB64 != "" {
		raw, err := base64.StdEncoding.DecodeString(msg.ImageB64)
		if err != nil {
			return nil, fmt.Errorf("decoding screenshot: %w", err)
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: "image/png", Data: raw},
		})
	}

	text := msg.Text
	if msg.Action != nil {
		text = msg.Action.String()
		if msg.Reasoning != "" {
			text += "\nReasoning: " + msg.Reasoning
		}
	}
	if text != "" {
		parts = append(parts, &genai.Part{Text: text})
	}
	if len(parts) == 0 {
		parts = append(parts, &genai.Part{Text: ""})
	}

	return &genai.Content{Role: role, Parts: parts}, nil
}
