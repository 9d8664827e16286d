// internal/inference/provider.go
package inference

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quantumagi/agi-sdk-go/internal/agent"
	"github.com/quantumagi/agi-sdk-go/internal/config"
)

// NewInferencer builds the direct inference provider selected by the config.
// An empty provider means the remote API does inference and nothing is built
// here.
func NewInferencer(ctx context.Context, cfg config.InferenceConfig, logger *zap.Logger) (agent.Inferencer, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg, logger), nil
	case "gemini":
		return NewGeminiProvider(ctx, cfg, logger)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown inference provider %q", cfg.Provider)
	}
}

// LocalSessionService satisfies the session port without a remote API. Used
// when a direct provider handles inference and no hosted session exists.
type LocalSessionService struct {
	logger *zap.Logger
}

// NewLocalSessionService returns a session service that mints local IDs.
func NewLocalSessionService(logger *zap.Logger) *LocalSessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalSessionService{logger: logger}
}

// StartSession mints a local session ID.
func (s *LocalSessionService) StartSession(_ context.Context, task string, _ map[string]interface{}) (string, error) {
	id := "local-" + uuid.NewString()
	s.logger.Debug("Local session started", zap.String("session_id", id), zap.String("task", task))
	return id, nil
}

// FinishSession records the outcome locally.
func (s *LocalSessionService) FinishSession(_ context.Context, sessionID, reason string) error {
	s.logger.Debug("Local session finished", zap.String("session_id", sessionID), zap.String("reason", reason))
	return nil
}

// FailSession records the failure locally.
func (s *LocalSessionService) FailSession(_ context.Context, sessionID, reason string) error {
	s.logger.Debug("Local session failed", zap.String("session_id", sessionID), zap.String("reason", reason))
	return nil
}
