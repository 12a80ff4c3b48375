// Package ai wraps the hosted language models behind a single Gateway call:
// text + history in, text out.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/z-voice/backend/internal/config"
	"github.com/zhouzirui/z-voice/backend/internal/model/chat"
)

// ErrEmptyResponse is returned when a backend answers with no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Gateway generates the assistant reply for input given the prior transcript.
// Implementations must not mutate history.
type Gateway interface {
	Generate(ctx context.Context, input string, history []chat.Turn, metadata map[string]any) (string, error)
}

// NewGateway builds the backend selected by cfg.Provider.
func NewGateway(ctx context.Context, cfg config.AIConfig) (Gateway, error) {
	switch cfg.Provider {
	case config.ProviderArk:
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		return NewEinoGateway(ctx, chatModel, cfg)
	case config.ProviderOpenAI:
		return NewOpenAIGateway(cfg), nil
	case config.ProviderGemini:
		return NewGeminiGateway(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// windowHistory keeps the most recent limit turns; limit <= 0 keeps all.
func windowHistory(history []chat.Turn, limit int) []chat.Turn {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}

func checkReply(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
