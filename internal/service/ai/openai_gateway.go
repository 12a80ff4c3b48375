package ai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/z-voice/backend/internal/config"
	"github.com/zhouzirui/z-voice/backend/internal/model/chat"
)

// OpenAIGateway talks to any OpenAI-compatible chat completions endpoint.
type OpenAIGateway struct {
	client       *openai.Client
	model        string
	systemPrompt string
	historyLimit int
	temperature  float32
	topP         float32
	maxTokens    int
}

func NewOpenAIGateway(cfg config.AIConfig) *OpenAIGateway {
	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}

	g := &OpenAIGateway{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.OpenAIModel,
		systemPrompt: cfg.SystemPrompt,
		historyLimit: cfg.HistoryLimit,
	}
	if cfg.Temperature != nil {
		g.temperature = float32(*cfg.Temperature)
	}
	if cfg.TopP != nil {
		g.topP = float32(*cfg.TopP)
	}
	if cfg.MaxTokens != nil {
		g.maxTokens = *cfg.MaxTokens
	}
	return g
}

func (g *OpenAIGateway) Generate(ctx context.Context, input string, history []chat.Turn, metadata map[string]any) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    g.buildMessages(input, windowHistory(history, g.historyLimit)),
		Temperature: g.temperature,
		TopP:        g.topP,
		MaxTokens:   g.maxTokens,
	}
	if sessionID, ok := metadata["session_id"].(string); ok {
		req.User = sessionID
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return checkReply(resp.Choices[0].Message.Content)
}

func (g *OpenAIGateway) buildMessages(input string, history []chat.Turn) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if g.systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: g.systemPrompt,
		})
	}
	for _, turn := range history {
		role := openai.ChatMessageRoleUser
		if turn.Role == chat.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: input,
	})
}
