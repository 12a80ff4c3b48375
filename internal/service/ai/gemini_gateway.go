package ai

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/schema"

	"github.com/zhouzirui/z-voice/backend/internal/config"
	"github.com/zhouzirui/z-voice/backend/internal/model/chat"
)

// LangchainGateway drives any langchaingo llms.Model. The Gemini backend is
// the googleai implementation.
type LangchainGateway struct {
	llm          llms.Model
	systemPrompt string
	historyLimit int
	options      []llms.CallOption
}

// NewGeminiGateway connects to Google Gemini with GOOGLE_API_KEY.
func NewGeminiGateway(ctx context.Context, cfg config.AIConfig) (*LangchainGateway, error) {
	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.GoogleAPIKey),
		googleai.WithDefaultModel(cfg.GeminiModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return NewLangchainGateway(llm, cfg), nil
}

// NewLangchainGateway wraps an existing model with the configured prompt and
// sampling options.
func NewLangchainGateway(llm llms.Model, cfg config.AIConfig) *LangchainGateway {
	var options []llms.CallOption
	if cfg.Temperature != nil {
		options = append(options, llms.WithTemperature(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		options = append(options, llms.WithTopP(*cfg.TopP))
	}
	if cfg.MaxTokens != nil {
		options = append(options, llms.WithMaxTokens(*cfg.MaxTokens))
	}

	return &LangchainGateway{
		llm:          llm,
		systemPrompt: cfg.SystemPrompt,
		historyLimit: cfg.HistoryLimit,
		options:      options,
	}
}

func (g *LangchainGateway) Generate(ctx context.Context, input string, history []chat.Turn, _ map[string]any) (string, error) {
	resp, err := g.llm.GenerateContent(ctx, g.buildContent(input, windowHistory(history, g.historyLimit)), g.options...)
	if err != nil {
		return "", fmt.Errorf("generate content failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return checkReply(resp.Choices[0].Content)
}

func (g *LangchainGateway) buildContent(input string, history []chat.Turn) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(history)+2)
	if g.systemPrompt != "" {
		content = append(content, llms.TextParts(schema.ChatMessageTypeSystem, g.systemPrompt))
	}
	for _, turn := range history {
		role := schema.ChatMessageTypeHuman
		if turn.Role == chat.RoleAssistant {
			role = schema.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, turn.Content))
	}
	return append(content, llms.TextParts(schema.ChatMessageTypeHuman, input))
}
