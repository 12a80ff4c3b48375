package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/elliotchance/pie/v2"

	"github.com/zhouzirui/z-voice/backend/internal/config"
	"github.com/zhouzirui/z-voice/backend/internal/model/chat"
)

// EinoGateway runs a compiled eino chain: system prompt, history placeholder,
// user query, chat model.
type EinoGateway struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	systemPrompt string
	historyLimit int
}

// NewEinoGateway compiles the prompt chain around chatModel.
func NewEinoGateway(ctx context.Context, chatModel model.ChatModel, cfg config.AIConfig) (*EinoGateway, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &EinoGateway{
		chain:        runnable,
		systemPrompt: cfg.SystemPrompt,
		historyLimit: cfg.HistoryLimit,
	}, nil
}

func (g *EinoGateway) Generate(ctx context.Context, input string, history []chat.Turn, metadata map[string]any) (string, error) {
	response, err := g.chain.Invoke(ctx, map[string]any{
		"system":  g.systemPrompt,
		"history": buildSchemaHistory(windowHistory(history, g.historyLimit)),
		"query":   input,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	slog.Debug("[ai] ark response", "length", len(response.Content), "metadata", metadata)
	return checkReply(response.Content)
}

func buildSchemaHistory(turns []chat.Turn) []*schema.Message {
	known := pie.Filter(turns, func(t chat.Turn) bool {
		return t.Role == chat.RoleUser || t.Role == chat.RoleAssistant
	})
	return pie.Map(known, func(t chat.Turn) *schema.Message {
		if t.Role == chat.RoleUser {
			return schema.UserMessage(t.Content)
		}
		return schema.AssistantMessage(t.Content, nil)
	})
}
