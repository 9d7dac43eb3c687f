// Package anthropic provides a ChatModel adapter for Anthropic's Claude
// API, for deployments that pair local retrieval with a hosted model.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/flowbrg/homer/graph/model"
)

const defaultMaxTokens = 4096

// ChatModel implements model.ChatModel for Anthropic's messages API.
//
// Anthropic takes the system prompt as a separate parameter rather than a
// message, so system messages are extracted from the conversation before
// the request is built.
type ChatModel struct {
	modelName string
	client    messagesClient
}

// messagesClient is the slice of the SDK this adapter uses. Tests
// substitute a fake.
type messagesClient interface {
	createMessage(ctx context.Context, modelName, systemPrompt string, messages []model.Message) (model.ChatOut, error)
}

// NewChatModel creates an Anthropic ChatModel. An empty modelName selects a
// small default.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = "claude-3-5-haiku-latest"
	}
	return &ChatModel{
		modelName: modelName,
		client:    &sdkClient{client: anthropic.NewClient(option.WithAPIKey(apiKey))},
	}
}

// Chat implements model.ChatModel. Tool specifications are not forwarded;
// homer invokes its tools from pipeline nodes directly.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}
	if len(tools) > 0 {
		return model.ChatOut{}, errors.New("anthropic adapter does not forward tool specs")
	}

	systemPrompt, conversation := extractSystemPrompt(messages)
	out, err := m.client.createMessage(ctx, m.modelName, systemPrompt, conversation)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("anthropic message: %w", err)
	}
	return out, nil
}

// extractSystemPrompt separates system messages from the conversation.
// Multiple system messages are joined with blank lines.
func extractSystemPrompt(messages []model.Message) (string, []model.Message) {
	var system []string
	conversation := make([]model.Message, 0, len(messages))

	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		conversation = append(conversation, msg)
	}
	return strings.Join(system, "\n\n"), conversation
}

type sdkClient struct {
	client anthropic.Client
}

func (c *sdkClient) createMessage(ctx context.Context, modelName, systemPrompt string, messages []model.Message) (model.ChatOut, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelName),
		MaxTokens: defaultMaxTokens,
		Messages:  make([]anthropic.MessageParam, 0, len(messages)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	for _, msg := range messages {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return model.ChatOut{
		Text: text.String(),
		Usage: model.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}
