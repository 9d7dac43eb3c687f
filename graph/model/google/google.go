// Package google provides a ChatModel adapter for Google's Gemini API.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/flowbrg/homer/graph/model"
)

// SafetyFilterError is returned when Gemini blocks a prompt or response on
// safety grounds. Callers can surface the category to the user instead of a
// generic failure.
type SafetyFilterError struct {
	// Category describes what was blocked.
	Category string
}

// Error implements the error interface.
func (e *SafetyFilterError) Error() string {
	return "content blocked by safety filter: " + e.Category
}

// ChatModel implements model.ChatModel for the Gemini API.
type ChatModel struct {
	modelName string
	client    generateClient
}

// generateClient is the slice of the SDK this adapter uses. Tests
// substitute a fake.
type generateClient interface {
	generateContent(ctx context.Context, modelName, systemPrompt string, messages []model.Message) (model.ChatOut, error)
}

// NewChatModel creates a Gemini ChatModel. An empty modelName selects a
// flash-tier default.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	return &ChatModel{
		modelName: modelName,
		client:    &sdkClient{apiKey: apiKey},
	}
}

// Chat implements model.ChatModel. Tool specifications are not forwarded;
// homer invokes its tools from pipeline nodes directly.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}
	if len(tools) > 0 {
		return model.ChatOut{}, errors.New("google adapter does not forward tool specs")
	}
	if len(messages) == 0 {
		return model.ChatOut{}, errors.New("no messages provided")
	}

	var system []string
	conversation := make([]model.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		conversation = append(conversation, msg)
	}

	return m.client.generateContent(ctx, m.modelName, strings.Join(system, "\n\n"), conversation)
}

type sdkClient struct {
	apiKey string

	once    sync.Once
	client  *genai.Client
	initErr error
}

func (c *sdkClient) init(ctx context.Context) error {
	c.once.Do(func() {
		c.client, c.initErr = genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	})
	return c.initErr
}

func (c *sdkClient) generateContent(ctx context.Context, modelName, systemPrompt string, messages []model.Message) (model.ChatOut, error) {
	if err := c.init(ctx); err != nil {
		return model.ChatOut{}, fmt.Errorf("create gemini client: %w", err)
	}

	gm := c.client.GenerativeModel(modelName)
	if systemPrompt != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}

	// Gemini takes history and the final message separately.
	session := gm.StartChat()
	for _, msg := range messages[:len(messages)-1] {
		role := "user"
		if msg.Role == model.RoleAssistant {
			role = "model"
		}
		session.History = append(session.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	resp, err := session.SendMessage(ctx, genai.Text(messages[len(messages)-1].Content))
	if err != nil {
		return model.ChatOut{}, err
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return model.ChatOut{}, &SafetyFilterError{Category: resp.PromptFeedback.BlockReason.String()}
		}
		return model.ChatOut{}, errors.New("gemini returned no candidates")
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return model.ChatOut{}, &SafetyFilterError{Category: "response safety"}
	}

	var text strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}

	out := model.ChatOut{Text: text.String()}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}
