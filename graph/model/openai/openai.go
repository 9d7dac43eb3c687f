// Package openai provides ChatModel and Embedder adapters for OpenAI and
// OpenAI-compatible endpoints (including Ollama's /v1 API).
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/flowbrg/homer/graph/model"
)

// ChatModel implements model.ChatModel over the OpenAI chat completions
// API. A custom base URL pointing at any compatible server turns this into
// a generic adapter; with Ollama use "http://127.0.0.1:11434/v1".
//
// Example:
//
//	m := openai.NewChatModel(apiKey, "gpt-4o-mini", "")
//	out, err := m.Chat(ctx, messages, nil)
type ChatModel struct {
	modelName  string
	client     completionClient
	maxRetries int
	retryDelay time.Duration
}

// completionClient is the slice of the SDK this adapter uses. Tests
// substitute a fake.
type completionClient interface {
	createChatCompletion(ctx context.Context, modelName string, messages []model.Message) (model.ChatOut, error)
}

// NewChatModel creates an OpenAI-compatible ChatModel. baseURL may be empty
// for the hosted OpenAI API.
func NewChatModel(apiKey, modelName, baseURL string) *ChatModel {
	return &ChatModel{
		modelName:  modelName,
		client:     newSDKClient(apiKey, baseURL),
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// Chat implements model.ChatModel. Tool specifications are not forwarded:
// homer invokes its tools from pipeline nodes directly rather than via
// provider-side function calling.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}
	if len(tools) > 0 {
		return model.ChatOut{}, errors.New("openai adapter does not forward tool specs")
	}

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		out, err := m.client.createChatCompletion(ctx, m.modelName, messages)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !isTransientError(err) || attempt >= m.maxRetries {
			break
		}

		select {
		case <-time.After(m.retryDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return model.ChatOut{}, ctx.Err()
		}
	}
	return model.ChatOut{}, fmt.Errorf("openai chat completion: %w", lastErr)
}

// EmbeddingModel implements model.Embedder over the embeddings API.
type EmbeddingModel struct {
	modelName string
	client    embeddingClient
}

type embeddingClient interface {
	createEmbeddings(ctx context.Context, modelName string, texts []string) ([][]float32, error)
}

// NewEmbeddingModel creates an OpenAI-compatible Embedder.
func NewEmbeddingModel(apiKey, modelName, baseURL string) *EmbeddingModel {
	return &EmbeddingModel{
		modelName: modelName,
		client:    newSDKClient(apiKey, baseURL),
	}
}

// Embed implements model.Embedder.
func (m *EmbeddingModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if len(texts) == 0 {
		return nil, nil
	}
	return m.client.createEmbeddings(ctx, m.modelName, texts)
}

// sdkClient wraps the official openai-go client.
type sdkClient struct {
	client openai.Client
}

func newSDKClient(apiKey, baseURL string) *sdkClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &sdkClient{client: openai.NewClient(opts...)}
}

func (c *sdkClient) createChatCompletion(ctx context.Context, modelName string, messages []model.Message) (model.ChatOut, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelName),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, err
	}
	if len(resp.Choices) == 0 {
		return model.ChatOut{}, errors.New("completion returned no choices")
	}

	return model.ChatOut{
		Text: resp.Choices[0].Message.Content,
		Usage: model.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

func (c *sdkClient) createEmbeddings(ctx context.Context, modelName string, texts []string) ([][]float32, error) {
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(modelName),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings API returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

// isTransientError reports whether a failure is worth retrying.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "network", "connection", "temporary", "429", "500", "502", "503"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
