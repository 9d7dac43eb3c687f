// Package ollama provides ChatModel and Embedder adapters for an Ollama
// inference server, using its native REST API.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowbrg/homer/graph/model"
)

// DefaultHost is the address of a locally running Ollama server.
const DefaultHost = "http://127.0.0.1:11434"

// doer abstracts the HTTP client for tests.
type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

func defaultHTTPClient() *http.Client {
	// Local model inference can be slow, especially first-token latency
	// on cold models. The per-request context still bounds total time.
	return &http.Client{Timeout: 10 * time.Minute}
}

// ChatModel implements model.ChatModel against Ollama's /api/chat endpoint.
//
// Supports:
//   - multi-turn conversations
//   - multimodal messages (images) for vision models
//   - tool calling for models that support it
//   - automatic retry on transient network and 5xx errors
//
// Example:
//
//	m := ollama.NewChatModel(ollama.DefaultHost, "qwen3:0.6b")
//	out, err := m.Chat(ctx, []model.Message{{Role: model.RoleUser, Content: "hello"}}, nil)
type ChatModel struct {
	host       string
	modelName  string
	http       doer
	maxRetries int
	retryDelay time.Duration
}

// NewChatModel creates a ChatModel for the given Ollama host and model
// name. An empty host defaults to DefaultHost.
func NewChatModel(host, modelName string) *ChatModel {
	if host == "" {
		host = DefaultHost
	}
	return &ChatModel{
		host:       strings.TrimRight(host, "/"),
		modelName:  modelName,
		http:       defaultHTTPClient(),
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []toolDef     `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type toolDef struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type chatResponse struct {
	Message struct {
		Role      string `json:"role"`
		Content   string `json:"content"`
		ToolCalls []struct {
			Function struct {
				Name      string                 `json:"name"`
				Arguments map[string]interface{} `json:"arguments"`
			} `json:"function"`
		} `json:"tool_calls"`
	} `json:"message"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
	Done            bool `json:"done"`
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	req := chatRequest{
		Model:    m.modelName,
		Messages: make([]chatMessage, 0, len(messages)),
		Stream:   false,
	}
	for _, msg := range messages {
		cm := chatMessage{Role: msg.Role, Content: msg.Content}
		for _, img := range msg.Images {
			cm.Images = append(cm.Images, base64.StdEncoding.EncodeToString(img))
		}
		req.Messages = append(req.Messages, cm)
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, toolDef{
			Type: "function",
			Function: toolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema,
			},
		})
	}

	var resp chatResponse
	if err := m.post(ctx, "/api/chat", req, &resp); err != nil {
		return model.ChatOut{}, err
	}

	out := model.ChatOut{
		Text: resp.Message.Content,
		Usage: model.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
		},
	}
	for _, tc := range resp.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{
			Name:  tc.Function.Name,
			Input: tc.Function.Arguments,
		})
	}
	return out, nil
}

// post sends a JSON request with retries on transient failures.
func (m *ChatModel) post(ctx context.Context, path string, payload, result interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		err := postJSON(ctx, m.http, m.host+path, payload, result)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isTransientError(err) || attempt >= m.maxRetries {
			break
		}

		select {
		case <-time.After(m.retryDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("ollama %s: %w", path, lastErr)
}

// EmbeddingModel implements model.Embedder against /api/embed.
type EmbeddingModel struct {
	host       string
	modelName  string
	http       doer
	maxRetries int
	retryDelay time.Duration
}

// NewEmbeddingModel creates an Embedder for the given Ollama host and
// embedding model name (e.g. "nomic-embed-text").
func NewEmbeddingModel(host, modelName string) *EmbeddingModel {
	if host == "" {
		host = DefaultHost
	}
	return &EmbeddingModel{
		host:       strings.TrimRight(host, "/"),
		modelName:  modelName,
		http:       defaultHTTPClient(),
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed implements model.Embedder.
func (m *EmbeddingModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if len(texts) == 0 {
		return nil, nil
	}

	req := embedRequest{Model: m.modelName, Input: texts}

	var resp embedResponse
	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		err := postJSON(ctx, m.http, m.host+"/api/embed", req, &resp)
		if err == nil {
			if len(resp.Embeddings) != len(texts) {
				return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
			}
			return resp.Embeddings, nil
		}
		lastErr = err

		if !isTransientError(err) || attempt >= m.maxRetries {
			break
		}

		select {
		case <-time.After(m.retryDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("ollama /api/embed: %w", lastErr)
}

// ModelInfo describes a model available on the Ollama server.
type ModelInfo struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}

// ListModels returns the models installed on the Ollama server at host.
func ListModels(ctx context.Context, host string) ([]ModelInfo, error) {
	if host == "" {
		host = DefaultHost
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(host, "/")+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := defaultHTTPClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama /api/tags: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &apiError{status: resp.StatusCode, body: string(body)}
	}

	var tags struct {
		Models []ModelInfo `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return tags.Models, nil
}

// apiError carries a non-2xx response from the Ollama server.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("ollama server returned %d: %s", e.status, e.body)
}

func postJSON(ctx context.Context, client doer, url string, payload, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apiError{status: resp.StatusCode, body: string(respBody)}
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// isTransientError reports whether an error is worth retrying: network
// failures and server-side 5xx responses.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.status >= 500
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "connection refused", "connection reset", "temporary", "eof"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
