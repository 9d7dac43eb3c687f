// Package model provides LLM provider adapters for chat and embeddings.
package model

import "context"

// ChatModel is the interface for LLM chat providers.
//
// It abstracts over Ollama, OpenAI-compatible endpoints, Anthropic and
// Google so pipeline nodes never care which backend serves a model.
// Implementations handle provider authentication, message format
// conversion, and transient-error retries, and must respect context
// cancellation.
type ChatModel interface {
	// Chat sends the conversation to the model and returns its reply.
	// tools may be nil when tool calling is not wanted.
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Embedder is the interface for embedding providers. Indexing and retrieval
// both go through it.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Message is a single message in an LLM conversation.
type Message struct {
	// Role identifies the sender: one of the Role* constants.
	Role string

	// Content is the message text. May be empty for image-only messages.
	Content string

	// Images holds raw image bytes for multimodal (vision) requests.
	// Only some providers and models accept images.
	Images [][]byte
}

// Standard role constants, aligned with the conventions of the major
// providers.
const (
	// RoleSystem sets context or instructions; appears first.
	RoleSystem = "system"

	// RoleUser is input from the human user.
	RoleUser = "user"

	// RoleAssistant is a model response.
	RoleAssistant = "assistant"
)

// ToolSpec describes a tool the model may call. Schema follows JSON Schema.
type ToolSpec struct {
	// Name uniquely identifies the tool (alphanumeric + underscores).
	Name string

	// Description tells the model what the tool does.
	Description string

	// Schema defines the tool's input parameters in JSON Schema form.
	Schema map[string]interface{}
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	// Name is the tool to invoke.
	Name string

	// Input holds the arguments the model supplied.
	Input map[string]interface{}
}

// Usage reports token consumption for a single completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// ChatOut is the output of a chat completion. A model may return text,
// tool calls, or both.
type ChatOut struct {
	// Text is the generated response text.
	Text string

	// ToolCalls lists tools the model wants invoked.
	ToolCalls []ToolCall

	// Usage reports token counts when the provider supplies them.
	Usage Usage
}
