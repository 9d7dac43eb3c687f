package rag

import (
	"testing"

	"github.com/flowbrg/homer/internal/config"
)

func TestSplitRef(t *testing.T) {
	tests := []struct {
		ref          string
		wantProvider string
		wantName     string
	}{
		{"qwen3:0.6b", "ollama", "qwen3:0.6b"},
		{"nomic-embed-text", "ollama", "nomic-embed-text"},
		{"ollama:llama3:8b", "ollama", "llama3:8b"},
		{"openai:gpt-4o-mini", "openai", "gpt-4o-mini"},
		{"anthropic:claude-3-5-haiku-latest", "anthropic", "claude-3-5-haiku-latest"},
		{"google:gemini-2.5-flash", "google", "gemini-2.5-flash"},
	}
	for _, tt := range tests {
		provider, name := splitRef(tt.ref)
		if provider != tt.wantProvider || name != tt.wantName {
			t.Errorf("splitRef(%q) = (%q, %q), expected (%q, %q)",
				tt.ref, provider, name, tt.wantProvider, tt.wantName)
		}
	}
}

func TestModelFactory(t *testing.T) {
	cfg := config.Default()
	cfg.OpenAIAPIKey = "sk-test"
	factory := NewModelFactory(cfg)

	t.Run("ollama chat model", func(t *testing.T) {
		if _, err := factory.ChatModel("qwen3:0.6b"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("ollama embedder", func(t *testing.T) {
		if _, err := factory.Embedder("nomic-embed-text"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("openai with key", func(t *testing.T) {
		if _, err := factory.ChatModel("openai:gpt-4o-mini"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if _, err := factory.Embedder("openai:text-embedding-3-small"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("cloud provider without key", func(t *testing.T) {
		if _, err := factory.ChatModel("anthropic:claude-3-5-haiku-latest"); err == nil {
			t.Error("expected error for missing anthropic key")
		}
		if _, err := factory.ChatModel("google:gemini-2.5-flash"); err == nil {
			t.Error("expected error for missing google key")
		}
	})

	t.Run("no embeddings from chat-only providers", func(t *testing.T) {
		cfg := config.Default()
		cfg.AnthropicAPIKey = "key"
		if _, err := NewModelFactory(cfg).Embedder("anthropic:claude-3-5-haiku-latest"); err == nil {
			t.Error("expected error for anthropic embedder")
		}
	})

	t.Run("empty reference", func(t *testing.T) {
		if _, err := factory.ChatModel(""); err == nil {
			t.Error("expected error for empty reference")
		}
	})
}
