package rag

import (
	"fmt"
	"strings"

	"github.com/flowbrg/homer/graph/model"
	"github.com/flowbrg/homer/graph/model/anthropic"
	"github.com/flowbrg/homer/graph/model/google"
	"github.com/flowbrg/homer/graph/model/ollama"
	"github.com/flowbrg/homer/graph/model/openai"
	"github.com/flowbrg/homer/internal/config"
)

// ModelFactory resolves model references from the configuration into
// concrete adapters. A reference is "provider:name" where provider is
// one of ollama, openai, anthropic, or google. A bare name means ollama,
// so local model tags like "qwen3:0.6b" work unprefixed.
type ModelFactory struct {
	cfg config.Config
}

// NewModelFactory creates a factory bound to the given configuration.
func NewModelFactory(cfg config.Config) *ModelFactory {
	return &ModelFactory{cfg: cfg}
}

// splitRef separates a provider prefix from the model name. Only known
// provider prefixes count; everything else is an ollama model tag.
func splitRef(ref string) (provider, name string) {
	for _, p := range []string{"ollama", "openai", "anthropic", "google"} {
		if strings.HasPrefix(ref, p+":") {
			return p, strings.TrimPrefix(ref, p+":")
		}
	}
	return "ollama", ref
}

// ChatModel resolves a chat model reference.
func (f *ModelFactory) ChatModel(ref string) (model.ChatModel, error) {
	if ref == "" {
		return nil, fmt.Errorf("empty model reference")
	}

	provider, name := splitRef(ref)
	switch provider {
	case "ollama":
		return ollama.NewChatModel(f.cfg.OllamaHost, name), nil
	case "openai":
		if f.cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("model %q requires openai_api_key", ref)
		}
		return openai.NewChatModel(f.cfg.OpenAIAPIKey, name, ""), nil
	case "anthropic":
		if f.cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("model %q requires anthropic_api_key", ref)
		}
		return anthropic.NewChatModel(f.cfg.AnthropicAPIKey, name), nil
	case "google":
		if f.cfg.GoogleAPIKey == "" {
			return nil, fmt.Errorf("model %q requires google_api_key", ref)
		}
		return google.NewChatModel(f.cfg.GoogleAPIKey, name), nil
	}
	return nil, fmt.Errorf("unknown model provider in %q", ref)
}

// Embedder resolves an embedding model reference. Only ollama and openai
// expose embedding endpoints.
func (f *ModelFactory) Embedder(ref string) (model.Embedder, error) {
	if ref == "" {
		return nil, fmt.Errorf("empty model reference")
	}

	provider, name := splitRef(ref)
	switch provider {
	case "ollama":
		return ollama.NewEmbeddingModel(f.cfg.OllamaHost, name), nil
	case "openai":
		if f.cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("model %q requires openai_api_key", ref)
		}
		return openai.NewEmbeddingModel(f.cfg.OpenAIAPIKey, name, ""), nil
	}
	return nil, fmt.Errorf("provider %q does not serve embeddings", provider)
}
