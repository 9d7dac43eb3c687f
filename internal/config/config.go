// Package config loads and persists homer's runtime configuration.
//
// Settings resolve in three layers: built-in defaults, then the JSON
// config file, then HOMER_ environment variables. The file lives at
// ~/.homer/config.json unless overridden.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// envPrefix namespaces the environment overrides (HOMER_DATA_DIR etc).
const envPrefix = "HOMER"

// Config holds every tunable the pipelines and server read.
type Config struct {
	// DataDir is where homer keeps its databases. Defaults to ~/.homer.
	DataDir string `json:"data_dir" envconfig:"DATA_DIR"`

	// DocumentsDir is the directory scanned by the index pipeline.
	DocumentsDir string `json:"documents_dir" envconfig:"DOCUMENTS_DIR"`

	// OllamaHost is the base URL of the Ollama server.
	OllamaHost string `json:"ollama_host" envconfig:"OLLAMA_HOST"`

	// EmbeddingModel embeds document chunks and queries. Changing it
	// invalidates the existing index.
	EmbeddingModel string `json:"embedding_model" envconfig:"EMBEDDING_MODEL"`

	// QueryModel rephrases user queries and writes report outlines.
	// Small and fast is fine here.
	QueryModel string `json:"query_model" envconfig:"QUERY_MODEL"`

	// ResponseModel answers questions and writes report sections.
	ResponseModel string `json:"response_model" envconfig:"RESPONSE_MODEL"`

	// VisionModel transcribes images during indexing. Empty disables
	// image support.
	VisionModel string `json:"vision_model" envconfig:"VISION_MODEL"`

	// OpenAIAPIKey enables "openai:" model references.
	OpenAIAPIKey string `json:"openai_api_key,omitempty" envconfig:"OPENAI_API_KEY"`

	// AnthropicAPIKey enables "anthropic:" model references.
	AnthropicAPIKey string `json:"anthropic_api_key,omitempty" envconfig:"ANTHROPIC_API_KEY"`

	// GoogleAPIKey enables "google:" model references.
	GoogleAPIKey string `json:"google_api_key,omitempty" envconfig:"GOOGLE_API_KEY"`

	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int `json:"chunk_size" envconfig:"CHUNK_SIZE"`

	// ChunkOverlap is the character overlap between adjacent chunks.
	ChunkOverlap int `json:"chunk_overlap" envconfig:"CHUNK_OVERLAP"`

	// TopK is how many chunks retrieval returns per query.
	TopK int `json:"top_k" envconfig:"TOP_K"`

	// ReportSections is how many sections a generated report has.
	ReportSections int `json:"report_sections" envconfig:"REPORT_SECTIONS"`

	// SummarizeEvery triggers conversation summarization after this many
	// messages accumulate past the last summary.
	SummarizeEvery int `json:"summarize_every" envconfig:"SUMMARIZE_EVERY"`

	// EmbedBatchSize is how many chunks are embedded per model call.
	EmbedBatchSize int `json:"embed_batch_size" envconfig:"EMBED_BATCH_SIZE"`

	// ListenAddr is the HTTP server bind address.
	ListenAddr string `json:"listen_addr" envconfig:"LISTEN_ADDR"`

	// MySQLDSN, if set, stores pipeline state in MySQL instead of the
	// local SQLite file. Needs parseTime=true.
	MySQLDSN string `json:"mysql_dsn,omitempty" envconfig:"MYSQL_DSN"`

	// Environment selects logging output: "development" or "production".
	Environment string `json:"environment" envconfig:"ENVIRONMENT"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		DataDir:        filepath.Join(home, ".homer"),
		DocumentsDir:   filepath.Join(home, ".homer", "documents"),
		OllamaHost:     "http://127.0.0.1:11434",
		EmbeddingModel: "nomic-embed-text",
		QueryModel:     "qwen3:0.6b",
		ResponseModel:  "qwen3:0.6b",
		VisionModel:    "qwen2.5vl:3b",
		ChunkSize:      4000,
		ChunkOverlap:   200,
		TopK:           4,
		ReportSections: 6,
		SummarizeEvery: 6,
		EmbedBatchSize: 20,
		ListenAddr:     "127.0.0.1:8787",
		Environment:    "development",
	}
}

// DefaultPath returns the standard config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".homer", "config.json")
}

// Load resolves the configuration: defaults, then the JSON file at path
// (missing file is fine), then HOMER_ environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// First run; defaults apply.
	case err != nil:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the configuration as indented JSON, atomically via a
// temp-file rename.
func (c Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.json")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// Validate checks the configuration for values the pipelines cannot
// work with.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	if c.OllamaHost == "" {
		return errors.New("ollama_host must not be empty")
	}
	if !strings.HasPrefix(c.OllamaHost, "http://") && !strings.HasPrefix(c.OllamaHost, "https://") {
		return fmt.Errorf("ollama_host %q must be an http(s) URL", c.OllamaHost)
	}
	if c.EmbeddingModel == "" {
		return errors.New("embedding_model must not be empty")
	}
	if c.QueryModel == "" {
		return errors.New("query_model must not be empty")
	}
	if c.ResponseModel == "" {
		return errors.New("response_model must not be empty")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_size), got %d", c.ChunkOverlap)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	if c.ReportSections <= 0 {
		return fmt.Errorf("report_sections must be positive, got %d", c.ReportSections)
	}
	if c.SummarizeEvery <= 0 {
		return fmt.Errorf("summarize_every must be positive, got %d", c.SummarizeEvery)
	}
	if c.EmbedBatchSize <= 0 {
		return fmt.Errorf("embed_batch_size must be positive, got %d", c.EmbedBatchSize)
	}
	return nil
}

// VectorDBPath returns the chunk database location under DataDir.
func (c Config) VectorDBPath() string {
	return filepath.Join(c.DataDir, "vectors.db")
}

// StateDBPath returns the pipeline state database location under DataDir.
func (c Config) StateDBPath() string {
	return filepath.Join(c.DataDir, "state.db")
}

// EnsureDataDir creates DataDir if it does not exist.
func (c Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}
