package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/flowbrg/homer/graph"
	"github.com/flowbrg/homer/graph/emit"
	"github.com/flowbrg/homer/graph/model"
	"github.com/flowbrg/homer/graph/store"
	"github.com/flowbrg/homer/graph/tool"
	"github.com/flowbrg/homer/internal/chunk"
	"github.com/flowbrg/homer/internal/config"
	"github.com/flowbrg/homer/internal/parser"
	"github.com/flowbrg/homer/internal/vectorstore"
)

// Pipelines is the high-level entry point for homer's three workflows.
// It owns the model adapters, the vector store, and the chat thread
// store, and builds a pipeline engine per invocation.
type Pipelines struct {
	cfg config.Config
	log zerolog.Logger

	emitter emit.Emitter
	metrics *graph.Metrics

	queryModel    model.ChatModel
	responseModel model.ChatModel
	embedder      model.Embedder
	retriever     *tool.Retriever

	vstore    vectorstore.Store
	chatStore store.Store[ChatState]
	registry  *parser.Registry
	splitter  *chunk.Splitter
}

// IndexResult reports what an indexing run did.
type IndexResult struct {
	Indexed []string `json:"indexed"`
	Skipped []string `json:"skipped"`
	Chunks  int      `json:"chunks"`
}

// ChatResult is one answered conversation turn.
type ChatResult struct {
	Reply   string   `json:"reply"`
	Sources []string `json:"sources,omitempty"`
}

// ReportResult is a finished report.
type ReportResult struct {
	Report   string          `json:"report"`
	Sections []ReportSection `json:"sections"`
}

// NewPipelines wires the pipelines from configuration. The vector store
// and chat store are owned by the result and released by Close. The
// registerer may be nil to disable metrics; the emitter may be nil to
// disable events.
func NewPipelines(cfg config.Config, vstore vectorstore.Store, chatStore store.Store[ChatState], emitter emit.Emitter, registerer prometheus.Registerer, log zerolog.Logger) (*Pipelines, error) {
	factory := NewModelFactory(cfg)

	queryModel, err := factory.ChatModel(cfg.QueryModel)
	if err != nil {
		return nil, fmt.Errorf("query model: %w", err)
	}
	responseModel, err := factory.ChatModel(cfg.ResponseModel)
	if err != nil {
		return nil, fmt.Errorf("response model: %w", err)
	}
	embedder, err := factory.Embedder(cfg.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("embedding model: %w", err)
	}

	registry := parser.DefaultRegistry()
	if cfg.VisionModel != "" {
		vision, err := factory.ChatModel(cfg.VisionModel)
		if err != nil {
			return nil, fmt.Errorf("vision model: %w", err)
		}
		registry = parser.NewRegistry(
			&parser.PDFLoader{},
			&parser.MarkdownLoader{},
			&parser.TextLoader{},
			parser.NewImageLoader(vision),
		)
	}

	var metrics *graph.Metrics
	if registerer != nil {
		metrics = graph.NewMetrics(registerer)
	}

	return &Pipelines{
		cfg:           cfg,
		log:           log,
		emitter:       emitter,
		metrics:       metrics,
		queryModel:    queryModel,
		responseModel: responseModel,
		embedder:      embedder,
		retriever:     tool.NewRetriever(vstore, embedder, cfg.TopK),
		vstore:        vstore,
		chatStore:     chatStore,
		registry:      registry,
		splitter:      chunk.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
	}, nil
}

// Index scans dir and indexes every supported document that is not yet
// in the vector store.
func (p *Pipelines) Index(ctx context.Context, dir string) (IndexResult, error) {
	deps := indexDeps{
		registry: p.registry,
		splitter: p.splitter,
		embedder: p.embedder.Embed,
		vstore:   p.vstore,
		batch:    p.cfg.EmbedBatchSize,
		log:      p.log,
	}
	engine, err := buildIndexEngine(deps, p.emitter, p.metrics)
	if err != nil {
		return IndexResult{}, err
	}

	final, err := engine.Run(ctx, newRunID("index"), IndexState{Dir: dir})
	if err != nil {
		return IndexResult{}, err
	}

	// Pending still holds files the parse node dropped; only sources that
	// produced a document were indexed.
	indexed := make([]string, 0, len(final.Documents))
	for _, doc := range final.Documents {
		indexed = append(indexed, doc.Source)
	}

	return IndexResult{
		Indexed: indexed,
		Skipped: final.Skipped,
		Chunks:  final.Indexed,
	}, nil
}

// Chat answers one turn of the thread identified by threadID. The thread
// state persists in the chat store, so follow-up questions see the full
// history and the running summary.
func (p *Pipelines) Chat(ctx context.Context, threadID, message string) (ChatResult, error) {
	if threadID == "" {
		return ChatResult{}, errors.New("thread ID required")
	}
	if message == "" {
		return ChatResult{}, errors.New("message required")
	}

	state, _, err := p.chatStore.LoadLatest(ctx, threadID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		state = ChatState{}
	case err != nil:
		return ChatResult{}, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	state.Messages = append(state.Messages, ChatMessage{Role: model.RoleUser, Content: message})

	// Each turn replays the thread as a fresh run, so stale steps from the
	// previous turn cannot shadow the new latest state.
	if err := p.chatStore.DeleteRun(ctx, threadID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return ChatResult{}, fmt.Errorf("reset thread %s: %w", threadID, err)
	}

	deps := chatDeps{
		queryModel:    p.queryModel,
		responseModel: p.responseModel,
		retriever:     p.retriever,
		summarizeEach: p.cfg.SummarizeEvery,
		log:           p.log,
	}
	engine, err := buildChatEngine(deps, p.chatStore, p.emitter, p.metrics)
	if err != nil {
		return ChatResult{}, err
	}

	final, err := engine.Run(ctx, threadID, state)
	if err != nil {
		return ChatResult{}, err
	}

	reply := ""
	if n := len(final.Messages); n > 0 && final.Messages[n-1].Role == model.RoleAssistant {
		reply = final.Messages[n-1].Content
	}
	return ChatResult{Reply: reply, Sources: sourceList(final.Retrieved)}, nil
}

// History returns the messages of a thread, oldest first.
func (p *Pipelines) History(ctx context.Context, threadID string) ([]ChatMessage, error) {
	state, _, err := p.chatStore.LoadLatest(ctx, threadID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	return state.Messages, nil
}

// Threads lists the stored chat threads.
func (p *Pipelines) Threads(ctx context.Context) ([]store.RunInfo, error) {
	return p.chatStore.ListRuns(ctx)
}

// DeleteThread removes a thread and its history.
func (p *Pipelines) DeleteThread(ctx context.Context, threadID string) error {
	return p.chatStore.DeleteRun(ctx, threadID)
}

// Report generates a multi-section report about query from the indexed
// documents.
func (p *Pipelines) Report(ctx context.Context, query string) (ReportResult, error) {
	if query == "" {
		return ReportResult{}, errors.New("query required")
	}

	deps := reportDeps{
		writerModel:  p.responseModel,
		outlineModel: p.queryModel,
		retriever:    p.retriever,
		sections:     p.cfg.ReportSections,
		log:          p.log,
	}
	engine, err := buildReportEngine(deps, p.emitter, p.metrics)
	if err != nil {
		return ReportResult{}, err
	}

	final, err := engine.Run(ctx, newRunID("report"), ReportState{Query: query})
	if err != nil {
		return ReportResult{}, err
	}
	return ReportResult{Report: final.Report, Sections: final.Sections}, nil
}

// Documents lists the indexed source files.
func (p *Pipelines) Documents(ctx context.Context) ([]string, error) {
	return p.vstore.Sources(ctx)
}

// DeleteDocument removes every chunk of a source from the index.
func (p *Pipelines) DeleteDocument(ctx context.Context, source string) error {
	return p.vstore.DeleteSource(ctx, source)
}

// ChunkCount returns the size of the index.
func (p *Pipelines) ChunkCount(ctx context.Context) (int, error) {
	return p.vstore.Count(ctx)
}

// Close releases the stores.
func (p *Pipelines) Close() error {
	var errs []error
	if err := p.vstore.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.chatStore.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// newRunID labels one-shot pipeline runs so their events are traceable.
func newRunID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

func sourceList(results []vectorstore.SearchResult) []string {
	seen := make(map[string]struct{}, len(results))
	var sources []string
	for _, r := range results {
		if _, ok := seen[r.Chunk.Source]; ok {
			continue
		}
		seen[r.Chunk.Source] = struct{}{}
		sources = append(sources, r.Chunk.Source)
	}
	return sources
}
