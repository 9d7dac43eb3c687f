package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/flowbrg/homer/graph"
	"github.com/flowbrg/homer/graph/emit"
	"github.com/flowbrg/homer/graph/store"
	"github.com/flowbrg/homer/internal/chunk"
	"github.com/flowbrg/homer/internal/parser"
	"github.com/flowbrg/homer/internal/vectorstore"
)

// indexDeps carries everything the indexing nodes need.
type indexDeps struct {
	registry *parser.Registry
	splitter *chunk.Splitter
	embedder embedderFunc
	vstore   vectorstore.Store
	batch    int
	log      zerolog.Logger
}

// embedderFunc is the Embed method shape, captured so index nodes do not
// carry the whole model interface.
type embedderFunc func(ctx context.Context, texts []string) ([][]float32, error)

// buildIndexEngine assembles the indexing pipeline:
//
//	scan -> parse -> chunk -> embed
//
// scan terminates early when no new documents exist.
func buildIndexEngine(deps indexDeps, emitter emit.Emitter, metrics *graph.Metrics) (*graph.Engine[IndexState], error) {
	engine := graph.New(IndexReducer, store.NewMemStore[IndexState](), emitter, graph.Options{MaxSteps: 10})
	if metrics != nil {
		engine.SetMetrics(metrics)
	}

	steps := []struct {
		id   string
		node graph.Node[IndexState]
	}{
		{"scan", graph.NodeFunc[IndexState](deps.scan)},
		{"parse", graph.NodeFunc[IndexState](deps.parse)},
		{"chunk", graph.NodeFunc[IndexState](deps.chunk)},
		{"embed", graph.NodeFunc[IndexState](deps.embed)},
	}
	for _, s := range steps {
		if err := engine.Add(s.id, s.node); err != nil {
			return nil, err
		}
	}
	if err := engine.StartAt("scan"); err != nil {
		return nil, err
	}
	return engine, nil
}

// scan lists supported files under Dir and filters out sources already
// present in the vector store.
func (d indexDeps) scan(ctx context.Context, state IndexState) graph.NodeResult[IndexState] {
	paths, err := d.registry.ScanDir(state.Dir)
	if err != nil {
		return graph.NodeResult[IndexState]{Err: err}
	}

	existing, err := d.vstore.Sources(ctx)
	if err != nil {
		return graph.NodeResult[IndexState]{Err: fmt.Errorf("list indexed sources: %w", err)}
	}
	indexed := make(map[string]struct{}, len(existing))
	for _, src := range existing {
		indexed[src] = struct{}{}
	}

	var pending, skipped []string
	for _, p := range paths {
		if _, ok := indexed[p]; ok {
			skipped = append(skipped, p)
			continue
		}
		pending = append(pending, p)
	}

	d.log.Info().Int("pending", len(pending)).Int("skipped", len(skipped)).Str("dir", state.Dir).Msg("scanned documents")

	delta := IndexState{Pending: pending, Skipped: skipped}
	if len(pending) == 0 {
		return graph.NodeResult[IndexState]{Delta: delta, Route: graph.Stop()}
	}
	return graph.NodeResult[IndexState]{Delta: delta, Route: graph.Goto("parse")}
}

// parse extracts text from every pending file. A file that fails to parse
// is logged and skipped rather than failing the whole batch.
func (d indexDeps) parse(ctx context.Context, state IndexState) graph.NodeResult[IndexState] {
	docs := make([]parser.Document, 0, len(state.Pending))
	for _, path := range state.Pending {
		doc, err := d.registry.Load(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return graph.NodeResult[IndexState]{Err: ctx.Err()}
			}
			d.log.Warn().Err(err).Str("path", path).Msg("skipping unparseable document")
			continue
		}
		if doc.Content == "" {
			d.log.Warn().Str("path", path).Msg("document has no extractable text")
			continue
		}
		docs = append(docs, doc)
	}

	if len(docs) == 0 {
		return graph.NodeResult[IndexState]{Delta: IndexState{Documents: []parser.Document{}}, Route: graph.Stop()}
	}
	return graph.NodeResult[IndexState]{Delta: IndexState{Documents: docs}, Route: graph.Goto("chunk")}
}

// chunk splits the parsed documents.
func (d indexDeps) chunk(ctx context.Context, state IndexState) graph.NodeResult[IndexState] {
	if err := ctx.Err(); err != nil {
		return graph.NodeResult[IndexState]{Err: err}
	}

	var chunks []vectorstore.Chunk
	for _, doc := range state.Documents {
		for _, piece := range d.splitter.Split(doc.Content) {
			chunks = append(chunks, vectorstore.Chunk{
				ID:      uuid.NewString(),
				Source:  doc.Source,
				Content: piece,
			})
		}
	}

	d.log.Debug().Int("chunks", len(chunks)).Msg("documents split")
	return graph.NodeResult[IndexState]{Delta: IndexState{Chunks: chunks}, Route: graph.Goto("embed")}
}

// embed vectorizes and stores the chunks in batches, so one model call
// failure loses at most a batch of work.
func (d indexDeps) embed(ctx context.Context, state IndexState) graph.NodeResult[IndexState] {
	batchSize := d.batch
	if batchSize <= 0 {
		batchSize = 20
	}

	indexed := 0
	for start := 0; start < len(state.Chunks); start += batchSize {
		end := start + batchSize
		if end > len(state.Chunks) {
			end = len(state.Chunks)
		}
		batch := state.Chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := d.embedder(ctx, texts)
		if err != nil {
			return graph.NodeResult[IndexState]{Err: fmt.Errorf("embed batch: %w", err)}
		}
		if len(vectors) != len(batch) {
			return graph.NodeResult[IndexState]{Err: fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))}
		}

		stored := make([]vectorstore.Chunk, len(batch))
		for i, c := range batch {
			c.Embedding = vectors[i]
			stored[i] = c
		}
		if err := d.vstore.Add(ctx, stored); err != nil {
			return graph.NodeResult[IndexState]{Err: fmt.Errorf("store batch: %w", err)}
		}
		indexed += len(stored)
	}

	d.log.Info().Int("chunks", indexed).Msg("indexing complete")
	return graph.NodeResult[IndexState]{Delta: IndexState{Indexed: indexed}, Route: graph.Stop()}
}
