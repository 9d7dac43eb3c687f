package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowbrg/homer/graph/model"
	"github.com/flowbrg/homer/internal/vectorstore"
)

// Retriever is a Tool that searches the document index. It embeds the
// query text and returns the most similar chunks, so an agent step can
// pull grounding material on demand.
type Retriever struct {
	store    vectorstore.Store
	embedder model.Embedder
	topK     int
}

// NewRetriever creates a Retriever over the given store and embedder.
// k <= 0 defaults to 4 results.
func NewRetriever(store vectorstore.Store, embedder model.Embedder, k int) *Retriever {
	if k <= 0 {
		k = 4
	}
	return &Retriever{store: store, embedder: embedder, topK: k}
}

// Name implements Tool.
func (r *Retriever) Name() string {
	return "search_documents"
}

// Spec returns the tool specification for models that support tool calling.
func (r *Retriever) Spec() model.ToolSpec {
	return model.ToolSpec{
		Name:        r.Name(),
		Description: "Search the indexed documents for passages relevant to a query.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural-language search query",
				},
			},
			"required": []string{"query"},
		},
	}
}

// Retrieve embeds the query and returns the topK most similar chunks.
// Pipeline nodes use this directly; Call wraps it for tool-calling models.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]vectorstore.SearchResult, error) {
	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 query embedding, got %d", len(vectors))
	}

	hits, err := r.store.Search(ctx, vectors[0], r.topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	return hits, nil
}

// Call implements Tool. Input requires a "query" string; output is
// {"results": [{"source","content","score"}, ...]}.
func (r *Retriever) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	query, ok := input["query"].(string)
	if !ok || query == "" {
		return nil, errors.New("query parameter required")
	}

	hits, err := r.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}

	results := make([]map[string]interface{}, 0, len(hits))
	for _, h := range hits {
		results = append(results, map[string]interface{}{
			"source":  h.Chunk.Source,
			"content": h.Chunk.Content,
			"score":   h.Score,
		})
	}
	return map[string]interface{}{"results": results}, nil
}
