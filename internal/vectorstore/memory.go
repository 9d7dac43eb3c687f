package vectorstore

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// MemStore is an in-memory vector store. Used for tests and for ephemeral
// sessions where the index should not touch disk.
type MemStore struct {
	mu     sync.RWMutex
	chunks []Chunk
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Add implements Store.
func (m *MemStore) Add(ctx context.Context, chunks []Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return errors.New("chunk has no embedding")
		}
		if len(m.chunks) > 0 && len(c.Embedding) != len(m.chunks[0].Embedding) {
			return errors.New("embedding dimension differs from stored chunks")
		}
		m.chunks = append(m.chunks, c)
	}
	return nil
}

// Search implements Store.
func (m *MemStore) Search(ctx context.Context, embedding []float32, k int) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.chunks) == 0 || k <= 0 {
		return nil, nil
	}

	results := make([]SearchResult, 0, len(m.chunks))
	for _, c := range m.chunks {
		score, err := cosineSimilarity(embedding, c.Embedding)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{Chunk: c, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Sources implements Store.
func (m *MemStore) Sources(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	var sources []string
	for _, c := range m.chunks {
		if _, ok := seen[c.Source]; ok {
			continue
		}
		seen[c.Source] = struct{}{}
		sources = append(sources, c.Source)
	}
	sort.Strings(sources)
	return sources, nil
}

// DeleteSource implements Store.
func (m *MemStore) DeleteSource(ctx context.Context, source string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.chunks[:0]
	for _, c := range m.chunks {
		if c.Source != source {
			kept = append(kept, c)
		}
	}
	m.chunks = kept
	return nil
}

// Count implements Store.
func (m *MemStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}

// Close implements Store. No-op for the in-memory store.
func (m *MemStore) Close() error {
	return nil
}
