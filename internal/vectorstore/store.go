// Package vectorstore persists document chunks with their embeddings and
// serves similarity search for retrieval.
package vectorstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// Chunk is an embedded slice of a source document.
type Chunk struct {
	// ID uniquely identifies the chunk.
	ID string `json:"id"`

	// Source is the originating document (file path or upload name).
	Source string `json:"source"`

	// Content is the chunk text.
	Content string `json:"content"`

	// Embedding is the chunk's vector representation.
	Embedding []float32 `json:"embedding,omitempty"`
}

// SearchResult is a chunk with its similarity to the query.
type SearchResult struct {
	Chunk Chunk `json:"chunk"`

	// Score is the cosine similarity in [-1, 1]; higher is closer.
	Score float64 `json:"score"`
}

// Store is the persistence interface for embedded chunks.
type Store interface {
	// Add stores a batch of chunks. All chunks must carry embeddings of
	// the same dimension as previously stored chunks.
	Add(ctx context.Context, chunks []Chunk) error

	// Search returns the k chunks most similar to the query embedding,
	// best first. An empty store yields an empty result.
	Search(ctx context.Context, embedding []float32, k int) ([]SearchResult, error)

	// Sources lists the distinct document sources in the store.
	Sources(ctx context.Context) ([]string, error)

	// DeleteSource removes every chunk belonging to a source.
	DeleteSource(ctx context.Context, source string) error

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Close releases store resources.
	Close() error
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Returns an error on dimension mismatch, which is the symptom of
// switching embedding models after indexing.
func cosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding dimension mismatch: %d vs %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// encodeEmbedding serializes a vector as little-endian float32 bytes.
func encodeEmbedding(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeEmbedding deserializes little-endian float32 bytes.
func decodeEmbedding(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}
