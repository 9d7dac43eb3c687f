package vectorstore

import (
	"context"
	"math"
	"path/filepath"
	"testing"
)

// storeUnderTest runs the shared Store contract against an implementation.
func storeUnderTest(t *testing.T, st Store) {
	ctx := context.Background()

	chunks := []Chunk{
		{ID: "1", Source: "a.pdf", Content: "alpha", Embedding: []float32{1, 0, 0}},
		{ID: "2", Source: "a.pdf", Content: "beta", Embedding: []float32{0, 1, 0}},
		{ID: "3", Source: "b.txt", Content: "gamma", Embedding: []float32{0.9, 0.1, 0}},
	}

	t.Run("add and count", func(t *testing.T) {
		if err := st.Add(ctx, chunks); err != nil {
			t.Fatalf("Add: %v", err)
		}
		count, err := st.Count(ctx)
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if count != 3 {
			t.Errorf("Count = %d, expected 3", count)
		}
	})

	t.Run("search ranks by similarity", func(t *testing.T) {
		results, err := st.Search(ctx, []float32{1, 0, 0}, 2)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("expected 2 results, got %d", len(results))
		}
		if results[0].Chunk.ID != "1" {
			t.Errorf("best match = %s, expected the identical vector", results[0].Chunk.ID)
		}
		if results[1].Chunk.ID != "3" {
			t.Errorf("second match = %s, expected the near vector", results[1].Chunk.ID)
		}
		if results[0].Score < results[1].Score {
			t.Error("results not ordered by score")
		}
	})

	t.Run("search dimension mismatch", func(t *testing.T) {
		if _, err := st.Search(ctx, []float32{1, 0}, 2); err == nil {
			t.Fatal("expected dimension mismatch error")
		}
	})

	t.Run("k larger than store", func(t *testing.T) {
		results, err := st.Search(ctx, []float32{1, 0, 0}, 100)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 3 {
			t.Errorf("expected all 3 chunks, got %d", len(results))
		}
	})

	t.Run("sources", func(t *testing.T) {
		sources, err := st.Sources(ctx)
		if err != nil {
			t.Fatalf("Sources: %v", err)
		}
		if len(sources) != 2 || sources[0] != "a.pdf" || sources[1] != "b.txt" {
			t.Errorf("Sources = %v", sources)
		}
	})

	t.Run("delete source", func(t *testing.T) {
		if err := st.DeleteSource(ctx, "a.pdf"); err != nil {
			t.Fatalf("DeleteSource: %v", err)
		}
		count, err := st.Count(ctx)
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if count != 1 {
			t.Errorf("Count = %d after delete, expected 1", count)
		}
		sources, err := st.Sources(ctx)
		if err != nil {
			t.Fatalf("Sources: %v", err)
		}
		if len(sources) != 1 || sources[0] != "b.txt" {
			t.Errorf("Sources = %v", sources)
		}
	})

	t.Run("rejects chunk without embedding", func(t *testing.T) {
		if err := st.Add(ctx, []Chunk{{ID: "x", Source: "c.txt", Content: "text"}}); err == nil {
			t.Error("expected error for chunk without embedding")
		}
	})
}

func TestMemStore(t *testing.T) {
	storeUnderTest(t, NewMemStore())
}

func TestSQLiteStore(t *testing.T) {
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "vectors.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	storeUnderTest(t, st)
}

func TestSQLiteStoreUpsert(t *testing.T) {
	ctx := context.Background()
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "vectors.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	chunk := Chunk{ID: "1", Source: "a.pdf", Content: "old", Embedding: []float32{1, 0}}
	if err := st.Add(ctx, []Chunk{chunk}); err != nil {
		t.Fatal(err)
	}
	chunk.Content = "new"
	if err := st.Add(ctx, []Chunk{chunk}); err != nil {
		t.Fatal(err)
	}

	count, err := st.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("Count = %d, expected upsert to keep 1 row", count)
	}

	results, err := st.Search(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Chunk.Content != "new" {
		t.Errorf("Content = %q, expected updated text", results[0].Chunk.Content)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cosineSimilarity(tt.a, tt.b)
			if err != nil {
				t.Fatalf("cosineSimilarity: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("similarity = %v, expected %v", got, tt.want)
			}
		})
	}

	t.Run("dimension mismatch", func(t *testing.T) {
		if _, err := cosineSimilarity([]float32{1}, []float32{1, 2}); err == nil {
			t.Error("expected error")
		}
	})
}

func TestEmbeddingCodec(t *testing.T) {
	vec := []float32{0.5, -1.25, 3.75, 0}

	decoded, err := decodeEmbedding(encodeEmbedding(vec))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(vec) {
		t.Fatalf("length = %d", len(decoded))
	}
	for i := range vec {
		if decoded[i] != vec[i] {
			t.Errorf("decoded[%d] = %v, expected %v", i, decoded[i], vec[i])
		}
	}

	t.Run("rejects truncated blob", func(t *testing.T) {
		if _, err := decodeEmbedding([]byte{1, 2, 3}); err == nil {
			t.Error("expected error for misaligned blob")
		}
	})
}
