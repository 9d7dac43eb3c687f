package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/flowbrg/homer/graph/model"
	"github.com/flowbrg/homer/internal/chunk"
	"github.com/flowbrg/homer/internal/config"
	"github.com/flowbrg/homer/internal/parser"
	"github.com/flowbrg/homer/internal/vectorstore"
)

func newIndexDeps(embedder model.Embedder, vstore vectorstore.Store) indexDeps {
	return indexDeps{
		registry: parser.DefaultRegistry(),
		splitter: chunk.NewSplitter(200, 20),
		embedder: embedder.Embed,
		vstore:   vstore,
		batch:    2,
		log:      zerolog.Nop(),
	}
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIndexPipeline(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "alpha document content")
	writeDoc(t, dir, "b.md", "# Beta\n\nbeta document content")
	writeDoc(t, dir, "ignored.csv", "not indexable")

	embedder := &model.MockEmbedder{Dim: 8}
	vstore := vectorstore.NewMemStore()

	engine, err := buildIndexEngine(newIndexDeps(embedder, vstore), nil, nil)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	final, err := engine.Run(context.Background(), "index-1", IndexState{Dir: dir})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(final.Pending) != 2 {
		t.Errorf("Pending = %v, expected the two supported files", final.Pending)
	}
	if final.Indexed == 0 {
		t.Error("expected indexed chunks")
	}

	count, err := vstore.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != final.Indexed {
		t.Errorf("store has %d chunks, state says %d", count, final.Indexed)
	}

	sources, err := vstore.Sources(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 2 {
		t.Errorf("sources = %v", sources)
	}
}

func TestIndexSkipsAlreadyIndexed(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "alpha document content")

	embedder := &model.MockEmbedder{Dim: 8}
	vstore := vectorstore.NewMemStore()
	deps := newIndexDeps(embedder, vstore)

	engine, err := buildIndexEngine(deps, nil, nil)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	if _, err := engine.Run(context.Background(), "index-1", IndexState{Dir: dir}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstCount, _ := vstore.Count(context.Background())

	// Second run over the same directory indexes nothing new.
	engine2, err := buildIndexEngine(deps, nil, nil)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	final, err := engine2.Run(context.Background(), "index-2", IndexState{Dir: dir})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(final.Pending) != 0 {
		t.Errorf("Pending = %v, expected none", final.Pending)
	}
	if len(final.Skipped) != 1 {
		t.Errorf("Skipped = %v, expected the indexed file", final.Skipped)
	}
	if final.Indexed != 0 {
		t.Errorf("Indexed = %d, expected 0", final.Indexed)
	}

	count, _ := vstore.Count(context.Background())
	if count != firstCount {
		t.Errorf("chunk count changed from %d to %d", firstCount, count)
	}
}

func TestIndexEmbedErrorFailsRun(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "alpha document content")

	embedder := &model.MockEmbedder{Dim: 8, Err: errors.New("embedding server down")}
	vstore := vectorstore.NewMemStore()

	engine, err := buildIndexEngine(newIndexDeps(embedder, vstore), nil, nil)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	if _, err := engine.Run(context.Background(), "index-1", IndexState{Dir: dir}); err == nil {
		t.Fatal("expected embed error to fail the run")
	}

	count, _ := vstore.Count(context.Background())
	if count != 0 {
		t.Errorf("store has %d chunks after failed run", count)
	}
}

func TestIndexResultExcludesUnparseable(t *testing.T) {
	dir := t.TempDir()
	good := writeDoc(t, dir, "good.txt", "alpha document content")
	writeDoc(t, dir, "broken.pdf", "this is not a pdf")

	p := &Pipelines{
		cfg:      config.Config{EmbedBatchSize: 2},
		log:      zerolog.Nop(),
		embedder: &model.MockEmbedder{Dim: 8},
		vstore:   vectorstore.NewMemStore(),
		registry: parser.DefaultRegistry(),
		splitter: chunk.NewSplitter(200, 20),
	}

	result, err := p.Index(context.Background(), dir)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	// The broken file was pending but never parsed; it must not be
	// reported as indexed.
	if len(result.Indexed) != 1 || result.Indexed[0] != good {
		t.Errorf("Indexed = %v, expected only %s", result.Indexed, good)
	}
	if len(result.Skipped) != 0 {
		t.Errorf("Skipped = %v, expected none", result.Skipped)
	}
	if result.Chunks == 0 {
		t.Error("expected indexed chunks")
	}
}

func TestIndexMissingDirFails(t *testing.T) {
	embedder := &model.MockEmbedder{Dim: 8}
	engine, err := buildIndexEngine(newIndexDeps(embedder, vectorstore.NewMemStore()), nil, nil)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	if _, err := engine.Run(context.Background(), "index-1", IndexState{Dir: "/does/not/exist"}); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
