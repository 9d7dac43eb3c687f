package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/flowbrg/homer/graph/model"
	"github.com/flowbrg/homer/graph/store"
	"github.com/flowbrg/homer/graph/tool"
	"github.com/flowbrg/homer/internal/vectorstore"
)

// seedStore indexes a few chunks with the same embedder the pipeline
// queries with, so similarity scores are meaningful.
func seedStore(t *testing.T, embedder model.Embedder, contents map[string]string) *vectorstore.MemStore {
	t.Helper()
	vstore := vectorstore.NewMemStore()

	var chunks []vectorstore.Chunk
	var texts []string
	for source, content := range contents {
		chunks = append(chunks, vectorstore.Chunk{ID: source, Source: source, Content: content})
		texts = append(texts, content)
	}
	vectors, err := embedder.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("seed embed: %v", err)
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
	if err := vstore.Add(context.Background(), chunks); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return vstore
}

func newChatDeps(query, response *model.MockChatModel, vstore vectorstore.Store, embedder model.Embedder) chatDeps {
	return chatDeps{
		queryModel:    query,
		responseModel: response,
		retriever:     tool.NewRetriever(vstore, embedder, 2),
		summarizeEach: 6,
		log:           zerolog.Nop(),
	}
}

func TestChatTurn(t *testing.T) {
	embedder := &model.MockEmbedder{Dim: 8}
	vstore := seedStore(t, embedder, map[string]string{
		"manual.pdf": "The reactor operates at 450 degrees.",
		"notes.txt":  "Maintenance happens every 30 days.",
	})

	queryModel := &model.MockChatModel{Responses: []model.ChatOut{{Text: "reactor operating temperature"}}}
	responseModel := &model.MockChatModel{Responses: []model.ChatOut{{Text: "The reactor operates at 450 degrees."}}}

	engine, err := buildChatEngine(newChatDeps(queryModel, responseModel, vstore, embedder), store.NewMemStore[ChatState](), nil, nil)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	initial := ChatState{Messages: []ChatMessage{{Role: model.RoleUser, Content: "How hot does the reactor get?"}}}
	final, err := engine.Run(context.Background(), "thread-1", initial)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(final.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(final.Messages))
	}
	last := final.Messages[1]
	if last.Role != model.RoleAssistant {
		t.Errorf("last message role = %q", last.Role)
	}
	if last.Content != "The reactor operates at 450 degrees." {
		t.Errorf("reply = %q", last.Content)
	}
	if final.Query != "reactor operating temperature" {
		t.Errorf("query = %q, expected rephrased query", final.Query)
	}
	if len(final.Retrieved) == 0 {
		t.Error("expected retrieved context")
	}

	// The response prompt must carry the retrieved context.
	if responseModel.CallCount() != 1 {
		t.Fatalf("response model called %d times", responseModel.CallCount())
	}
	system := responseModel.Calls[0].Messages[0]
	if system.Role != model.RoleSystem {
		t.Fatalf("first response message role = %q", system.Role)
	}
	if !strings.Contains(system.Content, "<context>") {
		t.Error("response prompt missing context block")
	}
}

func TestChatRephraseFallsBackToRawMessage(t *testing.T) {
	embedder := &model.MockEmbedder{Dim: 8}
	vstore := seedStore(t, embedder, map[string]string{"doc.txt": "some content"})

	queryModel := &model.MockChatModel{Err: errors.New("model unavailable")}
	responseModel := &model.MockChatModel{Responses: []model.ChatOut{{Text: "an answer"}}}

	engine, err := buildChatEngine(newChatDeps(queryModel, responseModel, vstore, embedder), store.NewMemStore[ChatState](), nil, nil)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	initial := ChatState{Messages: []ChatMessage{{Role: model.RoleUser, Content: "what is in the docs?"}}}
	final, err := engine.Run(context.Background(), "thread-1", initial)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if final.Query != "what is in the docs?" {
		t.Errorf("query = %q, expected the raw message", final.Query)
	}
}

func TestChatResponseFallback(t *testing.T) {
	embedder := &model.MockEmbedder{Dim: 8}
	vstore := seedStore(t, embedder, map[string]string{"doc.txt": "some content"})

	queryModel := &model.MockChatModel{Responses: []model.ChatOut{{Text: "query"}}}
	responseModel := &model.MockChatModel{Err: errors.New("model crashed")}

	engine, err := buildChatEngine(newChatDeps(queryModel, responseModel, vstore, embedder), store.NewMemStore[ChatState](), nil, nil)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	initial := ChatState{Messages: []ChatMessage{{Role: model.RoleUser, Content: "hello"}}}
	final, err := engine.Run(context.Background(), "thread-1", initial)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	last := final.Messages[len(final.Messages)-1]
	if last.Content != fallbackReply {
		t.Errorf("expected fallback reply, got %q", last.Content)
	}
}

func TestChatSummarizesAfterWindow(t *testing.T) {
	embedder := &model.MockEmbedder{Dim: 8}
	vstore := seedStore(t, embedder, map[string]string{"doc.txt": "some content"})

	// First response answers the rephrase, second the summary request.
	queryModel := &model.MockChatModel{Responses: []model.ChatOut{
		{Text: "query"},
		{Text: "a summary of the conversation"},
	}}
	responseModel := &model.MockChatModel{Responses: []model.ChatOut{{Text: "reply"}}}

	engine, err := buildChatEngine(newChatDeps(queryModel, responseModel, vstore, embedder), store.NewMemStore[ChatState](), nil, nil)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	// Five prior messages plus the assistant reply make six, which
	// triggers summarization.
	messages := []ChatMessage{
		{Role: model.RoleUser, Content: "one"},
		{Role: model.RoleAssistant, Content: "two"},
		{Role: model.RoleUser, Content: "three"},
		{Role: model.RoleAssistant, Content: "four"},
		{Role: model.RoleUser, Content: "five"},
	}
	final, err := engine.Run(context.Background(), "thread-1", ChatState{Messages: messages})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if final.Summary != "a summary of the conversation" {
		t.Errorf("Summary = %q", final.Summary)
	}
	if queryModel.CallCount() != 2 {
		t.Errorf("query model called %d times, expected rephrase and summarize", queryModel.CallCount())
	}
}

func TestChatThreadStatePersists(t *testing.T) {
	embedder := &model.MockEmbedder{Dim: 8}
	vstore := seedStore(t, embedder, map[string]string{"doc.txt": "some content"})

	queryModel := &model.MockChatModel{Responses: []model.ChatOut{{Text: "query"}}}
	responseModel := &model.MockChatModel{Responses: []model.ChatOut{{Text: "reply"}}}

	chatStore := store.NewMemStore[ChatState]()
	engine, err := buildChatEngine(newChatDeps(queryModel, responseModel, vstore, embedder), chatStore, nil, nil)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	initial := ChatState{Messages: []ChatMessage{{Role: model.RoleUser, Content: "hello"}}}
	if _, err := engine.Run(context.Background(), "thread-1", initial); err != nil {
		t.Fatalf("Run: %v", err)
	}

	persisted, _, err := chatStore.LoadLatest(context.Background(), "thread-1")
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if len(persisted.Messages) != 2 {
		t.Errorf("persisted thread has %d messages, expected 2", len(persisted.Messages))
	}
}
