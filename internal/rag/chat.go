package rag

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/flowbrg/homer/graph"
	"github.com/flowbrg/homer/graph/emit"
	"github.com/flowbrg/homer/graph/model"
	"github.com/flowbrg/homer/graph/store"
	"github.com/flowbrg/homer/graph/tool"
	"github.com/flowbrg/homer/internal/vectorstore"
)

// fallbackReply is returned when the response model fails, so a thread
// never dies mid-conversation.
const fallbackReply = "I apologize, but I encountered an error while generating a response. Please try rephrasing your question."

// chatDeps carries everything the conversational nodes need.
type chatDeps struct {
	queryModel    model.ChatModel
	responseModel model.ChatModel
	retriever     *tool.Retriever
	summarizeEach int
	log           zerolog.Logger
}

// buildChatEngine assembles the conversational pipeline:
//
//	rephrase -> retrieve -> respond -> (summarize when the thread grows)
//
// The first two hops use unconditional edges; respond decides the tail.
func buildChatEngine(deps chatDeps, st store.Store[ChatState], emitter emit.Emitter, metrics *graph.Metrics) (*graph.Engine[ChatState], error) {
	engine := graph.New(ChatReducer, st, emitter, graph.Options{MaxSteps: 8})
	if metrics != nil {
		engine.SetMetrics(metrics)
	}

	steps := []struct {
		id   string
		node graph.Node[ChatState]
	}{
		{"rephrase", graph.NodeFunc[ChatState](deps.rephrase)},
		{"retrieve", graph.NodeFunc[ChatState](deps.retrieve)},
		{"respond", graph.NodeFunc[ChatState](deps.respond)},
		{"summarize", graph.NodeFunc[ChatState](deps.summarize)},
	}
	for _, s := range steps {
		if err := engine.Add(s.id, s.node); err != nil {
			return nil, err
		}
	}
	if err := engine.Connect("rephrase", "retrieve", nil); err != nil {
		return nil, err
	}
	if err := engine.Connect("retrieve", "respond", nil); err != nil {
		return nil, err
	}
	if err := engine.StartAt("rephrase"); err != nil {
		return nil, err
	}
	return engine, nil
}

// rephrase turns the latest user message into a retrieval query, using
// the two preceding messages for context. A model failure falls back to
// the raw message so retrieval still happens.
func (d chatDeps) rephrase(ctx context.Context, state ChatState) graph.NodeResult[ChatState] {
	if len(state.Messages) == 0 {
		return graph.NodeResult[ChatState]{Err: &graph.EngineError{Message: "chat state has no messages", Code: "EMPTY_THREAD"}}
	}
	question := state.Messages[len(state.Messages)-1].Content

	var previous []ChatMessage
	if n := len(state.Messages); n >= 3 {
		previous = state.Messages[n-3 : n-1]
	}

	query := question
	out, err := d.queryModel.Chat(ctx, []model.Message{
		{Role: model.RoleSystem, Content: rephrasePrompt(previous)},
		{Role: model.RoleUser, Content: question},
	}, nil)
	if err != nil {
		d.log.Warn().Err(err).Msg("query rephrasing failed, using raw message")
	} else if trimmed := strings.TrimSpace(out.Text); trimmed != "" {
		query = trimmed
	}

	d.log.Debug().Str("query", query).Msg("retrieval query ready")
	return graph.NodeResult[ChatState]{
		Delta: ChatState{Query: query, Retrieved: []vectorstore.SearchResult{}},
	}
}

// retrieve fetches the chunks most similar to the query. Retrieval errors
// degrade to an unassisted answer instead of failing the turn.
func (d chatDeps) retrieve(ctx context.Context, state ChatState) graph.NodeResult[ChatState] {
	if strings.TrimSpace(state.Query) == "" {
		return graph.NodeResult[ChatState]{Delta: ChatState{Retrieved: []vectorstore.SearchResult{}}}
	}

	results, err := d.retriever.Retrieve(ctx, state.Query)
	if err != nil {
		d.log.Warn().Err(err).Msg("retrieval failed, answering without context")
		results = []vectorstore.SearchResult{}
	}

	d.log.Debug().Int("results", len(results)).Msg("documents retrieved")
	return graph.NodeResult[ChatState]{Delta: ChatState{Retrieved: results}}
}

// respond answers the user with the retrieved context and the running
// summary, then routes to summarization when the thread has grown by
// another summarization window.
func (d chatDeps) respond(ctx context.Context, state ChatState) graph.NodeResult[ChatState] {
	question := state.Messages[len(state.Messages)-1].Content

	reply := fallbackReply
	out, err := d.responseModel.Chat(ctx, []model.Message{
		{Role: model.RoleSystem, Content: responsePrompt(state.Retrieved, state.Summary)},
		{Role: model.RoleUser, Content: question},
	}, nil)
	if err != nil {
		d.log.Error().Err(err).Msg("response generation failed, using fallback reply")
	} else if trimmed := strings.TrimSpace(out.Text); trimmed != "" {
		reply = trimmed
	}

	delta := ChatState{
		Messages: []ChatMessage{{Role: model.RoleAssistant, Content: reply}},
	}

	every := d.summarizeEach
	if every <= 0 {
		every = 6
	}
	if (len(state.Messages)+1)%every == 0 {
		return graph.NodeResult[ChatState]{Delta: delta, Route: graph.Goto("summarize")}
	}
	return graph.NodeResult[ChatState]{Delta: delta, Route: graph.Stop()}
}

// summarize condenses the recent turns into the running summary. Errors
// keep the existing summary.
func (d chatDeps) summarize(ctx context.Context, state ChatState) graph.NodeResult[ChatState] {
	window := d.summarizeEach
	if window <= 0 {
		window = 6
	}
	recent := state.Messages
	if len(recent) > window {
		recent = recent[len(recent)-window:]
	}

	messages := []model.Message{{Role: model.RoleSystem, Content: summaryPrompt(state.Summary)}}
	for _, m := range recent {
		messages = append(messages, model.Message{Role: m.Role, Content: m.Content})
	}

	out, err := d.queryModel.Chat(ctx, messages, nil)
	if err != nil {
		d.log.Warn().Err(err).Msg("summarization failed, keeping previous summary")
		return graph.NodeResult[ChatState]{Route: graph.Stop()}
	}

	return graph.NodeResult[ChatState]{
		Delta: ChatState{Summary: strings.TrimSpace(out.Text)},
		Route: graph.Stop(),
	}
}
