package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/flowbrg/homer/graph"
	"github.com/flowbrg/homer/graph/emit"
	"github.com/flowbrg/homer/graph/model"
	"github.com/flowbrg/homer/graph/store"
	"github.com/flowbrg/homer/graph/tool"
	"github.com/flowbrg/homer/internal/vectorstore"
)

// reportDeps carries everything the report nodes need.
type reportDeps struct {
	writerModel  model.ChatModel
	outlineModel model.ChatModel
	retriever    *tool.Retriever
	sections     int
	log          zerolog.Logger
}

// buildReportEngine assembles the report pipeline:
//
//	retrieve_initial -> outline -> retrieve_section -> write_section -> review_section
//	                                      ^                                   |
//	                                      +------- more outline entries ------+
//
// The loop back to retrieve_section and the exit to assemble are
// conditional edges on the section index.
func buildReportEngine(deps reportDeps, emitter emit.Emitter, metrics *graph.Metrics) (*graph.Engine[ReportState], error) {
	maxSteps := deps.sections*3 + 6

	engine := graph.New(ReportReducer, store.NewMemStore[ReportState](), emitter, graph.Options{MaxSteps: maxSteps})
	if metrics != nil {
		engine.SetMetrics(metrics)
	}

	steps := []struct {
		id   string
		node graph.Node[ReportState]
	}{
		{"retrieve_initial", graph.NodeFunc[ReportState](deps.retrieveInitial)},
		{"outline", graph.NodeFunc[ReportState](deps.outline)},
		{"retrieve_section", graph.NodeFunc[ReportState](deps.retrieveSection)},
		{"write_section", graph.NodeFunc[ReportState](deps.writeSection)},
		{"review_section", graph.NodeFunc[ReportState](deps.reviewSection)},
		{"assemble", graph.NodeFunc[ReportState](deps.assemble)},
	}
	for _, s := range steps {
		if err := engine.Add(s.id, s.node); err != nil {
			return nil, err
		}
	}

	moreSections := func(s ReportState) bool { return s.SectionIndex < len(s.Outline) }
	if err := engine.Connect("review_section", "retrieve_section", moreSections); err != nil {
		return nil, err
	}
	if err := engine.Connect("review_section", "assemble", nil); err != nil {
		return nil, err
	}
	if err := engine.StartAt("retrieve_initial"); err != nil {
		return nil, err
	}
	return engine, nil
}

// retrieveInitial gathers broad context for the outline.
func (d reportDeps) retrieveInitial(ctx context.Context, state ReportState) graph.NodeResult[ReportState] {
	if strings.TrimSpace(state.Query) == "" {
		return graph.NodeResult[ReportState]{Err: &graph.EngineError{Message: "report query is empty", Code: "EMPTY_QUERY"}}
	}

	results, err := d.retriever.Retrieve(ctx, state.Query)
	if err != nil {
		d.log.Warn().Err(err).Msg("initial retrieval failed, outlining without context")
		results = []vectorstore.SearchResult{}
	}
	return graph.NodeResult[ReportState]{
		Delta: ReportState{Retrieved: results},
		Route: graph.Goto("outline"),
	}
}

// outline asks the model for the section titles. A model failure degrades
// to a single-section report rather than aborting.
func (d reportDeps) outline(ctx context.Context, state ReportState) graph.NodeResult[ReportState] {
	sections := d.sections
	if sections <= 0 {
		sections = 6
	}

	titles := []string{state.Query}
	out, err := d.outlineModel.Chat(ctx, []model.Message{
		{Role: model.RoleSystem, Content: outlinePrompt(state.Retrieved, sections)},
		{Role: model.RoleUser, Content: state.Query},
	}, nil)
	if err != nil {
		d.log.Warn().Err(err).Msg("outline generation failed, using single-section fallback")
	} else if parsed := parseOutline(out.Text, sections); len(parsed) > 0 {
		titles = parsed
	}

	d.log.Info().Int("sections", len(titles)).Msg("outline ready")
	return graph.NodeResult[ReportState]{
		Delta: ReportState{
			Outline: titles,
			Header:  fmt.Sprintf("TECHNICAL REPORT\nTITLE: %s\n", state.Query),
		},
		Route: graph.Goto("retrieve_section"),
	}
}

// retrieveSection fetches context for the outline entry at SectionIndex.
func (d reportDeps) retrieveSection(ctx context.Context, state ReportState) graph.NodeResult[ReportState] {
	if state.SectionIndex >= len(state.Outline) {
		return graph.NodeResult[ReportState]{Route: graph.Goto("assemble")}
	}
	title := state.Outline[state.SectionIndex]

	results, err := d.retriever.Retrieve(ctx, title)
	if err != nil {
		d.log.Warn().Err(err).Str("section", title).Msg("section retrieval failed")
		results = []vectorstore.SearchResult{}
	}
	return graph.NodeResult[ReportState]{
		Delta: ReportState{Retrieved: results},
		Route: graph.Goto("write_section"),
	}
}

// writeSection drafts the current section from its retrieved context.
func (d reportDeps) writeSection(ctx context.Context, state ReportState) graph.NodeResult[ReportState] {
	title := state.Outline[state.SectionIndex]

	out, err := d.writerModel.Chat(ctx, []model.Message{
		{Role: model.RoleUser, Content: sectionPrompt(title, state.Query, state.Retrieved)},
	}, nil)
	if err != nil {
		return graph.NodeResult[ReportState]{Err: fmt.Errorf("write section %q: %w", title, err)}
	}

	return graph.NodeResult[ReportState]{
		Delta: ReportState{Draft: strings.TrimSpace(out.Text)},
		Route: graph.Goto("review_section"),
	}
}

// reviewSection polishes the draft into a finished section and advances
// the loop. A review failure keeps the draft text.
func (d reportDeps) reviewSection(ctx context.Context, state ReportState) graph.NodeResult[ReportState] {
	title := state.Outline[state.SectionIndex]

	content := state.Draft
	out, err := d.writerModel.Chat(ctx, []model.Message{
		{Role: model.RoleUser, Content: reviewPrompt(title, state.Query, state.Draft)},
	}, nil)
	if err != nil {
		d.log.Warn().Err(err).Str("section", title).Msg("review failed, keeping draft")
	} else if trimmed := strings.TrimSpace(out.Text); trimmed != "" {
		content = trimmed
	}

	d.log.Info().Str("section", title).Int("index", state.SectionIndex).Msg("section complete")
	return graph.NodeResult[ReportState]{
		Delta: ReportState{
			Sections:     []ReportSection{{Title: title, Content: content}},
			SectionIndex: state.SectionIndex + 1,
		},
	}
}

// assemble joins the header and the finished sections into one document.
func (d reportDeps) assemble(ctx context.Context, state ReportState) graph.NodeResult[ReportState] {
	if err := ctx.Err(); err != nil {
		return graph.NodeResult[ReportState]{Err: err}
	}

	var sb strings.Builder
	sb.WriteString(state.Header)
	for _, sec := range state.Sections {
		sb.WriteString("\n")
		sb.WriteString(strings.ToUpper(sec.Title))
		sb.WriteString("\n\n")
		sb.WriteString(sec.Content)
		sb.WriteString("\n")
	}

	return graph.NodeResult[ReportState]{
		Delta: ReportState{Report: sb.String()},
		Route: graph.Stop(),
	}
}

// parseOutline extracts up to max section titles from the model output,
// stripping bullets and numbering the model was told not to use anyway.
func parseOutline(text string, max int) []string {
	var titles []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789.) ")
		if line == "" {
			continue
		}
		titles = append(titles, line)
		if len(titles) == max {
			break
		}
	}
	return titles
}
