package rag

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/flowbrg/homer/graph/model"
	"github.com/flowbrg/homer/graph/tool"
	"github.com/flowbrg/homer/internal/vectorstore"
)

func newReportDeps(writer, outline *model.MockChatModel, vstore vectorstore.Store, embedder model.Embedder, sections int) reportDeps {
	return reportDeps{
		writerModel:  writer,
		outlineModel: outline,
		retriever:    tool.NewRetriever(vstore, embedder, 2),
		sections:     sections,
		log:          zerolog.Nop(),
	}
}

func TestReportPipeline(t *testing.T) {
	embedder := &model.MockEmbedder{Dim: 8}
	vstore := seedStore(t, embedder, map[string]string{
		"spec.pdf":   "The protocol uses framed messages over TCP.",
		"bench.txt":  "Throughput peaks at 12000 requests per second.",
		"deploy.txt": "Deployment requires three replicas minimum.",
	})

	outlineModel := &model.MockChatModel{Responses: []model.ChatOut{
		{Text: "Wire Protocol Design\nThroughput Characteristics\nDeployment Topology"},
	}}
	// Each section consumes two writer calls: draft, then review.
	writerModel := &model.MockChatModel{Responses: []model.ChatOut{
		{Text: "draft one"}, {Text: "polished one"},
		{Text: "draft two"}, {Text: "polished two"},
		{Text: "draft three"}, {Text: "polished three"},
	}}

	engine, err := buildReportEngine(newReportDeps(writerModel, outlineModel, vstore, embedder, 3), nil, nil)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	final, err := engine.Run(context.Background(), "report-1", ReportState{Query: "system architecture"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(final.Sections) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(final.Sections))
	}
	wantTitles := []string{"Wire Protocol Design", "Throughput Characteristics", "Deployment Topology"}
	for i, sec := range final.Sections {
		if sec.Title != wantTitles[i] {
			t.Errorf("section %d title = %q, expected %q", i, sec.Title, wantTitles[i])
		}
	}
	if final.Sections[0].Content != "polished one" {
		t.Errorf("section content = %q, expected reviewed text", final.Sections[0].Content)
	}

	if !strings.HasPrefix(final.Report, "TECHNICAL REPORT\nTITLE: system architecture") {
		t.Errorf("report header missing: %q", final.Report[:min(80, len(final.Report))])
	}
	for _, want := range []string{"WIRE PROTOCOL DESIGN", "polished two", "polished three"} {
		if !strings.Contains(final.Report, want) {
			t.Errorf("assembled report missing %q", want)
		}
	}

	if writerModel.CallCount() != 6 {
		t.Errorf("writer called %d times, expected 6", writerModel.CallCount())
	}
}

func TestReportOutlineFallback(t *testing.T) {
	embedder := &model.MockEmbedder{Dim: 8}
	vstore := seedStore(t, embedder, map[string]string{"doc.txt": "content"})

	outlineModel := &model.MockChatModel{Err: errors.New("model unavailable")}
	writerModel := &model.MockChatModel{Responses: []model.ChatOut{
		{Text: "draft"}, {Text: "polished"},
	}}

	engine, err := buildReportEngine(newReportDeps(writerModel, outlineModel, vstore, embedder, 6), nil, nil)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	final, err := engine.Run(context.Background(), "report-1", ReportState{Query: "some topic"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The fallback outline is a single section titled by the query.
	if len(final.Sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(final.Sections))
	}
	if final.Sections[0].Title != "some topic" {
		t.Errorf("fallback section title = %q", final.Sections[0].Title)
	}
}

func TestReportEmptyQueryFails(t *testing.T) {
	embedder := &model.MockEmbedder{Dim: 8}
	engine, err := buildReportEngine(newReportDeps(&model.MockChatModel{}, &model.MockChatModel{}, vectorstore.NewMemStore(), embedder, 3), nil, nil)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	if _, err := engine.Run(context.Background(), "report-1", ReportState{}); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestParseOutline(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{
			name: "plain lines",
			text: "First Section\nSecond Section\n",
			max:  6,
			want: []string{"First Section", "Second Section"},
		},
		{
			name: "strips bullets and numbering",
			text: "1. First\n- Second\n* Third",
			max:  6,
			want: []string{"First", "Second", "Third"},
		},
		{
			name: "caps at max",
			text: "a\nb\nc\nd",
			max:  2,
			want: []string{"a", "b"},
		},
		{
			name: "skips blank lines",
			text: "\n\nOnly Section\n\n",
			max:  6,
			want: []string{"Only Section"},
		},
		{
			name: "empty output",
			text: "   \n",
			max:  6,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseOutline(tt.text, tt.max)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseOutline(%q) = %v, expected %v", tt.text, got, tt.want)
			}
		})
	}
}
