// Package rag wires homer's three pipelines: document indexing,
// conversational retrieval, and report generation.
package rag

import (
	"github.com/flowbrg/homer/internal/parser"
	"github.com/flowbrg/homer/internal/vectorstore"
)

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatState is the shared state of the conversational pipeline. A chat
// thread is one persisted run whose state accumulates across turns.
type ChatState struct {
	// Messages is the full conversation, oldest first.
	Messages []ChatMessage `json:"messages"`

	// Query is the rephrased retrieval query for the current turn.
	Query string `json:"query"`

	// Retrieved holds the chunks backing the current turn's answer.
	Retrieved []vectorstore.SearchResult `json:"retrieved,omitempty"`

	// Summary condenses older conversation turns.
	Summary string `json:"summary,omitempty"`
}

// ChatReducer merges a node delta into the chat state. Messages append;
// Query and Summary replace when the delta sets them; Retrieved replaces
// when the delta carries a non-nil slice, so a node can clear it with an
// empty one.
func ChatReducer(prev, delta ChatState) ChatState {
	next := prev
	if len(delta.Messages) > 0 {
		next.Messages = append(append([]ChatMessage{}, prev.Messages...), delta.Messages...)
	}
	if delta.Query != "" {
		next.Query = delta.Query
	}
	if delta.Retrieved != nil {
		next.Retrieved = delta.Retrieved
	}
	if delta.Summary != "" {
		next.Summary = delta.Summary
	}
	return next
}

// IndexState is the shared state of the indexing pipeline.
type IndexState struct {
	// Dir is the directory to scan for documents.
	Dir string `json:"dir"`

	// Pending lists the not-yet-indexed files found under Dir.
	Pending []string `json:"pending,omitempty"`

	// Skipped lists files already present in the vector store.
	Skipped []string `json:"skipped,omitempty"`

	// Documents holds the parsed text of the pending files.
	Documents []parser.Document `json:"documents,omitempty"`

	// Chunks holds the split documents awaiting embedding.
	Chunks []vectorstore.Chunk `json:"chunks,omitempty"`

	// Indexed counts the chunks written to the vector store.
	Indexed int `json:"indexed"`
}

// IndexReducer merges a node delta into the index state. Slices replace
// when non-nil; Indexed accumulates.
func IndexReducer(prev, delta IndexState) IndexState {
	next := prev
	if delta.Dir != "" {
		next.Dir = delta.Dir
	}
	if delta.Pending != nil {
		next.Pending = delta.Pending
	}
	if delta.Skipped != nil {
		next.Skipped = delta.Skipped
	}
	if delta.Documents != nil {
		next.Documents = delta.Documents
	}
	if delta.Chunks != nil {
		next.Chunks = delta.Chunks
	}
	next.Indexed += delta.Indexed
	return next
}

// ReportSection is one finished part of a generated report.
type ReportSection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ReportState is the shared state of the report pipeline. The section
// loop advances SectionIndex until the outline is exhausted.
type ReportState struct {
	// Query is the report topic.
	Query string `json:"query"`

	// Retrieved holds the chunks for the phase currently running.
	Retrieved []vectorstore.SearchResult `json:"retrieved,omitempty"`

	// Outline lists the section titles to write.
	Outline []string `json:"outline,omitempty"`

	// SectionIndex is the next outline entry to process.
	SectionIndex int `json:"section_index"`

	// Draft is the unreviewed text of the section being written.
	Draft string `json:"draft,omitempty"`

	// Sections collects the finished report parts in order.
	Sections []ReportSection `json:"sections,omitempty"`

	// Header opens the assembled report.
	Header string `json:"header,omitempty"`

	// Report is the assembled final document.
	Report string `json:"report,omitempty"`
}

// ReportReducer merges a node delta into the report state. Sections
// append; SectionIndex only moves forward; the rest replace when set.
func ReportReducer(prev, delta ReportState) ReportState {
	next := prev
	if delta.Query != "" {
		next.Query = delta.Query
	}
	if delta.Retrieved != nil {
		next.Retrieved = delta.Retrieved
	}
	if delta.Outline != nil {
		next.Outline = delta.Outline
	}
	if delta.SectionIndex > prev.SectionIndex {
		next.SectionIndex = delta.SectionIndex
	}
	if delta.Draft != "" {
		next.Draft = delta.Draft
	}
	if len(delta.Sections) > 0 {
		next.Sections = append(append([]ReportSection{}, prev.Sections...), delta.Sections...)
	}
	if delta.Header != "" {
		next.Header = delta.Header
	}
	if delta.Report != "" {
		next.Report = delta.Report
	}
	return next
}
