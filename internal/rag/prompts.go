package rag

import (
	"fmt"
	"strings"

	"github.com/flowbrg/homer/internal/vectorstore"
)

const responsePromptTemplate = `You are a helpful AI assistant. Answer questions clearly using fact-based and statistical information where possible.

Use only the following information to answer the question:

%s

If the answer is not present in the context, say "I don't know". Do not make anything up.

Here is the summary of the previous discussion:

%s

Your response should be concise, specific, and rely on numerical or factual data when available.`

const rephrasePromptTemplate = `You are a helpful AI assistant. Improve the user's query to make it more precise and effective for information retrieval.

If available, use the previous messages to better understand user intent:

%s

Return only the improved query. Do not explain your changes.`

const outlinePromptTemplate = `You are assisting with the creation of a highly technical report on the topic of the user query.

Below is a corpus of technical context extracted from domain documents:

%s

Based on this information, propose exactly %d section titles for the report.
The report is for expert engineers, so avoid general sections like "Introduction" or "Overview".
Each section must reflect a precise technical aspect.

Return only the section titles. One per line. No bullet points or numbering. No explanations.`

const sectionPromptTemplate = `You are writing section "%s" for a technical report on <user_query>%s</user_query>.

GUIDELINES:
- Use ONLY information from the provided context, never fabricate facts, dates, or events
- If context is insufficient, state what is missing rather than inventing content
- Write in flowing paragraphs without subheadings
- Integrate multiple sources to build coherent arguments

%s

Write a detailed technical section that synthesizes the available evidence:`

const reviewPromptTemplate = `Edit this draft section for "%s" (report: "%s"):

EDITING GOALS:
- Verify all facts are from source material and flag any suspicious content
- Remove ALL internal headings and formatting artifacts
- Combine choppy sentences into flowing analytical prose
- Ensure logical progression of ideas

DRAFT:
%s

EDITED VERSION:`

const extendSummaryPromptTemplate = `This is the summary of the conversation to date:
<summary>
%s
</summary>

Extend the summary by taking into account the new messages:`

const newSummaryPrompt = `Create a summary of the conversation:`

func responsePrompt(results []vectorstore.SearchResult, summary string) string {
	if summary == "" {
		summary = "There is no summary yet."
	}
	return fmt.Sprintf(responsePromptTemplate, formatContext(results), summary)
}

func rephrasePrompt(previous []ChatMessage) string {
	history := "There were no previous messages."
	if len(previous) > 0 {
		history = formatMessages(previous)
	}
	return fmt.Sprintf(rephrasePromptTemplate, history)
}

func outlinePrompt(results []vectorstore.SearchResult, sections int) string {
	return fmt.Sprintf(outlinePromptTemplate, formatContext(results), sections)
}

func sectionPrompt(section, query string, results []vectorstore.SearchResult) string {
	return fmt.Sprintf(sectionPromptTemplate, section, query, formatContext(results))
}

func reviewPrompt(section, query, draft string) string {
	return fmt.Sprintf(reviewPromptTemplate, section, query, draft)
}

func summaryPrompt(existing string) string {
	if existing == "" {
		return newSummaryPrompt
	}
	return fmt.Sprintf(extendSummaryPromptTemplate, existing)
}

// formatContext renders retrieved chunks as tagged blocks so the model
// can cite sources.
func formatContext(results []vectorstore.SearchResult) string {
	if len(results) == 0 {
		return "<context>\nNo documents were retrieved.\n</context>"
	}

	var sb strings.Builder
	sb.WriteString("<context>\n")
	for _, r := range results {
		fmt.Fprintf(&sb, "<document source=%q>\n%s\n</document>\n", r.Chunk.Source, r.Chunk.Content)
	}
	sb.WriteString("</context>")
	return sb.String()
}

func formatMessages(messages []ChatMessage) string {
	var sb strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
	}
	return strings.TrimSpace(sb.String())
}
