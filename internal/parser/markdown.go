package parser

import (
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownLoader strips Markdown formatting, keeping the readable text.
// Headings and paragraphs become blank-line separated blocks so the
// chunker can split on them.
type MarkdownLoader struct{}

// Extensions implements Loader.
func (l *MarkdownLoader) Extensions() []string {
	return []string{".md", ".markdown"}
}

// Load implements Loader.
func (l *MarkdownLoader) Load(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	source, err := readFile(path)
	if err != nil {
		return Document{}, err
	}

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	var sb strings.Builder
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch n.(type) {
			case *ast.Paragraph, *ast.Heading, *ast.ListItem:
				sb.WriteString("\n\n")
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			sb.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.CodeBlock:
			writeLines(&sb, node, source)
		case *ast.FencedCodeBlock:
			writeLines(&sb, node, source)
		case *ast.AutoLink:
			sb.Write(node.URL(source))
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return Document{}, err
	}

	return Document{Source: path, Content: strings.TrimSpace(sb.String())}, nil
}

func writeLines(sb *strings.Builder, n ast.Node, source []byte) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(source))
	}
	sb.WriteString("\n\n")
}
