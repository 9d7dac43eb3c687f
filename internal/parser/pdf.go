package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFLoader extracts the text layer of a PDF page by page. PDFs without
// a text layer (pure scans) come back empty; route those through the
// ImageLoader instead.
type PDFLoader struct{}

// Extensions implements Loader.
func (l *PDFLoader) Extensions() []string {
	return []string{".pdf"}
}

// Load implements Loader.
func (l *PDFLoader) Load(ctx context.Context, path string) (Document, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		if err := ctx.Err(); err != nil {
			return Document{}, err
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return Document{}, fmt.Errorf("extract page %d of %s: %w", pageNum, path, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	return Document{Source: path, Content: strings.TrimSpace(sb.String())}, nil
}
