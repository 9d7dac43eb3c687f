package parser

import (
	"context"
	"strings"
)

// TextLoader reads plain-text files as-is.
type TextLoader struct{}

// Extensions implements Loader.
func (l *TextLoader) Extensions() []string {
	return []string{".txt"}
}

// Load implements Loader.
func (l *TextLoader) Load(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	data, err := readFile(path)
	if err != nil {
		return Document{}, err
	}
	return Document{Source: path, Content: strings.TrimSpace(string(data))}, nil
}
