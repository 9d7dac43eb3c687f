// Package parser extracts plain text from the document formats homer can
// index: PDF, Markdown, plain text, and images of scanned pages.
package parser

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Document is the parsed text of one source file.
type Document struct {
	// Source is the path the document was loaded from.
	Source string

	// Content is the extracted plain text.
	Content string
}

// Loader extracts text from one file format.
type Loader interface {
	// Load parses the file at path into a Document.
	Load(ctx context.Context, path string) (Document, error)

	// Extensions lists the lowercase file extensions this loader handles,
	// dot included.
	Extensions() []string
}

// Registry dispatches files to loaders by extension.
type Registry struct {
	loaders map[string]Loader
}

// NewRegistry builds a registry from the given loaders. Later loaders win
// on extension conflicts.
func NewRegistry(loaders ...Loader) *Registry {
	r := &Registry{loaders: make(map[string]Loader)}
	for _, l := range loaders {
		for _, ext := range l.Extensions() {
			r.loaders[strings.ToLower(ext)] = l
		}
	}
	return r
}

// DefaultRegistry covers the text formats that need no model access.
// Image transcription requires a vision model; register an ImageLoader
// explicitly when one is configured.
func DefaultRegistry() *Registry {
	return NewRegistry(
		&PDFLoader{},
		&MarkdownLoader{},
		&TextLoader{},
	)
}

// ForFile returns the loader for path's extension, or false if the
// format is unsupported.
func (r *Registry) ForFile(path string) (Loader, bool) {
	l, ok := r.loaders[strings.ToLower(filepath.Ext(path))]
	return l, ok
}

// Supported reports whether path's extension has a registered loader.
func (r *Registry) Supported(path string) bool {
	_, ok := r.ForFile(path)
	return ok
}

// Load parses the file at path with the loader registered for its
// extension.
func (r *Registry) Load(ctx context.Context, path string) (Document, error) {
	l, ok := r.ForFile(path)
	if !ok {
		return Document{}, fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
	return l.Load(ctx, path)
}

// ScanDir walks dir and returns the paths of all supported files, sorted.
// Hidden files and directories are skipped.
func (r *Registry) ScanDir(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if r.Supported(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// readFile is a small indirection so loaders share one error shape.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
