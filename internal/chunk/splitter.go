// Package chunk splits document text into overlapping pieces sized for
// embedding models.
package chunk

import "strings"

// Default splitter parameters. Chunks of roughly 4000 characters with a
// 200 character overlap keep whole paragraphs together for most PDFs
// while staying inside small embedding model context windows.
const (
	DefaultChunkSize    = 4000
	DefaultChunkOverlap = 200
)

// separators are tried in order, coarsest first, so splits land on
// paragraph and line boundaries whenever the text allows it.
var separators = []string{"\n\n", "\n", " ", ""}

// Splitter recursively splits text on natural boundaries into chunks of
// at most Size characters, with Overlap characters carried between
// adjacent chunks.
type Splitter struct {
	Size    int
	Overlap int
}

// NewSplitter returns a Splitter with the given parameters. Non-positive
// values fall back to the defaults; overlap is clamped below size.
func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Splitter{Size: size, Overlap: overlap}
}

// Split breaks text into chunks. Whitespace-only input yields no chunks.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, separators)
}

func (s *Splitter) split(text string, seps []string) []string {
	if len(text) <= s.Size {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	sep := seps[len(seps)-1]
	rest := seps
	for i, candidate := range seps {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			rest = seps[i+1:]
			break
		}
	}

	var parts []string
	if sep == "" {
		for start := 0; start < len(text); start += s.Size {
			end := start + s.Size
			if end > len(text) {
				end = len(text)
			}
			parts = append(parts, text[start:end])
		}
	} else {
		parts = strings.Split(text, sep)
	}

	// Oversized parts recurse with finer separators; the rest are merged
	// back up to the chunk size with overlap carried between neighbours.
	var pieces []string
	for _, p := range parts {
		if len(p) > s.Size {
			pieces = append(pieces, s.split(p, rest)...)
		} else if strings.TrimSpace(p) != "" {
			pieces = append(pieces, p)
		}
	}
	return s.merge(pieces, sep)
}

// merge joins small pieces into chunks close to Size, starting each new
// chunk with the tail of the previous one.
func (s *Splitter) merge(pieces []string, sep string) []string {
	var chunks []string
	var current []string
	currentLen := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunk := strings.Join(current, sep)
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}

		// Keep trailing pieces within the overlap window for the next chunk.
		for len(current) > 0 && currentLen > s.Overlap {
			currentLen -= len(current[0]) + len(sep)
			current = current[1:]
		}
		if currentLen < 0 {
			currentLen = 0
		}
	}

	for _, p := range pieces {
		pieceLen := len(p)
		if len(current) > 0 {
			pieceLen += len(sep)
		}
		if currentLen+pieceLen > s.Size && len(current) > 0 {
			flush()
		}
		current = append(current, p)
		currentLen += pieceLen
	}

	if len(current) > 0 {
		chunk := strings.Join(current, sep)
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}
