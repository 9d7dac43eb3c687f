package chunk

import (
	"strings"
	"testing"
)

func TestSplitterShortText(t *testing.T) {
	s := NewSplitter(100, 10)

	chunks := s.Split("hello world")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != "hello world" {
		t.Errorf("expected text unchanged, got %q", chunks[0])
	}
}

func TestSplitterEmptyText(t *testing.T) {
	s := NewSplitter(100, 10)

	for _, text := range []string{"", "   ", "\n\n\n"} {
		if chunks := s.Split(text); chunks != nil {
			t.Errorf("Split(%q) = %v, expected nil", text, chunks)
		}
	}
}

func TestSplitterParagraphBoundaries(t *testing.T) {
	para1 := strings.Repeat("a", 40)
	para2 := strings.Repeat("b", 40)
	para3 := strings.Repeat("c", 40)
	text := para1 + "\n\n" + para2 + "\n\n" + para3

	s := NewSplitter(50, 0)
	chunks := s.Split(text)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %v", len(chunks), chunks)
	}
	for i, c := range chunks {
		if strings.ContainsAny(c, "\n") {
			t.Errorf("chunk %d crosses paragraph boundary: %q", i, c)
		}
	}
}

func TestSplitterChunkSizeRespected(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 200; i++ {
		sb.WriteString("word ")
	}

	s := NewSplitter(100, 20)
	chunks := s.Split(sb.String())

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk %d has length %d, exceeds 100", i, len(c))
		}
	}
}

func TestSplitterOverlap(t *testing.T) {
	words := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		words = append(words, strings.Repeat(string(rune('a'+i%26)), 8))
	}
	text := strings.Join(words, " ")

	s := NewSplitter(100, 30)
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		prevTail := chunks[i-1][len(chunks[i-1])-8:]
		if !strings.Contains(chunks[i], prevTail) {
			t.Errorf("chunk %d does not overlap with chunk %d", i, i-1)
		}
	}
}

func TestSplitterNoSeparators(t *testing.T) {
	text := strings.Repeat("x", 250)

	s := NewSplitter(100, 0)
	chunks := s.Split(text)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	if total != 250 {
		t.Errorf("chunks cover %d characters, expected 250", total)
	}
}

func TestNewSplitterDefaults(t *testing.T) {
	s := NewSplitter(0, -1)
	if s.Size != DefaultChunkSize {
		t.Errorf("Size = %d, expected %d", s.Size, DefaultChunkSize)
	}
	if s.Overlap != DefaultChunkOverlap {
		t.Errorf("Overlap = %d, expected %d", s.Overlap, DefaultChunkOverlap)
	}

	s = NewSplitter(10, 50)
	if s.Overlap >= s.Size {
		t.Errorf("Overlap %d not clamped below Size %d", s.Overlap, s.Size)
	}
}
