package model

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync"
)

// MockChatModel is a test implementation of ChatModel.
//
// It returns configured responses in order (repeating the last one when
// exhausted), optionally injects an error, and records every call so tests
// can assert on the prompts a node built.
type MockChatModel struct {
	// Responses is the sequence of responses to return.
	Responses []ChatOut

	// Err, if set, is returned instead of a response.
	Err error

	// Calls records every Chat invocation.
	Calls []MockChatCall

	mu        sync.Mutex
	callIndex int
}

// MockChatCall records a single Chat invocation.
type MockChatCall struct {
	Messages []Message
	Tools    []ToolSpec
}

// Chat implements ChatModel.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockChatCall{Messages: messages, Tools: tools})

	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// Reset clears call history and restarts the response sequence.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.callIndex = 0
}

// CallCount returns how many times Chat has been called.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockEmbedder is a test implementation of Embedder. It produces
// deterministic vectors derived from the input text, so identical texts
// embed identically and similarity comparisons are stable across runs.
type MockEmbedder struct {
	// Dim is the vector dimension. Defaults to 8.
	Dim int

	// Err, if set, is returned instead of vectors.
	Err error

	mu    sync.Mutex
	calls [][]string
}

// Embed implements Embedder.
func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	m.mu.Lock()
	m.calls = append(m.calls, texts)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}

	dim := m.Dim
	if dim <= 0 {
		dim = 8
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		sum := sha256.Sum256([]byte(text))
		vec := make([]float32, dim)
		for j := 0; j < dim; j++ {
			bits := binary.LittleEndian.Uint32(sum[(j*4)%28:])
			vec[j] = float32(bits%1000)/1000.0 - 0.5
		}
		out[i] = vec
	}
	return out, nil
}

// CallCount returns how many times Embed has been called.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
