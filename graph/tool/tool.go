// Package tool defines the interface for executable tools that pipeline
// nodes and agents can invoke.
package tool

import "context"

// Tool is an executable capability with a stable name.
//
// Implementations should validate their input, respect context
// cancellation, and return structured output. Tools should be idempotent
// where possible.
type Tool interface {
	// Name returns the unique identifier for this tool, lowercase with
	// underscores (e.g. "search_documents").
	Name() string

	// Call executes the tool. Input holds the tool's parameters as
	// key-value pairs; output is structured data the caller (or a model)
	// can process.
	Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}
