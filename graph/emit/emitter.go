// Package emit provides observability event emission for pipeline runs.
package emit

// Emitter receives observability events from pipeline execution.
//
// Implementations should be non-blocking, safe for concurrent use, and
// resilient: an emitter failure must never crash a pipeline. Emit should
// not panic; internal errors should be logged and swallowed.
type Emitter interface {
	// Emit sends an event to the configured backend.
	Emit(event Event)
}

// Event is a single observability event from a pipeline run.
type Event struct {
	// RunID identifies the pipeline run (for chat, the thread ID).
	RunID string

	// Step is the 1-indexed step number. Zero for run-level events.
	Step int

	// NodeID identifies the emitting node. Empty for run-level events.
	NodeID string

	// Msg is a human-readable description.
	Msg string

	// Meta carries additional structured data (durations, checkpoint IDs,
	// token counts, error details).
	Meta map[string]interface{}
}
