package graph

// Reducer merges a partial state update (delta) into the previous state and
// returns the new state. Reducers must be deterministic: the same inputs
// always produce the same output. Each pipeline defines its own merge
// semantics (append messages, replace query, accumulate sections, ...).
type Reducer[S any] func(prev, delta S) S
