// Package graph provides the state-graph execution engine that drives
// homer's indexing, chat and report pipelines.
package graph

// Edge is a connection between two nodes.
//
// Unconditional edges (When == nil) always match. Conditional edges match
// only when their predicate returns true for the current state. Explicit
// routing via NodeResult.Route takes precedence over edges.
type Edge[S any] struct {
	// From is the source node ID.
	From string

	// To is the destination node ID.
	To string

	// When is an optional traversal predicate. Nil means unconditional.
	When Predicate[S]
}

// Predicate evaluates state to decide whether an edge should be traversed.
// Predicates should be pure functions of the state.
type Predicate[S any] func(state S) bool
