package graph

import "context"

// Node is a processing unit in a pipeline graph. It receives the current
// state of type S, performs its work (parse documents, call a model, query
// the vector store, ...) and returns a NodeResult describing the state
// delta and the next hop.
//
// Type parameter S is the state type shared across the pipeline.
type Node[S any] interface {
	// Run executes the node's logic with the given context and state.
	Run(ctx context.Context, state S) NodeResult[S]
}

// NodeResult is the output of a node execution.
type NodeResult[S any] struct {
	// Delta is the partial state update produced by this node.
	// It is merged into the current state by the pipeline's Reducer.
	Delta S

	// Route selects the next step. Use Stop() for terminal nodes and
	// Goto(id) for explicit routing. If Route is the zero value, the
	// engine falls back to edge-based routing.
	Route Next

	// Err halts the pipeline unless the node's retry policy marks it
	// retryable.
	Err error
}

// Next specifies where execution goes after a node completes.
type Next struct {
	// To is the ID of the next node. Mutually exclusive with Terminal.
	To string

	// Terminal stops the pipeline.
	Terminal bool
}

// Stop returns a Next that terminates pipeline execution.
func Stop() Next {
	return Next{Terminal: true}
}

// Goto returns a Next that routes to the specified node.
func Goto(nodeID string) Next {
	return Next{To: nodeID}
}

// NodeFunc adapts a plain function to the Node interface.
//
// Example:
//
//	retrieve := graph.NodeFunc[ChatState](func(ctx context.Context, s ChatState) graph.NodeResult[ChatState] {
//	    docs, err := search(ctx, s.Query)
//	    if err != nil {
//	        return graph.NodeResult[ChatState]{Err: err}
//	    }
//	    return graph.NodeResult[ChatState]{
//	        Delta: ChatState{Retrieved: docs},
//	        Route: graph.Goto("respond"),
//	    }
//	})
type NodeFunc[S any] func(ctx context.Context, state S) NodeResult[S]

// Run implements the Node interface for NodeFunc.
func (f NodeFunc[S]) Run(ctx context.Context, state S) NodeResult[S] {
	return f(ctx, state)
}
