package graph

import (
	"context"
	"sync"
	"time"

	"github.com/flowbrg/homer/graph/emit"
	"github.com/flowbrg/homer/graph/store"
)

// Engine orchestrates stateful pipeline execution with persistence.
//
// The Engine:
//   - holds the graph topology (nodes and edges)
//   - executes nodes sequentially from the start node
//   - merges state deltas via the reducer
//   - persists state after every step via the store
//   - emits observability events
//   - enforces MaxSteps, per-node timeouts and retry policies
//
// Type parameter S is the state type shared across the pipeline.
//
// Example:
//
//	engine := graph.New(reducer, store.NewMemStore[ChatState](), emitter, graph.Options{MaxSteps: 50})
//	engine.Add("retrieve", retrieveNode)
//	engine.Add("respond", respondNode)
//	engine.Connect("retrieve", "respond", nil)
//	engine.StartAt("retrieve")
//
//	final, err := engine.Run(ctx, threadID, initial)
type Engine[S any] struct {
	mu sync.RWMutex

	reducer   Reducer[S]
	nodes     map[string]Node[S]
	policies  map[string]NodePolicy
	edges     []Edge[S]
	startNode string

	store   store.Store[S]
	emitter emit.Emitter
	metrics *Metrics
	opts    Options
}

// Options configures engine execution behavior. Zero values are valid.
type Options struct {
	// MaxSteps limits execution to prevent routing cycles.
	// Zero means no limit.
	MaxSteps int

	// DefaultNodeTimeout applies to nodes without a per-node policy
	// timeout. Zero means unlimited.
	DefaultNodeTimeout time.Duration
}

// New creates an Engine. The emitter may be nil.
func New[S any](reducer Reducer[S], st store.Store[S], emitter emit.Emitter, opts Options) *Engine[S] {
	return &Engine[S]{
		reducer:  reducer,
		nodes:    make(map[string]Node[S]),
		policies: make(map[string]NodePolicy),
		edges:    make([]Edge[S], 0),
		store:    st,
		emitter:  emitter,
		opts:     opts,
	}
}

// SetMetrics attaches a Prometheus metrics collector. Optional.
func (e *Engine[S]) SetMetrics(m *Metrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

// Add registers a node under a unique ID.
func (e *Engine[S]) Add(nodeID string, node Node[S]) error {
	if nodeID == "" {
		return &EngineError{Message: "node ID cannot be empty"}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; exists {
		return &EngineError{Message: "duplicate node ID: " + nodeID, Code: "DUPLICATE_NODE"}
	}

	e.nodes[nodeID] = node
	return nil
}

// SetPolicy attaches an execution policy (timeout, retries) to a node.
func (e *Engine[S]) SetPolicy(nodeID string, policy NodePolicy) error {
	if policy.RetryPolicy != nil {
		if err := policy.RetryPolicy.Validate(); err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; !exists {
		return &EngineError{Message: "node does not exist: " + nodeID, Code: "NODE_NOT_FOUND"}
	}

	e.policies[nodeID] = policy
	return nil
}

// StartAt sets the entry node. The node must already be registered.
func (e *Engine[S]) StartAt(nodeID string) error {
	if nodeID == "" {
		return &EngineError{Message: "start node ID cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; !exists {
		return &EngineError{Message: "start node does not exist: " + nodeID, Code: "NODE_NOT_FOUND"}
	}

	e.startNode = nodeID
	return nil
}

// Connect creates an edge between two nodes. A nil predicate makes the edge
// unconditional. Node existence is validated lazily at run time so graphs
// can be built in any order.
func (e *Engine[S]) Connect(from, to string, predicate Predicate[S]) error {
	if from == "" {
		return &EngineError{Message: "from node ID cannot be empty"}
	}
	if to == "" {
		return &EngineError{Message: "to node ID cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.edges = append(e.edges, Edge[S]{From: from, To: to, When: predicate})
	return nil
}

// Run executes the pipeline from the start node until a terminal route,
// an error, or the MaxSteps limit. State after every node is persisted
// under runID before routing continues, so a chat thread can always be
// resumed from its latest stored state.
func (e *Engine[S]) Run(ctx context.Context, runID string, initial S) (S, error) {
	var zero S

	if err := e.validate(); err != nil {
		return zero, err
	}

	final, err := e.run(ctx, runID, e.startNode, initial)
	if e.metrics != nil {
		e.metrics.observeRun(err)
	}
	return final, err
}

// ResumeFromCheckpoint starts a new run from a previously saved checkpoint,
// beginning execution at startNode.
func (e *Engine[S]) ResumeFromCheckpoint(ctx context.Context, cpID, newRunID, startNode string) (S, error) {
	var zero S

	state, step, err := e.store.LoadCheckpoint(ctx, cpID)
	if err != nil {
		return zero, &EngineError{Message: "checkpoint not found: " + cpID, Code: "CHECKPOINT_NOT_FOUND", Cause: err}
	}

	e.mu.RLock()
	_, exists := e.nodes[startNode]
	e.mu.RUnlock()
	if !exists {
		return zero, &EngineError{Message: "resume start node does not exist: " + startNode, Code: "NODE_NOT_FOUND"}
	}

	e.emit(emit.Event{
		RunID:  newRunID,
		NodeID: startNode,
		Msg:    "resuming from checkpoint",
		Meta:   map[string]interface{}{"checkpoint_id": cpID, "checkpoint_step": step},
	})

	final, err := e.run(ctx, newRunID, startNode, state)
	if e.metrics != nil {
		e.metrics.observeRun(err)
	}
	return final, err
}

// SaveCheckpoint snapshots the latest persisted state of a run under a
// user-defined label.
func (e *Engine[S]) SaveCheckpoint(ctx context.Context, runID, cpID string) error {
	state, step, err := e.store.LoadLatest(ctx, runID)
	if err != nil {
		return &EngineError{Message: "run state not found: " + runID, Code: "RUN_NOT_FOUND", Cause: err}
	}

	if err := e.store.SaveCheckpoint(ctx, cpID, state, step); err != nil {
		return &EngineError{Message: "failed to save checkpoint", Code: "CHECKPOINT_SAVE_FAILED", Cause: err}
	}

	e.emit(emit.Event{
		RunID: runID,
		Step:  step,
		Msg:   "checkpoint saved",
		Meta:  map[string]interface{}{"checkpoint_id": cpID},
	})
	return nil
}

func (e *Engine[S]) validate() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.reducer == nil {
		return &EngineError{Message: "reducer is required", Code: "MISSING_REDUCER"}
	}
	if e.store == nil {
		return &EngineError{Message: "store is required", Code: "MISSING_STORE"}
	}
	if e.startNode == "" {
		return &EngineError{Message: "start node not set (call StartAt before Run)", Code: "NO_START_NODE"}
	}
	if _, exists := e.nodes[e.startNode]; !exists {
		return &EngineError{Message: "start node does not exist: " + e.startNode, Code: "NODE_NOT_FOUND"}
	}
	return nil
}

func (e *Engine[S]) run(ctx context.Context, runID, startNode string, initial S) (S, error) {
	var zero S

	currentState := initial
	currentNode := startNode
	step := 0

	for {
		step++

		if e.opts.MaxSteps > 0 && step > e.opts.MaxSteps {
			return zero, &EngineError{
				Message: "pipeline exceeded MaxSteps limit",
				Code:    "MAX_STEPS_EXCEEDED",
				Cause:   ErrMaxStepsExceeded,
			}
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		e.mu.RLock()
		nodeImpl, exists := e.nodes[currentNode]
		policy, hasPolicy := e.policies[currentNode]
		e.mu.RUnlock()

		if !exists {
			return zero, &EngineError{Message: "node not found during execution: " + currentNode, Code: "NODE_NOT_FOUND"}
		}

		var nodePolicy *NodePolicy
		if hasPolicy {
			nodePolicy = &policy
		}

		start := time.Now()
		result, err := e.executeNode(ctx, nodeImpl, currentNode, currentState, nodePolicy)
		if e.metrics != nil {
			e.metrics.observeStep(currentNode, time.Since(start), err)
		}
		if err != nil {
			return zero, err
		}

		currentState = e.reducer(currentState, result.Delta)

		if err := e.store.SaveStep(ctx, runID, step, currentNode, currentState); err != nil {
			return zero, &EngineError{Message: "failed to save step", Code: "STORE_ERROR", Cause: err}
		}

		e.emit(emit.Event{RunID: runID, Step: step, NodeID: currentNode, Msg: "node completed"})

		if result.Route.Terminal {
			return currentState, nil
		}
		if result.Route.To != "" {
			currentNode = result.Route.To
			continue
		}

		nextNode := e.evaluateEdges(currentNode, currentState)
		if nextNode == "" {
			return zero, &EngineError{Message: "no valid route from node: " + currentNode, Code: "NO_ROUTE"}
		}
		currentNode = nextNode
	}
}

// executeNode runs a node with timeout and retry handling per its policy.
func (e *Engine[S]) executeNode(ctx context.Context, node Node[S], nodeID string, state S, policy *NodePolicy) (NodeResult[S], error) {
	var retry *RetryPolicy
	if policy != nil {
		retry = policy.RetryPolicy
	}

	maxAttempts := 1
	if retry != nil {
		maxAttempts = retry.MaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if e.metrics != nil {
				e.metrics.observeRetry(nodeID)
			}
			delay := computeBackoff(attempt-1, retry.BaseDelay, retry.MaxDelay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return NodeResult[S]{}, ctx.Err()
			}
		}

		result, err := executeNodeWithTimeout(ctx, node, nodeID, state, policy, e.opts.DefaultNodeTimeout)
		if err == nil && result.Err == nil {
			return result, nil
		}

		if err == nil {
			err = result.Err
		}
		lastErr = err

		if retry == nil || retry.Retryable == nil || !retry.Retryable(err) {
			return NodeResult[S]{}, &NodeError{Message: err.Error(), NodeID: nodeID, Cause: err}
		}
	}

	return NodeResult[S]{}, &NodeError{
		Message: "retries exhausted: " + lastErr.Error(),
		NodeID:  nodeID,
		Cause:   ErrMaxAttemptsExceeded,
	}
}

// evaluateEdges finds the first matching outgoing edge. Unconditional edges
// always match; otherwise the predicate decides. First match wins.
func (e *Engine[S]) evaluateEdges(fromNode string, state S) string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, edge := range e.edges {
		if edge.From != fromNode {
			continue
		}
		if edge.When == nil || edge.When(state) {
			return edge.To
		}
	}
	return ""
}

func (e *Engine[S]) emit(ev emit.Event) {
	if e.emitter != nil {
		e.emitter.Emit(ev)
	}
}
