package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowbrg/homer/graph/store"
)

// countState is a minimal state for engine tests.
type countState struct {
	Count int      `json:"count"`
	Trail []string `json:"trail"`
}

func countReducer(prev, delta countState) countState {
	next := prev
	next.Count += delta.Count
	if len(delta.Trail) > 0 {
		next.Trail = append(append([]string{}, prev.Trail...), delta.Trail...)
	}
	return next
}

func incNode(name, next string) NodeFunc[countState] {
	return func(ctx context.Context, s countState) NodeResult[countState] {
		delta := countState{Count: 1, Trail: []string{name}}
		if next == "" {
			return NodeResult[countState]{Delta: delta, Route: Stop()}
		}
		return NodeResult[countState]{Delta: delta, Route: Goto(next)}
	}
}

func newTestEngine(t *testing.T, opts Options) *Engine[countState] {
	t.Helper()
	return New(countReducer, store.NewMemStore[countState](), nil, opts)
}

func TestEngineRunLinear(t *testing.T) {
	engine := newTestEngine(t, Options{})
	mustAdd(t, engine, "a", incNode("a", "b"))
	mustAdd(t, engine, "b", incNode("b", "c"))
	mustAdd(t, engine, "c", incNode("c", ""))
	if err := engine.StartAt("a"); err != nil {
		t.Fatal(err)
	}

	final, err := engine.Run(context.Background(), "run-1", countState{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if final.Count != 3 {
		t.Errorf("Count = %d, expected 3", final.Count)
	}
	want := []string{"a", "b", "c"}
	for i, name := range want {
		if final.Trail[i] != name {
			t.Errorf("Trail = %v, expected %v", final.Trail, want)
			break
		}
	}
}

func TestEngineEdgeRouting(t *testing.T) {
	passthrough := func(name string) NodeFunc[countState] {
		return func(ctx context.Context, s countState) NodeResult[countState] {
			return NodeResult[countState]{Delta: countState{Count: 1, Trail: []string{name}}}
		}
	}

	engine := newTestEngine(t, Options{})
	mustAdd(t, engine, "start", passthrough("start"))
	mustAdd(t, engine, "high", incNode("high", ""))
	mustAdd(t, engine, "low", incNode("low", ""))

	// First matching edge wins; the unconditional edge is the fallback.
	if err := engine.Connect("start", "high", func(s countState) bool { return s.Count > 5 }); err != nil {
		t.Fatal(err)
	}
	if err := engine.Connect("start", "low", nil); err != nil {
		t.Fatal(err)
	}
	if err := engine.StartAt("start"); err != nil {
		t.Fatal(err)
	}

	t.Run("predicate false takes fallback", func(t *testing.T) {
		final, err := engine.Run(context.Background(), "run-low", countState{})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if final.Trail[len(final.Trail)-1] != "low" {
			t.Errorf("Trail = %v, expected to end at low", final.Trail)
		}
	})

	t.Run("predicate true takes conditional edge", func(t *testing.T) {
		final, err := engine.Run(context.Background(), "run-high", countState{Count: 10})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if final.Trail[len(final.Trail)-1] != "high" {
			t.Errorf("Trail = %v, expected to end at high", final.Trail)
		}
	})
}

func TestEngineNoRouteFails(t *testing.T) {
	engine := newTestEngine(t, Options{})
	mustAdd(t, engine, "orphan", NodeFunc[countState](func(ctx context.Context, s countState) NodeResult[countState] {
		return NodeResult[countState]{}
	}))
	if err := engine.StartAt("orphan"); err != nil {
		t.Fatal(err)
	}

	_, err := engine.Run(context.Background(), "run-1", countState{})
	var engErr *EngineError
	if !errors.As(err, &engErr) || engErr.Code != "NO_ROUTE" {
		t.Fatalf("expected NO_ROUTE error, got %v", err)
	}
}

func TestEngineMaxSteps(t *testing.T) {
	engine := newTestEngine(t, Options{MaxSteps: 5})
	mustAdd(t, engine, "loop", incNode("loop", "loop"))
	if err := engine.StartAt("loop"); err != nil {
		t.Fatal(err)
	}

	_, err := engine.Run(context.Background(), "run-1", countState{})
	if !errors.Is(err, ErrMaxStepsExceeded) {
		t.Fatalf("expected ErrMaxStepsExceeded, got %v", err)
	}
}

func TestEngineValidation(t *testing.T) {
	t.Run("missing start node", func(t *testing.T) {
		engine := newTestEngine(t, Options{})
		mustAdd(t, engine, "a", incNode("a", ""))

		_, err := engine.Run(context.Background(), "run-1", countState{})
		var engErr *EngineError
		if !errors.As(err, &engErr) || engErr.Code != "NO_START_NODE" {
			t.Fatalf("expected NO_START_NODE, got %v", err)
		}
	})

	t.Run("duplicate node", func(t *testing.T) {
		engine := newTestEngine(t, Options{})
		mustAdd(t, engine, "a", incNode("a", ""))
		if err := engine.Add("a", incNode("a", "")); err == nil {
			t.Fatal("expected duplicate node error")
		}
	})

	t.Run("start at unknown node", func(t *testing.T) {
		engine := newTestEngine(t, Options{})
		if err := engine.StartAt("ghost"); err == nil {
			t.Fatal("expected error for unknown start node")
		}
	})
}

func TestEngineRetries(t *testing.T) {
	t.Run("transient error retried until success", func(t *testing.T) {
		attempts := 0
		flaky := NodeFunc[countState](func(ctx context.Context, s countState) NodeResult[countState] {
			attempts++
			if attempts < 3 {
				return NodeResult[countState]{Err: errors.New("transient")}
			}
			return NodeResult[countState]{Delta: countState{Count: 1}, Route: Stop()}
		})

		engine := newTestEngine(t, Options{})
		mustAdd(t, engine, "flaky", flaky)
		if err := engine.SetPolicy("flaky", NodePolicy{
			RetryPolicy: &RetryPolicy{
				MaxAttempts: 3,
				BaseDelay:   time.Millisecond,
				Retryable:   func(error) bool { return true },
			},
		}); err != nil {
			t.Fatal(err)
		}
		if err := engine.StartAt("flaky"); err != nil {
			t.Fatal(err)
		}

		final, err := engine.Run(context.Background(), "run-1", countState{})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, expected 3", attempts)
		}
		if final.Count != 1 {
			t.Errorf("Count = %d", final.Count)
		}
	})

	t.Run("retries exhausted", func(t *testing.T) {
		engine := newTestEngine(t, Options{})
		mustAdd(t, engine, "dead", NodeFunc[countState](func(ctx context.Context, s countState) NodeResult[countState] {
			return NodeResult[countState]{Err: errors.New("always fails")}
		}))
		if err := engine.SetPolicy("dead", NodePolicy{
			RetryPolicy: &RetryPolicy{
				MaxAttempts: 2,
				BaseDelay:   time.Millisecond,
				Retryable:   func(error) bool { return true },
			},
		}); err != nil {
			t.Fatal(err)
		}
		if err := engine.StartAt("dead"); err != nil {
			t.Fatal(err)
		}

		_, err := engine.Run(context.Background(), "run-1", countState{})
		if !errors.Is(err, ErrMaxAttemptsExceeded) {
			t.Fatalf("expected ErrMaxAttemptsExceeded, got %v", err)
		}
	})

	t.Run("non-retryable error fails immediately", func(t *testing.T) {
		attempts := 0
		engine := newTestEngine(t, Options{})
		mustAdd(t, engine, "fatal", NodeFunc[countState](func(ctx context.Context, s countState) NodeResult[countState] {
			attempts++
			return NodeResult[countState]{Err: errors.New("fatal")}
		}))
		if err := engine.SetPolicy("fatal", NodePolicy{
			RetryPolicy: &RetryPolicy{
				MaxAttempts: 5,
				BaseDelay:   time.Millisecond,
				Retryable:   func(error) bool { return false },
			},
		}); err != nil {
			t.Fatal(err)
		}
		if err := engine.StartAt("fatal"); err != nil {
			t.Fatal(err)
		}

		_, err := engine.Run(context.Background(), "run-1", countState{})
		var nodeErr *NodeError
		if !errors.As(err, &nodeErr) {
			t.Fatalf("expected NodeError, got %v", err)
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, expected 1", attempts)
		}
	})
}

func TestEngineNodeTimeout(t *testing.T) {
	slow := NodeFunc[countState](func(ctx context.Context, s countState) NodeResult[countState] {
		select {
		case <-time.After(time.Second):
			return NodeResult[countState]{Route: Stop()}
		case <-ctx.Done():
			return NodeResult[countState]{Err: ctx.Err()}
		}
	})

	engine := newTestEngine(t, Options{})
	mustAdd(t, engine, "slow", slow)
	if err := engine.SetPolicy("slow", NodePolicy{Timeout: 10 * time.Millisecond}); err != nil {
		t.Fatal(err)
	}
	if err := engine.StartAt("slow"); err != nil {
		t.Fatal(err)
	}

	_, err := engine.Run(context.Background(), "run-1", countState{})
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestEngineContextCancellation(t *testing.T) {
	engine := newTestEngine(t, Options{})
	mustAdd(t, engine, "loop", incNode("loop", "loop"))
	if err := engine.StartAt("loop"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Run(ctx, "run-1", countState{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEngineCheckpointResume(t *testing.T) {
	st := store.NewMemStore[countState]()
	engine := New(countReducer, st, nil, Options{})
	mustAdd(t, engine, "a", incNode("a", "b"))
	mustAdd(t, engine, "b", incNode("b", ""))
	if err := engine.StartAt("a"); err != nil {
		t.Fatal(err)
	}

	if _, err := engine.Run(context.Background(), "run-1", countState{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := engine.SaveCheckpoint(context.Background(), "run-1", "cp-1"); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	final, err := engine.ResumeFromCheckpoint(context.Background(), "cp-1", "run-2", "b")
	if err != nil {
		t.Fatalf("ResumeFromCheckpoint: %v", err)
	}
	// Two steps from the original run plus the resumed b step.
	if final.Count != 3 {
		t.Errorf("Count = %d, expected 3", final.Count)
	}

	t.Run("unknown checkpoint", func(t *testing.T) {
		if _, err := engine.ResumeFromCheckpoint(context.Background(), "nope", "run-3", "b"); err == nil {
			t.Fatal("expected error for unknown checkpoint")
		}
	})
}

func TestEngineStatePersistedPerStep(t *testing.T) {
	st := store.NewMemStore[countState]()
	engine := New(countReducer, st, nil, Options{})
	mustAdd(t, engine, "a", incNode("a", "b"))
	mustAdd(t, engine, "b", incNode("b", ""))
	if err := engine.StartAt("a"); err != nil {
		t.Fatal(err)
	}

	if _, err := engine.Run(context.Background(), "run-1", countState{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	state, step, err := st.LoadLatest(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if step != 2 {
		t.Errorf("step = %d, expected 2", step)
	}
	if state.Count != 2 {
		t.Errorf("persisted Count = %d, expected 2", state.Count)
	}
}

func TestEngineMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()

	engine := newTestEngine(t, Options{})
	engine.SetMetrics(NewMetrics(registry))
	mustAdd(t, engine, "a", incNode("a", ""))
	if err := engine.StartAt("a"); err != nil {
		t.Fatal(err)
	}

	if _, err := engine.Run(context.Background(), "run-1", countState{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, want := range []string{"homer_graph_runs_total", "homer_graph_steps_total"} {
		if !found[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}

func TestRetryPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		wantErr bool
	}{
		{"valid", RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}, false},
		{"single attempt", RetryPolicy{MaxAttempts: 1}, false},
		{"zero attempts", RetryPolicy{MaxAttempts: 0}, true},
		{"max below base", RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: time.Millisecond}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestComputeBackoff(t *testing.T) {
	base := 10 * time.Millisecond
	maxDelay := 40 * time.Millisecond

	for attempt := 0; attempt < 5; attempt++ {
		d := computeBackoff(attempt, base, maxDelay)
		if d < 0 {
			t.Errorf("attempt %d: negative delay %v", attempt, d)
		}
		// Capped exponential plus at most one base of jitter.
		if d > maxDelay+base {
			t.Errorf("attempt %d: delay %v exceeds cap", attempt, d)
		}
	}

	if d := computeBackoff(3, 0, maxDelay); d != 0 {
		t.Errorf("zero base should yield zero delay, got %v", d)
	}
}

func mustAdd(t *testing.T, e *Engine[countState], id string, n Node[countState]) {
	t.Helper()
	if err := e.Add(id, n); err != nil {
		t.Fatalf("Add(%s): %v", id, err)
	}
}
