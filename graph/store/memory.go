package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store implementation.
//
// Used for tests and for throwaway sessions where nothing should touch
// disk. State is deep-copied on save and load so callers cannot mutate
// stored snapshots.
type MemStore[S any] struct {
	mu          sync.RWMutex
	steps       map[string][]StepRecord[S]
	updated     map[string]time.Time
	checkpoints map[string]checkpointRecord[S]
}

type checkpointRecord[S any] struct {
	state S
	step  int
}

// NewMemStore creates an empty in-memory store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		steps:       make(map[string][]StepRecord[S]),
		updated:     make(map[string]time.Time),
		checkpoints: make(map[string]checkpointRecord[S]),
	}
}

// SaveStep implements Store.
func (m *MemStore[S]) SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	copied, err := cloneState(state)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	records := m.steps[runID]
	replaced := false
	for i := range records {
		if records[i].Step == step {
			records[i] = StepRecord[S]{Step: step, NodeID: nodeID, State: copied}
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, StepRecord[S]{Step: step, NodeID: nodeID, State: copied})
	}
	m.steps[runID] = records
	m.updated[runID] = time.Now()
	return nil
}

// LoadLatest implements Store.
func (m *MemStore[S]) LoadLatest(ctx context.Context, runID string) (S, int, error) {
	var zero S
	if err := ctx.Err(); err != nil {
		return zero, 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	records, ok := m.steps[runID]
	if !ok || len(records) == 0 {
		return zero, 0, fmt.Errorf("run %q: %w", runID, ErrNotFound)
	}

	latest := records[0]
	for _, r := range records[1:] {
		if r.Step > latest.Step {
			latest = r
		}
	}

	copied, err := cloneState(latest.State)
	if err != nil {
		return zero, 0, err
	}
	return copied, latest.Step, nil
}

// SaveCheckpoint implements Store.
func (m *MemStore[S]) SaveCheckpoint(ctx context.Context, cpID string, state S, step int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	copied, err := cloneState(state)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[cpID] = checkpointRecord[S]{state: copied, step: step}
	return nil
}

// LoadCheckpoint implements Store.
func (m *MemStore[S]) LoadCheckpoint(ctx context.Context, cpID string) (S, int, error) {
	var zero S
	if err := ctx.Err(); err != nil {
		return zero, 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.checkpoints[cpID]
	if !ok {
		return zero, 0, fmt.Errorf("checkpoint %q: %w", cpID, ErrNotFound)
	}

	copied, err := cloneState(cp.state)
	if err != nil {
		return zero, 0, err
	}
	return copied, cp.step, nil
}

// ListRuns implements Store.
func (m *MemStore[S]) ListRuns(ctx context.Context) ([]RunInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]RunInfo, 0, len(m.steps))
	for runID, records := range m.steps {
		last := 0
		for _, r := range records {
			if r.Step > last {
				last = r.Step
			}
		}
		runs = append(runs, RunInfo{RunID: runID, LastStep: last, UpdatedAt: m.updated[runID]})
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].UpdatedAt.After(runs[j].UpdatedAt)
	})
	return runs, nil
}

// DeleteRun implements Store.
func (m *MemStore[S]) DeleteRun(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.steps, runID)
	delete(m.updated, runID)
	return nil
}

// Close implements Store. No-op for the in-memory store.
func (m *MemStore[S]) Close() error {
	return nil
}

func cloneState[S any](state S) (S, error) {
	var zero S
	data, err := json.Marshal(state)
	if err != nil {
		return zero, fmt.Errorf("marshal state: %w", err)
	}
	var copied S
	if err := json.Unmarshal(data, &copied); err != nil {
		return zero, fmt.Errorf("unmarshal state: %w", err)
	}
	return copied, nil
}
