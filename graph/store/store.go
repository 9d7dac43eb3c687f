// Package store provides persistence backends for pipeline state.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a run ID or checkpoint ID does not exist.
var ErrNotFound = errors.New("not found")

// Store persists pipeline state step by step and as named checkpoints.
//
// Runs double as chat threads: the state saved under a thread's run ID is
// the thread's conversation state, and resuming a thread is LoadLatest.
//
// Type parameter S is the state type to persist. It must be
// JSON-serializable.
type Store[S any] interface {
	// SaveStep persists the state after a node execution. Steps restart
	// from 1 on every engine run; saving an existing (runID, step) pair
	// replaces the previous snapshot.
	SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error

	// LoadLatest returns the most recent state for a run and its step
	// number. Returns ErrNotFound for unknown runs.
	LoadLatest(ctx context.Context, runID string) (state S, step int, err error)

	// SaveCheckpoint stores a named snapshot of pipeline state.
	SaveCheckpoint(ctx context.Context, cpID string, state S, step int) error

	// LoadCheckpoint retrieves a named snapshot. Returns ErrNotFound for
	// unknown checkpoint IDs.
	LoadCheckpoint(ctx context.Context, cpID string) (state S, step int, err error)

	// ListRuns enumerates known runs, most recently updated first.
	ListRuns(ctx context.Context) ([]RunInfo, error)

	// DeleteRun removes all steps for a run. Deleting an unknown run is
	// not an error.
	DeleteRun(ctx context.Context, runID string) error

	// Close releases store resources.
	Close() error
}

// RunInfo summarizes a stored run.
type RunInfo struct {
	// RunID is the run (thread) identifier.
	RunID string

	// LastStep is the highest persisted step number.
	LastStep int

	// UpdatedAt is when the run last saved a step.
	UpdatedAt time.Time
}

// StepRecord is a single execution step in a run's history. Used internally
// by Store implementations.
type StepRecord[S any] struct {
	Step   int
	NodeID string
	State  S
}
