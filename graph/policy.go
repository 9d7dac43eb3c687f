package graph

import (
	"math/rand"
	"time"
)

// NodePolicy configures execution behavior for a single node.
// Nodes without a policy use the engine-wide defaults from Options.
type NodePolicy struct {
	// Timeout is the maximum execution time allowed for this node.
	// Zero falls back to Options.DefaultNodeTimeout.
	Timeout time.Duration

	// RetryPolicy enables automatic retries for transient failures.
	// Nil means no retries.
	RetryPolicy *RetryPolicy
}

// RetryPolicy defines automatic retry behavior for transient node failures.
// Exponential backoff with jitter avoids synchronized retry storms against
// the inference server.
type RetryPolicy struct {
	// MaxAttempts is the total number of execution attempts, including the
	// first. Must be >= 1; 1 means no retries.
	MaxAttempts int

	// BaseDelay is the base delay for exponential backoff.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth. Zero means no cap.
	MaxDelay time.Duration

	// Retryable decides whether an error is worth retrying.
	// Nil means no error is retryable.
	Retryable func(error) bool
}

// Validate checks the policy's constraints.
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// computeBackoff returns the delay before the next retry:
// min(base * 2^attempt, maxDelay) + jitter(0, base).
func computeBackoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}

	delay := base * (1 << attempt)
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}

	// Jitter in [0, base) spreads out concurrent retries. Not
	// security-sensitive, math/rand is fine here.
	jitter := time.Duration(rand.Int63n(int64(base))) // #nosec G404

	return delay + jitter
}
