package work

import (
	"math"
	"math/rand"
	"time"
)

// RetryStrategy controls how a retried work item is handed back to the
// worker: in place on the same worker goroutine, or requeued through the
// dispatcher so it can be rebalanced and re-prioritized.
type RetryStrategy int

const (
	// RetryImmediate re-runs the work on the same worker without
	// returning to the dispatcher's priority collection.
	RetryImmediate RetryStrategy = iota
	// RetryRequeue resubmits the work to the dispatcher with an
	// incremented execute count, letting it be rescheduled like any
	// other waiting work.
	RetryRequeue
)

func (s RetryStrategy) String() string {
	if s == RetryRequeue {
		return "requeue"
	}
	return "immediate"
}

// RetryOption is the per-work retry policy (spec §6 RetryOption).
type RetryOption struct {
	Max             int
	Strategy        RetryStrategy
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffFactor   float64
	JitterFactor    float64
}

// DefaultRetryOption returns a no-retry policy: Max == 0 means the work's
// first failure is final, matching the source's opt-in retry behavior.
func DefaultRetryOption() RetryOption {
	return RetryOption{
		Max:            0,
		Strategy:       RetryImmediate,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		JitterFactor:   0.1,
	}
}

// ShouldRetry reports whether attempt (0-indexed execute count already
// consumed) is still within the policy's budget.
func (r RetryOption) ShouldRetry(executeCount int) bool {
	return executeCount < r.Max
}

// Backoff returns the delay to wait before the given retry attempt
// (1-indexed: the first retry is attempt 1).
func (r RetryOption) Backoff(attempt int) time.Duration {
	if attempt <= 0 || r.InitialBackoff <= 0 {
		return r.InitialBackoff
	}

	backoff := float64(r.InitialBackoff) * math.Pow(r.backoffFactor(), float64(attempt-1))
	if max := float64(r.MaxBackoff); max > 0 && backoff > max {
		backoff = max
	}
	if r.JitterFactor > 0 {
		backoff += backoff * r.JitterFactor * (rand.Float64()*2 - 1)
	}
	if backoff < 0 {
		backoff = float64(r.InitialBackoff)
	}
	return time.Duration(backoff)
}

func (r RetryOption) backoffFactor() float64 {
	if r.BackoffFactor <= 0 {
		return 2.0
	}
	return r.BackoffFactor
}
