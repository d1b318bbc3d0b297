package workpool

import (
	"time"

	"github.com/arcflow-dev/powerpool/internal/config"
	"github.com/arcflow-dev/powerpool/internal/work"
)

// Option configures a Pool at construction time.
type Option func(*poolSettings)

type poolSettings struct {
	id      string
	pool    config.PoolOptions
	monitor *config.MonitorOptions
}

func defaultSettings() *poolSettings {
	return &poolSettings{
		id: "workpool",
		pool: config.PoolOptions{
			MaxThreads:    100,
			KeepAliveTime: 10 * time.Second,
		},
	}
}

// WithID names the pool, surfaced in its log lines and events.
func WithID(id string) Option {
	return func(s *poolSettings) { s.id = id }
}

// WithMaxThreads caps the number of worker goroutines acquireWorker may
// create (beyond this, new work balances onto existing workers).
func WithMaxThreads(n int) Option {
	return func(s *poolSettings) { s.pool.MaxThreads = n }
}

// WithMinThreads keeps at least n workers alive even when idle, never
// reclaiming them via the KeepAliveTime sweep.
func WithMinThreads(n int) Option {
	return func(s *poolSettings) { s.pool.MinThreads = n }
}

// WithKeepAliveTime sets how long an idle worker beyond MinThreads
// survives before the idle sweep disposes of it.
func WithKeepAliveTime(d time.Duration) Option {
	return func(s *poolSettings) { s.pool.KeepAliveTime = d }
}

// WithDefaultWorkTimeout applies to any Work that does not set its own
// per-work timeout.
func WithDefaultWorkTimeout(d time.Duration, forceStop bool) Option {
	return func(s *poolSettings) {
		s.pool.DefaultWorkTimeout = d
		s.pool.DefaultWorkForceStop = forceStop
	}
}

// WithStartSuspended constructs the pool paused: submitted work queues
// but nothing dispatches until Resume is called.
func WithStartSuspended() Option {
	return func(s *poolSettings) { s.pool.StartSuspended = true }
}

// WithDependencyReleasePredicate overrides the default "any terminal
// state releases its dependents" rule: pred is consulted with a
// finished prerequisite's terminal state, and its dependents are only
// released when pred returns true. Useful to require e.g. Succeeded
// before downstream work runs, instead of letting a Failed prerequisite
// still unblock it.
func WithDependencyReleasePredicate(pred func(work.State) bool) Option {
	return func(s *poolSettings) { s.pool.DependencyReleasePredicate = pred }
}

// WithMonitor enables the optional HTTP/WebSocket view described by
// cfg. Monitor() returns nil on a Pool built without this option.
func WithMonitor(cfg config.MonitorOptions) Option {
	return func(s *poolSettings) { s.monitor = &cfg }
}

// WorkOption configures a single Submit call.
type WorkOption func(*work.Options)

// WithPriority sets the work's scheduling weight.
func WithPriority(p work.Priority) WorkOption {
	return func(o *work.Options) { o.Priority = p }
}

// WithThreadPriority attaches a ThreadPriority hint to the work.
func WithThreadPriority(p work.ThreadPriority) WorkOption {
	return func(o *work.Options) { o.ThreadPriority = p }
}

// WithWorkTimeout bounds this work's own execution, overriding the
// pool's DefaultWorkTimeout.
func WithWorkTimeout(d time.Duration, forceStop bool) WorkOption {
	return func(o *work.Options) {
		o.Timeout = work.TimeoutOption{Duration: d, ForceStop: forceStop}
	}
}

// WithGroup tags the work with a group label for later Pool.Group
// lookups.
func WithGroup(name string) WorkOption {
	return func(o *work.Options) { o.Group = name }
}

// WithCustomID assigns the work's id instead of generating a uuid.
func WithCustomID(id string) WorkOption {
	return func(o *work.Options) { o.CustomWorkID = id }
}

// WithLongRunning marks the work as long-running, so acquiring a worker
// for it temporarily raises the pool's effective thread cap by one
// instead of counting against MaxThreads.
func WithLongRunning() WorkOption {
	return func(o *work.Options) { o.LongRunning = true }
}

// WithDependsOn lists prerequisite work ids: the submitted work will
// not be dispatched until every one of them reaches a terminal state.
func WithDependsOn(ids ...string) WorkOption {
	return func(o *work.Options) {
		if o.Dependents == nil {
			o.Dependents = make(map[string]struct{}, len(ids))
		}
		for _, id := range ids {
			o.Dependents[id] = struct{}{}
		}
	}
}

// WithRetry attaches a retry policy.
func WithRetry(r work.RetryOption) WorkOption {
	return func(o *work.Options) { o.Retry = r }
}

// WithCallback registers a function invoked exactly once each time an
// execution of the work reaches a terminal state, before WaitAll/Wait
// callers observe it. It is not invoked for work cancelled before it
// started.
func WithCallback(cb work.Callback) WorkOption {
	return func(o *work.Options) { o.Callback = cb }
}
