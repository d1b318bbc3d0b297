// Package workpool is the ergonomic front door onto the dispatcher,
// group, and monitor packages: construct a Pool, Submit work against
// it, and Wait for results, without touching internal/dispatcher or
// internal/group directly.
//
// # Basic usage
//
//	pool, err := workpool.New(workpool.WithMaxThreads(16))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Stop(context.Background())
//
//	id, err := pool.Submit(func(ctx context.Context) (any, error) {
//	    return doWork()
//	}, workpool.WithPriority(work.PriorityHighest))
//
//	if err := pool.Wait(context.Background(), id); err != nil {
//	    log.Fatal(err)
//	}
//
// # Groups
//
//	pool.Submit(body, workpool.WithGroup("batch-1"))
//	pool.Submit(body, workpool.WithGroup("batch-1"))
//	err := pool.Group("batch-1").Wait(context.Background())
//
// # Monitor
//
// Passing WithMonitor enables a read-only HTTP/WebSocket view over the
// pool; Monitor() returns nil until a monitor is configured.
package workpool
