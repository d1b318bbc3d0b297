package workpool

import (
	"context"
	"fmt"

	"github.com/arcflow-dev/powerpool/internal/dispatcher"
	"github.com/arcflow-dev/powerpool/internal/events"
	"github.com/arcflow-dev/powerpool/internal/group"
	"github.com/arcflow-dev/powerpool/internal/monitor"
	"github.com/arcflow-dev/powerpool/internal/work"
)

// Pool is the canonical entry point onto a dispatcher: Submit work,
// Wait for it, group it, and optionally serve a monitor view over it.
type Pool struct {
	*dispatcher.Dispatcher
	bus        *events.Bus
	monitorSrv *monitor.Server
}

// New constructs a Pool ready to accept Submit calls. The returned Pool
// owns its worker goroutines until Stop is called.
func New(opts ...Option) (*Pool, error) {
	settings := defaultSettings()
	for _, opt := range opts {
		opt(settings)
	}

	bus := events.NewBus()
	d, err := dispatcher.New(settings.id, settings.pool, bus)
	if err != nil {
		return nil, fmt.Errorf("workpool: %w", err)
	}

	p := &Pool{Dispatcher: d, bus: bus}

	if settings.monitor != nil {
		p.monitorSrv = monitor.NewServer(*settings.monitor, d, bus)
	}

	return p, nil
}

// Submit enqueues body for execution and returns its assigned work id.
func (p *Pool) Submit(body work.Body, opts ...WorkOption) (string, error) {
	var o work.Options
	for _, opt := range opts {
		opt(&o)
	}
	return p.Dispatcher.Submit(body, o)
}

// Group returns a facade over every work submitted under the given
// Options.Group value.
func (p *Pool) Group(name string) *group.Group {
	return group.New(p.Dispatcher, name)
}

// Subscribe registers h against the pool's event bus (spec §6 Events)
// and returns a token for Unsubscribe.
func (p *Pool) Subscribe(h events.Handler) events.Subscription {
	return p.bus.Subscribe(h)
}

// Unsubscribe removes a previously registered event handler.
func (p *Pool) Unsubscribe(sub events.Subscription) {
	p.bus.Unsubscribe(sub)
}

// Monitor returns the optional HTTP/WebSocket server, or nil if the
// Pool was built without WithMonitor.
func (p *Pool) Monitor() *monitor.Server {
	return p.monitorSrv
}

// Stop halts the dispatcher and, if a monitor server is running, tears
// down its websocket hub too.
func (p *Pool) Stop(ctx context.Context) error {
	if p.monitorSrv != nil {
		p.monitorSrv.Stop()
	}
	return p.Dispatcher.Stop(ctx)
}
