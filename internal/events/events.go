// Package events defines the dispatcher's observable event types and the
// in-process fan-out bus that delivers them to subscribers (spec §6
// Events). Where the teacher repo fans events out over Redis pub/sub to
// other processes, this library is embedded in a single process: the
// Bus is a plain subscriber list guarded by a mutex. Publish calls the
// subscribers one after another on the publishing goroutine, each under
// a recover, so one panicking handler cannot take down the dispatcher
// or keep the remaining subscribers from being called.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/arcflow-dev/powerpool/internal/logger"
)

// Type identifies the kind of event raised.
type Type string

const (
	PoolStart   Type = "pool.start"
	PoolIdle    Type = "pool.idle"
	PoolTimeout Type = "pool.timeout"

	WorkStart   Type = "work.start"
	WorkEnd     Type = "work.end"
	WorkTimeout Type = "work.timeout"
	WorkStop    Type = "work.stop"

	Error Type = "error"
)

// Event is the payload delivered to subscribers. Data carries
// event-specific fields (work id, result, error, status, queue/execute
// time, or the source+error pair for Error events).
type Event struct {
	Type      Type                   `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// New creates an Event stamped with the current time.
func New(t Type, data map[string]interface{}) *Event {
	return &Event{Type: t, Timestamp: time.Now().UTC(), Data: data}
}

// ToJSON serializes the event, e.g. for the monitor websocket feed.
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Handler receives events raised on the Bus. Publish runs handlers
// sequentially on the publisher's goroutine, so a Handler that blocks
// delays every handler after it and the publisher itself.
type Handler func(*Event)

// Bus fans events out to every subscribed Handler. The zero value is
// ready to use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	nextID   int
}

// NewBus returns a ready-to-use Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscription identifies a registered Handler so it can be removed.
type Subscription int

// Subscribe registers h and returns a token for Unsubscribe.
func (b *Bus) Subscribe(h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	return Subscription(id)
}

// Unsubscribe removes a previously registered Handler.
func (b *Bus) Unsubscribe(s Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, int(s))
}

// Publish delivers ev to every subscriber. Spec §6 requires that a
// subscriber's failure be reported via the Error event and never
// propagate; a panicking handler is recovered and, unless ev is itself
// an Error event (to avoid recursing on a broken Error subscriber),
// re-raised as one.
func (b *Bus) Publish(ev *Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.invoke(h, ev)
	}
}

func (b *Bus) invoke(h Handler, ev *Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Str("event_type", string(ev.Type)).
				Msg("event subscriber panicked")
			if ev.Type != Error {
				b.Publish(New(Error, map[string]interface{}{
					"source": "subscriber",
					"error":  r,
				}))
			}
		}
	}()
	h(ev)
}

// Count returns the number of currently registered subscribers.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
