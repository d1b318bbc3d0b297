package websocket

import (
	"context"
	"sync"

	"github.com/arcflow-dev/powerpool/internal/events"
	"github.com/arcflow-dev/powerpool/internal/logger"
	"github.com/arcflow-dev/powerpool/internal/metrics"
)

// Hub fans dispatcher events out to every connected monitor client.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *events.Event
	register   chan *Client
	unregister chan *Client
	bus        *events.Bus
	sub        events.Subscription
	mu         sync.RWMutex
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// NewHub creates a Hub that will subscribe to bus once Run is called.
func NewHub(bus *events.Bus) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *events.Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		bus:        bus,
		stopCh:     make(chan struct{}),
	}
}

// Run subscribes to the event bus and starts the hub's dispatch loop.
// It returns once the loop goroutine has started; the loop itself runs
// until ctx is done or Stop is called.
func (h *Hub) Run(ctx context.Context) {
	h.sub = h.bus.Subscribe(func(e *events.Event) {
		select {
		case h.broadcast <- e:
		default:
			logger.Warn().Msg("monitor broadcast channel full, dropping event")
		}
	})

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case <-ctx.Done():
				h.closeAllClients()
				return
			case <-h.stopCh:
				h.closeAllClients()
				return
			case client := <-h.register:
				h.mu.Lock()
				h.clients[client] = true
				h.mu.Unlock()
				metrics.SetWebSocketConnections(float64(h.ClientCount()))
				logger.Debug().Str("client_id", client.ID).Msg("monitor client registered")

			case client := <-h.unregister:
				h.mu.Lock()
				if _, ok := h.clients[client]; ok {
					delete(h.clients, client)
					close(client.send)
				}
				h.mu.Unlock()
				metrics.SetWebSocketConnections(float64(h.ClientCount()))
				logger.Debug().Str("client_id", client.ID).Msg("monitor client unregistered")

			case event := <-h.broadcast:
				h.broadcastEvent(event)
			}
		}
	}()

	logger.Info().Msg("monitor websocket hub started")
}

// Stop unsubscribes from the event bus and tears down every connection.
func (h *Hub) Stop() {
	h.bus.Unsubscribe(h.sub)
	close(h.stopCh)
	h.wg.Wait()
	logger.Info().Msg("monitor websocket hub stopped")
}

func (h *Hub) Register(client *Client)   { h.register <- client }
func (h *Hub) Unregister(client *Client) { h.unregister <- client }

// Broadcast injects an event directly, bypassing the bus subscription;
// mainly useful for tests.
func (h *Hub) Broadcast(event *events.Event) {
	select {
	case h.broadcast <- event:
	default:
		logger.Warn().Msg("monitor broadcast channel full, dropping event")
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcastEvent(event *events.Event) {
	data, err := event.ToJSON()
	if err != nil {
		logger.Error().Err(err).Msg("failed to serialize event for monitor broadcast")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if !client.IsSubscribed(event.Type) {
			continue
		}
		select {
		case client.send <- data:
			metrics.RecordWebSocketMessage(string(event.Type))
		default:
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}
