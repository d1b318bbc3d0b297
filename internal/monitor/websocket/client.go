// Package websocket streams dispatcher events to connected browsers
// over gorilla/websocket, the same hub/client/handler shape the teacher
// repo uses for its own live task feed, subscribing to an in-process
// events.Bus instead of Redis pub/sub.
package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/arcflow-dev/powerpool/internal/events"
	"github.com/arcflow-dev/powerpool/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 256
)

// Client is one connected monitor websocket.
type Client struct {
	ID            string
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[events.Type]bool
	subMu         sync.RWMutex
}

// NewClient wraps an upgraded connection in a Client with an empty
// subscription set (IsSubscribed treats an empty set as "everything").
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:            uuid.New().String()[:8],
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		subscriptions: make(map[events.Type]bool),
	}
}

func (c *Client) Subscribe(t events.Type) {
	c.subMu.Lock()
	c.subscriptions[t] = true
	c.subMu.Unlock()
}

func (c *Client) Unsubscribe(t events.Type) {
	c.subMu.Lock()
	delete(c.subscriptions, t)
	c.subMu.Unlock()
}

// IsSubscribed reports whether t should be delivered to this client. A
// client with no explicit subscriptions receives every event type.
func (c *Client) IsSubscribed(t events.Type) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if len(c.subscriptions) == 0 {
		return true
	}
	return c.subscriptions[t]
}

// ReadPump pumps client->server frames, which today are only
// subscription commands; it exits (and unregisters the client) as soon
// as the connection errors or closes.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error().Err(err).Str("client_id", c.ID).Msg("monitor websocket read error")
			}
			break
		}
		c.handleMessage(message)
	}
}

// WritePump drains the client's send channel to the socket and keeps
// the connection alive with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// clientMessage is the wire shape for subscription commands sent by
// the browser (subscribe/unsubscribe to a set of event types).
type clientMessage struct {
	Action     string   `json:"action"`
	EventTypes []string `json:"event_types,omitempty"`
}

func (c *Client) handleMessage(message []byte) {
	logger.Debug().
		Str("client_id", c.ID).
		Str("message", string(message)).
		Msg("received monitor client message")
}
