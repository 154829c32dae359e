package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rajeshbanoth/backend-call/internal/signaling"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer (64KB covers large SDP blobs)
	maxMessageSize = 65536

	// Outbound buffer per connection; overflow drops the event
	sendBufferSize = 256
)

// Client represents a connected WebSocket client. It implements
// signaling.Channel so the session manager can address it directly.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	id     string
	mu     sync.RWMutex
	userID string
	closed atomic.Bool
	logger *slog.Logger
	cancel context.CancelFunc
}

// NewClient creates a new client with a transport-assigned id
func NewClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		id:     uuid.NewString(),
		logger: logger,
	}
}

// SetCancelFunc sets the context cancel function for cleanup
func (c *Client) SetCancelFunc(cancel context.CancelFunc) {
	c.cancel = cancel
}

// ID returns the transport-assigned connection id
func (c *Client) ID() string {
	return c.id
}

// UserID returns the bound user id, or "" when unbound
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// Bind sets or clears the bound user id
func (c *Client) Bind(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
}

// Send queues an event for delivery. It never blocks: a full buffer drops
// the event and the client recovers via user_ready or reconnection.
func (c *Client) Send(event string, payload any) error {
	msg, err := NewMessage(event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if c.closed.Load() {
		return nil
	}

	select {
	case c.send <- data:
	default:
		c.logger.Warn("client send buffer full, dropping event", "event", event, "user_id", c.UserID())
	}
	return nil
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	return c.conn.Close()
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.HandleDisconnect(c)
		_ = c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.logger.Warn("websocket read error", "error", err, "user_id", c.UserID())
				}
				return
			}

			var msg Message
			if err := json.Unmarshal(message, &msg); err != nil {
				c.sendError("invalid_message", "Failed to parse message")
				continue
			}

			c.hub.HandleMessage(c, &msg)
		}
	}
}

// WritePump pumps queued messages to the WebSocket connection. The send
// channel is never closed; the pump exits when the context is cancelled.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			// Add queued messages to the current websocket message
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

// sendError sends an error event to the client
func (c *Client) sendError(code, message string) {
	_ = c.Send(signaling.EventError, signaling.ErrorPayload{
		Code:    code,
		Message: message,
	})
}
