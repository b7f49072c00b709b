package bridge

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum inbound message size; crisis messages are short text.
	maxMessageSize = 8192
	// Outbound buffer per connection; a full buffer drops the client.
	sendBufferSize = 256
)

// Role distinguishes the two websocket surfaces.
type Role string

const (
	RoleClinician Role = "clinician"
	RoleUser      Role = "user"
)

// Client is one websocket connection attached to the bridge. All writes go
// through the buffered send channel and the single writePump goroutine.
type Client struct {
	bridge *Bridge
	conn   *websocket.Conn
	send   chan []byte

	role Role
	// id is the clinician ID for consoles and the session ID for users.
	id   string
	name string

	// sendMu serializes enqueue against closeSend so nothing writes to a
	// closed channel.
	sendMu sync.Mutex
	closed bool
}

// enqueue hands an event to the write pump. A slow client whose buffer is
// full gets disconnected rather than blocking the bridge.
func (c *Client) enqueue(ev Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		c.bridge.logger.Error("Failed to marshal event",
			zap.String("event_type", string(ev.Type)),
			zap.Error(err),
		)
		return false
	}

	c.sendMu.Lock()
	if c.closed {
		c.sendMu.Unlock()
		return false
	}
	select {
	case c.send <- data:
		c.sendMu.Unlock()
		return true
	default:
	}
	c.sendMu.Unlock()

	c.bridge.logger.Warn("Client send buffer full, dropping connection",
		zap.String("role", string(c.role)),
		zap.String("client_id", c.id),
	)
	c.bridge.unregister(c)
	return false
}

// closeSend shuts the outbound channel exactly once.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.sendMu.Unlock()
}

// readPump pumps inbound events from the websocket connection to the bridge.
func (c *Client) readPump() {
	defer func() {
		c.bridge.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.bridge.logger.Warn("Websocket read error",
					zap.String("role", string(c.role)),
					zap.String("client_id", c.id),
					zap.Error(err),
				)
			}
			break
		}

		var ev Event
		if err := json.Unmarshal(message, &ev); err != nil {
			c.enqueue(Event{Type: EventError, Body: "malformed event", At: time.Now()})
			continue
		}
		c.bridge.handleInbound(c, ev)
	}
}

// writePump pumps events from the send channel to the websocket connection
// and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
