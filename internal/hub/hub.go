// Package hub tracks live WebSocket connections and carries the
// broadcast fabric that links them. One Client exists per remote
// connection; each runs a read pump and a write pump, and forwards its
// fabric subscription into its own send queue.
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	pkglog "github.com/slatecast/slatecast/pkg/log"

	"github.com/slatecast/slatecast/internal/config"
	"github.com/slatecast/slatecast/internal/protocol"
)

// Connection lifecycle states, for diagnostics.
const (
	StateConnecting = "connecting"
	StateReady      = "ready"
	StateClosing    = "closing"
	StateClosed     = "closed"
)

// DisconnectHandler is called when a client disconnects.
type DisconnectHandler func(*Client)

// Client represents one connected WebSocket client.
type Client struct {
	ID   string
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte
	Sub  *Subscription

	mu                sync.Mutex
	state             string
	disconnectHandler DisconnectHandler
}

// Hub is the connection registry. It tracks live clients for
// diagnostics and owns the shared broadcast fabric.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	config     config.WebSocketConfig
	fabric     *Fabric
}

// NewHub creates a hub with its broadcast fabric.
func NewHub(wsCfg config.WebSocketConfig, bcCfg config.BroadcastConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		config:     wsCfg,
		fabric:     NewFabric(bcCfg.Buffer),
	}
}

// Run starts the hub's registration loop.
func (h *Hub) Run() {
	l := pkglog.L()
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			l.Info().Str(pkglog.FieldClientID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()
			l.Info().Str(pkglog.FieldClientID, client.ID).Msg("client unregistered")
		}
	}
}

// Register adds a client to the registry and attaches it to the fabric.
func (h *Hub) Register(client *Client) {
	client.Sub = h.fabric.Subscribe()
	h.register <- client
}

// Unregister removes a client and cancels its fabric subscription.
func (h *Hub) Unregister(client *Client) {
	if client.Sub != nil {
		client.Sub.Cancel()
	}
	h.unregister <- client
}

// Broadcast publishes an event on the fabric to every connection.
// Non-broadcast-worthy kinds are filtered inside the fabric.
func (h *Hub) Broadcast(ev protocol.Event) {
	h.fabric.Publish(ev)
}

// BroadcastFrom publishes an event to every connection except the
// originator, which already received it as its direct response.
func (h *Hub) BroadcastFrom(origin *Client, ev protocol.Event) {
	if origin == nil {
		h.fabric.Publish(ev)
		return
	}
	h.fabric.PublishExcept(ev, origin.Sub)
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ClientIDs returns the IDs of all live connections.
func (h *Hub) ClientIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// SetDisconnectHandler sets the handler to be called on disconnect.
func (c *Client) SetDisconnectHandler(handler DisconnectHandler) {
	c.disconnectHandler = handler
}

// SetState records the connection lifecycle state.
func (c *Client) SetState(state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

// State returns the connection lifecycle state.
func (c *Client) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SendEvent marshals an event and queues it on the client's send
// channel without blocking. A full queue means the write pump is wedged
// and the connection will be torn down by its own pumps shortly.
func (c *Client) SendEvent(ev protocol.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	select {
	case c.Send <- data:
	default:
	}
	return nil
}

// ReadPump pumps inbound messages from the WebSocket connection into
// the handler. It owns connection teardown: when the peer closes or the
// transport fails, the client is unregistered and both pumps end.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		c.SetState(StateClosing)
		if c.disconnectHandler != nil {
			c.disconnectHandler(c)
		}
		c.Hub.Unregister(c)
		c.Conn.Close()
		c.SetState(StateClosed)
	}()

	c.Conn.SetReadLimit(c.Hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				pkglog.L().Error().Err(err).Str(pkglog.FieldClientID, c.ID).Msg("websocket error")
			}
			return
		}

		handler(c, message)
	}
}

// WritePump pumps queued outbound messages and fabric broadcasts to the
// WebSocket connection, and keeps the connection alive with pings. The
// two sources are multiplexed in one select so neither blocks the
// other.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.Hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case message, ok := <-c.Sub.Events():
			if !ok {
				return
			}
			// A direct response queued before this broadcast was
			// published must reach the client first.
			if !c.drainSend() {
				return
			}
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drainSend flushes every already-queued direct message. It returns
// false when the connection is no longer writable.
func (c *Client) drainSend() bool {
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return false
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return false
			}
		default:
			return true
		}
	}
}
