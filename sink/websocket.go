package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/0xmhha/bridge-listener/types/bridge"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	clientBufferSize = 64
)

// MessageTypeAction tags action messages on the stream
const MessageTypeAction = "action"

// Message is the envelope written to subscribers
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub maintains the set of stream subscribers and broadcasts messages to them
type Hub struct {
	clients map[*wsClient]struct{}
	mu      sync.RWMutex

	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte

	done     chan struct{}
	stopOnce sync.Once

	logger *zap.Logger
}

// NewHub creates a new Hub with the given broadcast buffer
func NewHub(bufferSize int, logger *zap.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*wsClient]struct{}),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan []byte, bufferSize),
		done:       make(chan struct{}),
		logger:     logger.Named("websocket"),
	}
}

// Run runs the hub until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client registered", zap.Int("total_clients", total))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client unregistered", zap.Int("total_clients", total))

		case msg := <-h.broadcast:
			h.broadcastMessage(msg)

		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			h.logger.Info("hub stopped")
			return
		}
	}
}

func (h *Hub) broadcastMessage(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for c := range h.clients {
		select {
		case c.send <- msg:
			sent++
		default:
			// Client buffer full, close the connection
			h.logger.Warn("client buffer full, closing connection")
			close(c.send)
			delete(h.clients, c)
		}
	}

	h.logger.Debug("message broadcasted", zap.Int("recipients", sent))
}

// Broadcast queues msg for every subscriber. It reports false when the hub
// is stopped or its buffer is full; the message is dropped in both cases.
func (h *Hub) Broadcast(msg []byte) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.broadcast <- msg:
		return true
	default:
		h.logger.Warn("broadcast channel full, dropping message")
		return false
	}
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stopped reports whether Stop has been called
func (h *Hub) Stopped() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Stop stops the hub and closes all subscriber connections
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// ServeHTTP upgrades the request and registers the connection as a subscriber
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	c := &wsClient{hub: h, conn: conn, send: make(chan []byte, clientBufferSize)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()

	h.logger.Info("new websocket connection", zap.String("remote_addr", r.RemoteAddr))
}

// wsClient is one subscriber connection
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// readPump discards inbound messages and detects disconnects
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump writes queued messages and keeps the connection alive
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// WebSocketSink streams actions to the hub's subscribers. Delivery is best
// effort: a full buffer drops the message without failing the dispatch.
type WebSocketSink struct {
	hub *Hub
}

// NewWebSocketSink creates a sink on hub
func NewWebSocketSink(hub *Hub) *WebSocketSink {
	return &WebSocketSink{hub: hub}
}

// Dispatch broadcasts the action to current subscribers
func (s *WebSocketSink) Dispatch(ctx context.Context, action bridge.Action) error {
	if s.hub.Stopped() {
		return ErrClosed
	}

	payload, err := encodeAction(action)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(Message{Type: MessageTypeAction, Payload: payload})
	if err != nil {
		return err
	}

	s.hub.Broadcast(msg)
	return nil
}

// Close is a no-op; the hub is stopped by its owner
func (s *WebSocketSink) Close() error { return nil }
