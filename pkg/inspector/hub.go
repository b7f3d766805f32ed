package inspector

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/vango-dev/reactor/pkg/reactive"
)

// MessageType identifies a WebSocket message.
type MessageType string

const (
	MessageHello MessageType = "hello"
	MessageEvent MessageType = "event"
	MessageGraph MessageType = "graph"
)

// Message is sent to WebSocket clients.
type Message struct {
	Type     MessageType             `json:"type"`
	ClientID string                  `json:"clientId,omitempty"`
	Event    *Event                  `json:"event,omitempty"`
	Graph    *reactive.GraphSnapshot `json:"graph,omitempty"`
}

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

type client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	once    sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// hub fans messages out to WebSocket clients.
type hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	limit    rate.Limit
	burst    int

	mu      sync.RWMutex
	clients map[*client]struct{}
	dropped atomic.Uint64
}

func newHub(logger *slog.Logger, perSecond float64, burst int) *hub {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &hub{
		logger:  logger,
		limit:   limit,
		burst:   burst,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // local tooling
			},
		},
	}
}

func (ins *Inspector) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	h := ins.hub
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		limiter: rate.NewLimiter(h.limit, h.burst),
	}

	// Hello and the current graph bypass the limiter.
	hello, _ := json.Marshal(Message{Type: MessageHello, ClientID: c.id})
	c.send <- hello
	graph := ins.Graph()
	if data, err := json.Marshal(Message{Type: MessageGraph, Graph: &graph}); err == nil {
		c.send <- data
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("inspector client connected", "client", c.id)

	go h.writeLoop(c)

	// Keep connection alive until client disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(c)
	h.logger.Debug("inspector client disconnected", "client", c.id)
}

func (h *hub) writeLoop(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(c)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

// broadcast sends a message to all connected clients without blocking.
// Sends happen under the read lock so remove cannot close a channel
// mid-send.
func (h *hub) broadcast(msg Message) {
	if h.count() == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("inspector message encode failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.limiter.Allow() {
			h.dropped.Add(1)
			continue
		}
		select {
		case c.send <- data:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
	}
	h.clients = make(map[*client]struct{})
}
