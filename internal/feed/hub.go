package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matthewbaird/civicpulse/internal/event"
	"github.com/matthewbaird/civicpulse/internal/types"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

// SnapshotFunc produces the metrics pushed to clients.
type SnapshotFunc func() (types.MetricsSnapshot, error)

// Hub tracks connected clients and fans messages out to them. Slow clients
// lose messages rather than stall the publisher.
type Hub struct {
	snapshot SnapshotFunc
	interval time.Duration
	logger   *zap.Logger
	onCount  func(int)

	mu      sync.RWMutex
	clients map[string]*client
}

type client struct {
	id     string
	conn   *websocket.Conn
	send   chan ServerMessage
	cancel context.CancelFunc

	mu         sync.Mutex
	categories map[string]bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option { return func(h *Hub) { h.logger = l } }

// WithClientGauge is called with the connection count whenever it changes.
func WithClientGauge(fn func(int)) Option { return func(h *Hub) { h.onCount = fn } }

// NewHub creates a hub that pushes a fresh snapshot every interval. A zero
// interval disables periodic pushes; clients can still ask for one.
func NewHub(snapshot SnapshotFunc, interval time.Duration, opts ...Option) *Hub {
	h := &Hub{
		snapshot: snapshot,
		interval: interval,
		logger:   zap.NewNop(),
		onCount:  func(int) {},
		clients:  make(map[string]*client),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades to WebSocket and runs the message loop.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &client{
		id:     uuid.New().String(),
		conn:   conn,
		send:   make(chan ServerMessage, sendBuffer),
		cancel: cancel,
	}
	h.register(c)
	defer h.unregister(c)

	go h.writeLoop(ctx, c)

	h.enqueue(c, ServerMessage{Type: "hello", Data: HelloData{ClientID: c.id}})
	h.pushSnapshot(c, "")

	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				h.logger.Debug("feed client closed", zap.String("client_id", c.id), zap.Int("status", int(status)))
			}
			return
		}

		switch msg.Type {
		case "subscribe":
			h.handleSubscribe(c, msg)
		case "snapshot":
			h.pushSnapshot(c, msg.ID)
		case "ping":
			h.enqueue(c, ServerMessage{Type: "pong", RequestID: msg.ID})
		default:
			h.sendError(c, msg.ID, "unknown_type", fmt.Sprintf("unknown message type: %s", msg.Type))
		}
	}
}

func (h *Hub) handleSubscribe(c *client, msg ClientMessage) {
	var data SubscribeData
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			h.sendError(c, msg.ID, "invalid_data", "invalid subscribe data")
			return
		}
	}

	set := make(map[string]bool, len(data.Categories))
	names := make([]string, 0, len(data.Categories))
	for _, cat := range data.Categories {
		cat = strings.ToLower(strings.TrimSpace(cat))
		if cat != "" && !set[cat] {
			set[cat] = true
			names = append(names, cat)
		}
	}
	sort.Strings(names)

	c.mu.Lock()
	c.categories = set
	c.mu.Unlock()

	h.enqueue(c, ServerMessage{Type: "subscribed", RequestID: msg.ID, Data: SubscribedData{Categories: names}})
}

// HandleEvent broadcasts a domain event. It is subscribed to the event bus.
func (h *Hub) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	h.broadcast(ServerMessage{Type: "event", Data: evt}, evt.Category)
	return nil
}

// Run pushes periodic metric snapshots until ctx ends, then disconnects
// every client.
func (h *Hub) Run(ctx context.Context) error {
	defer h.closeAll()

	if h.interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if h.Clients() == 0 {
				continue
			}
			snap, err := h.snapshot()
			if err != nil {
				h.logger.Error("metrics snapshot failed", zap.Error(err))
				continue
			}
			h.broadcast(ServerMessage{Type: "metrics", Data: snap}, "")
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.onCount(n)
	h.logger.Debug("feed client connected", zap.String("client_id", c.id), zap.Int("clients", n))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	n := len(h.clients)
	h.mu.Unlock()
	h.onCount(n)
	h.logger.Debug("feed client disconnected", zap.String("client_id", c.id), zap.Int("clients", n))
}

// broadcast enqueues msg for every client. An empty category reaches
// everyone regardless of subscription.
func (h *Hub) broadcast(msg ServerMessage, category string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if category == "" || c.accepts(category) {
			h.enqueue(c, msg)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		go c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) pushSnapshot(c *client, requestID string) {
	snap, err := h.snapshot()
	if err != nil {
		h.logger.Error("metrics snapshot failed", zap.Error(err))
		h.sendError(c, requestID, "snapshot_failed", err.Error())
		return
	}
	h.enqueue(c, ServerMessage{Type: "metrics", RequestID: requestID, Data: snap})
}

func (h *Hub) sendError(c *client, requestID, code, message string) {
	h.enqueue(c, ServerMessage{
		Type:      "error",
		RequestID: requestID,
		Data:      ErrorData{Code: code, Message: message},
	})
}

func (h *Hub) enqueue(c *client, msg ServerMessage) {
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("feed client too slow, message dropped",
			zap.String("client_id", c.id),
			zap.String("type", msg.Type),
		)
	}
}

func (h *Hub) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.conn, msg)
			cancel()
			if err != nil {
				h.logger.Debug("feed write failed", zap.String("client_id", c.id), zap.Error(err))
				c.cancel()
				return
			}
		}
	}
}

func (c *client) accepts(category string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.categories) == 0 || c.categories[category]
}
