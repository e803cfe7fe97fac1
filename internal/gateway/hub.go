// Package gateway fans the latest-quote cache out to WebSocket subscribers.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"ohlcbridge/internal/bridge"
	"ohlcbridge/internal/logger"
	"ohlcbridge/internal/model"

	"github.com/gorilla/websocket"
)

const (
	DefaultDrainInterval     = 50 * time.Millisecond
	DefaultBroadcastInterval = time.Second
	defaultSendBuffer        = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// QuoteMirror receives the cache contents on every broadcast cycle
// (e.g. the Redis writer).
type QuoteMirror interface {
	PublishQuotes(ctx context.Context, quotes []model.Quote) error
}

// Config tunes the hub loops.
type Config struct {
	DrainInterval     time.Duration // bridge → cache, default 50ms
	BroadcastInterval time.Duration // cache → clients, default 1s
	SendBuffer        int           // per-client queued messages, default 256
}

// Hub owns the subscriber set. It drains the bridge into the cache and
// periodically emits every cached symbol to all clients.
type Hub struct {
	bridge *bridge.Bridge
	cache  *bridge.Cache
	cfg    Config
	log    *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool // set once Run has disconnected everyone

	// Optional
	Mirror        QuoteMirror
	OnClientCount func(n int)
	OnBroadcast   func()
	OnClientDrop  func()
	OnCacheSize   func(n int)

	now func() time.Time
}

// NewHub creates a hub reading from b and publishing cache.
func NewHub(b *bridge.Bridge, cache *bridge.Cache, cfg Config, l *slog.Logger) *Hub {
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = DefaultDrainInterval
	}
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = DefaultBroadcastInterval
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if l == nil {
		l = slog.Default()
	}
	return &Hub{
		bridge:  b,
		cache:   cache,
		cfg:     cfg,
		log:     l.With(slog.String("component", "gateway")),
		clients: make(map[*Client]struct{}),
		now:     time.Now,
	}
}

// ServeHTTP upgrades the request to a WebSocket subscriber.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", slog.Any("error", err))
		return
	}

	ctx := logger.WithSession(context.Background(), logger.NewSessionID(r.RemoteAddr, h.now()))
	c := &Client{
		conn: conn,
		send: make(chan []byte, h.cfg.SendBuffer),
		hub:  h,
		log:  logger.FromContext(ctx, h.log),
	}
	h.addClient(c)

	go c.writePump()
	go c.readPump()
}

// addClient queues the full snapshot for c and registers it under one lock,
// so no broadcast can reach c before its snapshot. After Run has returned the
// client is closed immediately instead.
func (h *Hub) addClient(c *Client) {
	now := h.now()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(c.send)
		c.log.Debug("hub closed, rejecting client")
		return
	}
	for _, q := range h.cache.Snapshot() {
		if !c.enqueue(EncodeQuote(q, now)) {
			h.clientDropped()
		}
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	c.log.Info("client connected", slog.Int("clients", n))
	h.clientCount(n)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	c.log.Info("client disconnected", slog.Int("clients", n))
	h.clientCount(n)
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run drives the drain and broadcast loops until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	drain := time.NewTicker(h.cfg.DrainInterval)
	defer drain.Stop()
	broadcast := time.NewTicker(h.cfg.BroadcastInterval)
	defer broadcast.Stop()

	h.log.Info("hub running",
		slog.Duration("drain_interval", h.cfg.DrainInterval),
		slog.Duration("broadcast_interval", h.cfg.BroadcastInterval))

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case <-drain.C:
			h.drainOnce()
		case <-broadcast.C:
			h.broadcastOnce(ctx)
		}
	}
}

// drainOnce merges everything queued on the bridge into the cache.
func (h *Hub) drainOnce() int {
	n := h.bridge.DrainInto(h.cache)
	if n > 0 && h.OnCacheSize != nil {
		h.OnCacheSize(h.cache.Len())
	}
	return n
}

// broadcastOnce emits every cached quote to every client, stamped with the
// emit time.
func (h *Hub) broadcastOnce(ctx context.Context) {
	quotes := h.cache.Snapshot()
	if len(quotes) == 0 {
		return
	}
	now := h.now()

	msgs := make([][]byte, len(quotes))
	for i, q := range quotes {
		msgs[i] = EncodeQuote(q, now)
	}

	h.mu.RLock()
	for c := range h.clients {
		for _, m := range msgs {
			if !c.enqueue(m) {
				h.clientDropped()
			}
		}
	}
	h.mu.RUnlock()

	if h.OnBroadcast != nil {
		h.OnBroadcast()
	}
	if h.Mirror != nil {
		if err := h.Mirror.PublishQuotes(ctx, quotes); err != nil {
			h.log.Debug("quote mirror failed", slog.Any("error", err))
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.clientCount(0)
}

func (h *Hub) clientDropped() {
	if h.OnClientDrop != nil {
		h.OnClientDrop()
	}
}

func (h *Hub) clientCount(n int) {
	if h.OnClientCount != nil {
		h.OnClientCount(n)
	}
}
