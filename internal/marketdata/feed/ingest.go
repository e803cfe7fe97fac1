// Package feed provides the WebSocket ingest client that connects to a
// decoded market-data feed (e.g. cmd/tickserver) and hands each entry to
// a Handler.
//
// The expected JSON message format on the wire is model.Tick:
//
//	{"type":"trade","symbol":"EURUSD","price":1.08512,"volume":25000}
//	{"type":"bid","symbol":"EURUSD","price":1.08510}
//	{"type":"snapshot","symbol":"EURUSD","bid":1.08492,"ask":1.08532,"price":1.08512}
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"time"

	"ohlcbridge/internal/model"

	"github.com/gorilla/websocket"
)

// Handler consumes decoded entries. HandleTick is called sequentially from
// the ingest goroutine.
type Handler interface {
	HandleTick(t model.Tick)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(t model.Tick)

func (f HandlerFunc) HandleTick(t model.Tick) { f(t) }

// Config holds configuration for the feed ingest.
type Config struct {
	// URL of the feed WebSocket server, e.g. "ws://localhost:9001/ws"
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Ingest reads the feed and stamps every entry with its arrival time.
type Ingest struct {
	cfg Config
	now func() time.Time

	// Optional hooks
	OnReconnect  func()
	OnConnect    func()
	OnDisconnect func()
	OnSkip       func()
}

// New creates a new Ingest. Returns an error if the URL is unparseable.
func New(cfg Config) (*Ingest, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("feed url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("feed url: unsupported scheme %q", u.Scheme)
	}
	return &Ingest{cfg: cfg, now: time.Now}, nil
}

// Run connects to the feed and streams entries into h.
// Blocks until ctx is cancelled. Reconnects automatically on disconnect.
func (ing *Ingest) Run(ctx context.Context, h Handler) error {
	delay := ing.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		connected, err := ing.runOnce(ctx, h)
		if err == nil {
			return nil
		}
		if connected {
			delay = ing.cfg.ReconnectDelay
		}

		log.Printf("[feed] disconnected (%v), reconnecting in %s...", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		// Exponential backoff
		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or
// ctx cancel. A nil error means ctx was cancelled.
func (ing *Ingest) runOnce(ctx context.Context, h Handler) (connected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return false, err
	}
	defer conn.Close()

	log.Printf("[feed] connected to %s", ing.cfg.URL)
	if ing.OnConnect != nil {
		ing.OnConnect()
	}
	defer func() {
		if ing.OnDisconnect != nil {
			ing.OnDisconnect()
		}
	}()

	// Close the connection when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, err
		}

		tick, ok := ing.decode(raw)
		if !ok {
			if ing.OnSkip != nil {
				ing.OnSkip()
			}
			continue
		}
		h.HandleTick(tick)
	}
}

func (ing *Ingest) decode(raw []byte) (model.Tick, bool) {
	var tick model.Tick
	if err := json.Unmarshal(raw, &tick); err != nil {
		log.Printf("[feed] parse error: %v (raw: %s)", err, raw)
		return tick, false
	}
	if !tick.Type.Valid() {
		log.Printf("[feed] skipping entry with unknown type %q", tick.Type)
		return tick, false
	}
	if tick.Symbol == "" {
		log.Printf("[feed] skipping entry with empty symbol")
		return tick, false
	}
	tick.ReceivedAt = ing.now()
	return tick, true
}
