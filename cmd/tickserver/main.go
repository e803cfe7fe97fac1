// cmd/tickserver: demo WebSocket FX feed.
// Serves simulated market-data entries for running ohlcbridge without a
// FIX session.
//
// Entry JSON shape is model.Tick:
//
//	{"type":"trade","symbol":"EURUSD","price":1.08512,"volume":25000}
//
// Every new client first receives one snapshot entry per symbol.
//
// Config (env vars):
//
//	TICK_SERVER_ADDR  listen address (default: ":9001")
//	TICK_SYMBOLS      comma-separated SYMBOL[:PRICE] (default: "EURUSD,GBPUSD,USDJPY")
//	TICK_INTERVAL_MS  generation interval milliseconds (default: "100")
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ohlcbridge/internal/marketdata/sim"

	"github.com/caarlos0/env/v11"
	"github.com/gorilla/websocket"
)

type config struct {
	Addr       string `env:"TICK_SERVER_ADDR" envDefault:":9001"`
	Symbols    string `env:"TICK_SYMBOLS" envDefault:"EURUSD,GBPUSD,USDJPY"`
	IntervalMS int    `env:"TICK_INTERVAL_MS" envDefault:"100"`
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client, drop entry
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub, gen *sim.Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[tickserver] upgrade error: %v", err)
			return
		}
		log.Printf("[tickserver] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[tickserver] client disconnected: %s", r.RemoteAddr)
		}()

		for _, tk := range gen.Snapshot() {
			b, _ := json.Marshal(tk)
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}

		// Write pump: sends entry JSON to this client.
		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Generator loop ───────────────────────────────────────────────────────────

func runGenerator(ctx context.Context, h *hub, gen *sim.Generator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, tk := range gen.Step() {
				b, err := json.Marshal(tk)
				if err != nil {
					continue
				}
				h.broadcast(b)
			}
		}
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[tickserver] starting demo FX feed...")

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("[tickserver] config: %v", err)
	}
	if cfg.IntervalMS <= 0 {
		log.Fatalf("[tickserver] TICK_INTERVAL_MS must be positive, got %d", cfg.IntervalMS)
	}

	instruments, err := sim.ParseInstruments(cfg.Symbols)
	if err != nil {
		log.Fatalf("[tickserver] %v", err)
	}
	log.Printf("[tickserver] instruments: %+v", instruments)
	log.Printf("[tickserver] generation interval: %dms", cfg.IntervalMS)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := newHub()
	gen := sim.NewGenerator(instruments, time.Now().UnixNano())
	go runGenerator(ctx, h, gen, time.Duration(cfg.IntervalMS)*time.Millisecond)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(h, gen))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"tickserver"}`)
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[tickserver] listening on %s  (WebSocket: ws://localhost%s/ws)", cfg.Addr, cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("[tickserver] server error: %v", err)
	}
	log.Println("[tickserver] stopped")
}
