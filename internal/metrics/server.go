package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"ohlcbridge/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BarSource exposes the in-progress bars.
type BarSource interface {
	Snapshot() []model.OpenBar
}

// Server runs an HTTP server exposing /metrics, /healthz and /api/bars.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server. gatherer may be nil for the
// default registry; bars may be nil to omit /api/bars.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer, bars BarSource) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)
	if bars != nil {
		mux.HandleFunc("/api/bars", barsHandler(bars))
	}

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's mux (for tests).
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	log.Printf("[metrics] server listening on %s", s.addr)
	return RunHTTPServer(ctx, s.srv)
}

// RunHTTPServer runs srv until ctx is cancelled or it fails to listen, then
// shuts it down with a 5s grace period.
func RunHTTPServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// barsHandler serves the open-bar snapshot, optionally filtered by
// ?symbol=EURUSD and ?tf=1m.
func barsHandler(src BarSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
		var tf model.Timeframe
		if s := r.URL.Query().Get("tf"); s != "" {
			parsed, err := model.ParseTimeframe(s)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			tf = parsed
		}

		out := make([]model.OpenBar, 0)
		for _, ob := range src.Snapshot() {
			if symbol != "" && ob.Symbol != symbol {
				continue
			}
			if tf != 0 && ob.Timeframe != tf {
				continue
			}
			out = append(out, ob)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}
