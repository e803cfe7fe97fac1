package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the bridge.
type Metrics struct {
	TicksTotal     *prometheus.CounterVec // labels: type
	TicksSkipped   prometheus.Counter
	FeedReconnects prometheus.Counter

	// Aggregation / persistence
	BarsPersisted   *prometheus.CounterVec // labels: tf
	PersistFailures prometheus.Counter
	AsyncDrops      prometheus.Counter
	SQLiteCommitDur prometheus.Histogram

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// Quote bridge
	QuotesPushed prometheus.Counter
	BridgeDrops  prometheus.Counter
	CacheSymbols prometheus.Gauge

	// Fan-out
	WSClients       prometheus.Gauge
	BroadcastsTotal prometheus.Counter
	ClientDrops     prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ohlcbridge_ticks_total",
			Help: "Market data entries received from the feed (by entry type)",
		}, []string{"type"}),
		TicksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ohlcbridge_ticks_skipped_total",
			Help: "Feed messages skipped (malformed, unknown type or empty symbol)",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ohlcbridge_feed_reconnects_total",
			Help: "Total feed WebSocket reconnection attempts",
		}),

		BarsPersisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ohlcbridge_bars_persisted_total",
			Help: "Bars handed to the bar sink (by timeframe)",
		}, []string{"tf"}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ohlcbridge_persist_failures_total",
			Help: "Bar sink append failures",
		}),
		AsyncDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ohlcbridge_async_sink_drops_total",
			Help: "Bars dropped because the async sink queue was full",
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ohlcbridge_sqlite_commit_duration_seconds",
			Help:    "SQLite bar insert latency",
			Buckets: prometheus.DefBuckets,
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ohlcbridge_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ohlcbridge_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		QuotesPushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ohlcbridge_quotes_pushed_total",
			Help: "Quote updates pushed onto the bridge queue",
		}),
		BridgeDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ohlcbridge_bridge_drops_total",
			Help: "Quote updates evicted from the full bridge queue",
		}),
		CacheSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ohlcbridge_quote_cache_symbols",
			Help: "Symbols currently held in the quote cache",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ohlcbridge_ws_clients",
			Help: "Connected WebSocket subscribers",
		}),
		BroadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ohlcbridge_broadcasts_total",
			Help: "Broadcast cycles that emitted the quote cache",
		}),
		ClientDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ohlcbridge_client_drops_total",
			Help: "Messages dropped for slow WebSocket subscribers",
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.TicksSkipped,
		m.FeedReconnects,
		m.BarsPersisted,
		m.PersistFailures,
		m.AsyncDrops,
		m.SQLiteCommitDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.QuotesPushed,
		m.BridgeDrops,
		m.CacheSymbols,
		m.WSClients,
		m.BroadcastsTotal,
		m.ClientDrops,
	)

	return m
}
