package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ohlcbridge/config"
	"ohlcbridge/internal/bridge"
	"ohlcbridge/internal/gateway"
	"ohlcbridge/internal/logger"
	"ohlcbridge/internal/marketdata/agg"
	"ohlcbridge/internal/marketdata/feed"
	"ohlcbridge/internal/marketdata/quote"
	"ohlcbridge/internal/metrics"
	"ohlcbridge/internal/model"
	"ohlcbridge/internal/pipeline"
	"ohlcbridge/internal/store"
	"ohlcbridge/internal/store/csvlog"
	redisstore "ohlcbridge/internal/store/redis"
	sqlitestore "ohlcbridge/internal/store/sqlite"

	goredis "github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"
)

const asyncSinkCapacity = 4096

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[ohlcbridge] %v", err)
	}
	l := logger.Init("ohlcbridge", logger.ParseLevel(cfg.LogLevel))
	l.Info("starting", slog.String("client_id", cfg.ClientID), slog.String("feed", cfg.FeedURL))

	if err := run(cfg, l); err != nil {
		l.Error("exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	l.Info("shutdown complete")
}

func run(cfg *config.Config, l *slog.Logger) error {
	tfs := cfg.ParseTFs()
	labels := make([]string, len(tfs))
	for i, tf := range tfs {
		labels[i] = tf.String()
	}

	// ---- Metrics & health ----
	prom := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()
	health.SetEnabledTFs(labels)

	// ---- Bar stores ----
	csvStore, err := csvlog.New(csvlog.Config{BaseDir: cfg.DataDir, ClientID: cfg.ClientID}, l)
	if err != nil {
		return err
	}
	sinks := store.MultiSink{csvStore}

	var sqlDB *sql.DB
	var sqlWriter *sqlitestore.Writer
	if cfg.SQLitePath != "" {
		sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath, ClientID: cfg.ClientID}, l)
		if err != nil {
			return err
		}
		defer sqlWriter.Close()
		sqlWriter.OnCommit = func(d time.Duration) { prom.SQLiteCommitDur.Observe(d.Seconds()) }
		sqlDB = sqlWriter.DB()
		sinks = append(sinks, sqlWriter)
		health.EnableSQLite()
	}

	var rdb *goredis.Client
	var redisWriter *redisstore.Writer
	if cfg.RedisAddr != "" {
		redisWriter, err = redisstore.New(redisstore.WriterConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			ClientID: cfg.ClientID,
		}, l)
		if err != nil {
			l.Warn("redis init failed, continuing without redis", slog.Any("error", err))
		} else {
			defer redisWriter.Close()
			redisWriter.OnBreakerChange = func(_, to redisstore.State) {
				prom.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					prom.RedisCircuitBreakerTrips.Inc()
				}
			}
			rdb = redisWriter.Client()
			sinks = append(sinks, redisWriter)
			health.EnableRedis()
		}
	}

	var sink model.BarSink = sinks
	if len(sinks) == 1 {
		sink = csvStore
	}
	var async *store.AsyncSink
	if cfg.PersistAsync {
		async = store.NewAsyncSink(sink, asyncSinkCapacity, l)
		async.OnDrop = prom.AsyncDrops.Inc
		async.OnError = func(error) { prom.PersistFailures.Inc() }
		sink = async
		go async.Run(context.Background())
	}

	// ---- Aggregator ----
	aggregator := agg.New(sink, agg.WithTimeframes(tfs), agg.WithLogger(l))
	aggregator.OnBarPersisted = func(_ string, tf model.Timeframe, _ model.Bar) {
		prom.BarsPersisted.WithLabelValues(tf.String()).Inc()
	}
	aggregator.OnPersistError = func(_ string, _ model.Timeframe, _ error) {
		prom.PersistFailures.Inc()
	}

	// ---- Quote bridge & fan-out ----
	updates := bridge.New(cfg.QueueCapacity)
	updates.OnPush = prom.QuotesPushed.Inc
	updates.OnDrop = prom.BridgeDrops.Inc
	cache := bridge.NewCache()

	hub := gateway.NewHub(updates, cache, gateway.Config{BroadcastInterval: cfg.BroadcastInterval()}, l)
	hub.OnClientCount = func(n int) { prom.WSClients.Set(float64(n)) }
	hub.OnBroadcast = prom.BroadcastsTotal.Inc
	hub.OnClientDrop = prom.ClientDrops.Inc
	hub.OnCacheSize = func(n int) { prom.CacheSymbols.Set(float64(n)) }
	if redisWriter != nil {
		hub.Mirror = redisWriter
	}

	svc := pipeline.New(aggregator, quote.NewDeriver(cfg.SyntheticSpread), updates, l)
	svc.OnTick = func(t model.Tick) {
		prom.TicksTotal.WithLabelValues(string(t.Type)).Inc()
		health.SetLastTickTime(t.ReceivedAt)
	}

	// ---- Feed ingest ----
	ingest, err := feed.New(feed.Config{URL: cfg.FeedURL})
	if err != nil {
		return err
	}
	ingest.OnReconnect = prom.FeedReconnects.Inc
	ingest.OnSkip = prom.TicksSkipped.Inc
	ingest.OnConnect = func() { health.SetFeedConnected(true) }
	ingest.OnDisconnect = func() { health.SetFeedConnected(false) }

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, nil, aggregator)
	wsSrv := &http.Server{Addr: cfg.WSAddr, Handler: hub, ReadHeaderTimeout: 5 * time.Second}

	l.Info("pipeline ready",
		slog.Any("tfs", labels),
		slog.String("ws_addr", cfg.WSAddr),
		slog.String("bar_dir", csvStore.Dir()),
		slog.Bool("sqlite", sqlWriter != nil),
		slog.Bool("redis", redisWriter != nil),
		slog.Bool("async_persist", async != nil))

	// ---- Run until signal ----
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ingest.Run(gctx, svc) })
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return svc.RunStateLogger(gctx, cfg.StateLogInterval) })
	g.Go(func() error { return metricsSrv.Run(gctx) })
	g.Go(func() error { return metrics.RunHTTPServer(gctx, wsSrv) })
	if rdb != nil || sqlDB != nil {
		g.Go(func() error { return health.RunLivenessChecker(gctx, rdb, sqlDB, 10*time.Second) })
	}

	runErr := g.Wait()
	l.Info("shutting down, flushing open bars")

	// Every goroutine touching the aggregator has returned.
	n := aggregator.Flush()
	if async != nil {
		async.Close()
	}
	l.Info("flushed open bars", slog.Int("bars", n))
	return runErr
}
