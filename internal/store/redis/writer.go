package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"ohlcbridge/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: ~3h of 1s bars + buffer
	defaultStreamMaxLen = 12000
	defaultQuoteTTL     = 30 * time.Minute
	defaultOpTimeout    = 2 * time.Second
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	ClientID string

	StreamMaxLen     int64         // 0 → defaultStreamMaxLen
	OpTimeout        time.Duration // per-append deadline, 0 → defaultOpTimeout
	BreakerThreshold int           // consecutive failures before opening, 0 → 5
	BreakerCoolDown  time.Duration // 0 → 10s
}

// Writer mirrors closed bars into Redis streams and pub/sub channels.
// It satisfies model.BarSink.
type Writer struct {
	client    *goredis.Client
	clientID  string
	maxLen    int64
	opTimeout time.Duration
	breaker   *Breaker
	log       *slog.Logger

	// OnBreakerChange observes circuit breaker transitions (optional, for metrics).
	OnBreakerChange func(from, to State)
}

// StreamKey is the stream a closed bar is appended to.
func StreamKey(symbol string, tf model.Timeframe) string {
	return fmt.Sprintf("bar:%s:%s", tf, symbol)
}

// ChannelKey is the pub/sub channel a closed bar is published on.
func ChannelKey(symbol string, tf model.Timeframe) string {
	return "pub:" + StreamKey(symbol, tf)
}

// QuoteKey holds the latest quote for a symbol.
func QuoteKey(symbol string) string { return "quote:latest:" + symbol }

// New creates a Writer and pings the server.
func New(cfg WriterConfig, logger *slog.Logger) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	w := NewWithClient(client, cfg, logger)
	w.log.Info("connected", slog.String("addr", cfg.Addr))
	return w, nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg WriterConfig, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StreamMaxLen <= 0 {
		cfg.StreamMaxLen = defaultStreamMaxLen
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = defaultOpTimeout
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerCoolDown <= 0 {
		cfg.BreakerCoolDown = 10 * time.Second
	}

	w := &Writer{
		client:    client,
		clientID:  cfg.ClientID,
		maxLen:    cfg.StreamMaxLen,
		opTimeout: cfg.OpTimeout,
		breaker:   NewBreaker(cfg.BreakerThreshold, cfg.BreakerCoolDown),
		log:       logger.With(slog.String("component", "redis")),
	}
	w.breaker.OnStateChange = func(from, to State) {
		w.log.Warn("circuit breaker state change",
			slog.String("from", from.String()), slog.String("to", to.String()))
		if w.OnBreakerChange != nil {
			w.OnBreakerChange(from, to)
		}
	}
	return w
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// Breaker exposes the writer's circuit breaker.
func (w *Writer) Breaker() *Breaker { return w.breaker }

// Append writes one closed bar: XADD to its stream and PUBLISH on its channel,
// pipelined. Fails fast with ErrCircuitOpen while the breaker is open.
func (w *Writer) Append(symbol string, tf model.Timeframe, bar model.Bar) error {
	payload, err := json.Marshal(barMessage{
		ClientID: w.clientID,
		Symbol:   symbol,
		TF:       tf.String(),
		Bar:      bar,
	})
	if err != nil {
		return fmt.Errorf("redis encode bar: %w", err)
	}

	return w.breaker.Do(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), w.opTimeout)
		defer cancel()

		pipe := w.client.Pipeline()
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: StreamKey(symbol, tf),
			MaxLen: w.maxLen,
			Approx: true,
			Values: streamValues(w.clientID, bar),
		})
		pipe.Publish(ctx, ChannelKey(symbol, tf), payload)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis append %s %s: %w", symbol, tf, err)
		}
		return nil
	})
}

// PublishQuotes stores the latest value of each quote under quote:latest:<SYMBOL>.
func (w *Writer) PublishQuotes(ctx context.Context, quotes []model.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	return w.breaker.Do(func() error {
		pipe := w.client.Pipeline()
		for _, q := range quotes {
			b, err := json.Marshal(quoteMessage{
				Symbol:    q.Symbol,
				Bid:       q.WireBid(),
				Ask:       q.WireAsk(),
				Timestamp: q.UpdatedAt.Unix(),
			})
			if err != nil {
				return fmt.Errorf("redis encode quote: %w", err)
			}
			pipe.Set(ctx, QuoteKey(q.Symbol), b, defaultQuoteTTL)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis publish quotes: %w", err)
		}
		return nil
	})
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}

type barMessage struct {
	ClientID string `json:"client_id,omitempty"`
	Symbol   string `json:"symbol"`
	TF       string `json:"tf"`
	model.Bar
}

type quoteMessage struct {
	Symbol    string  `json:"symbol"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Timestamp int64   `json:"timestamp"`
}

func streamValues(clientID string, bar model.Bar) map[string]interface{} {
	return map[string]interface{}{
		"client_id": clientID,
		"ts":        bar.BucketStart.Unix(),
		"open":      strconv.FormatFloat(bar.Open, 'f', -1, 64),
		"high":      strconv.FormatFloat(bar.High, 'f', -1, 64),
		"low":       strconv.FormatFloat(bar.Low, 'f', -1, 64),
		"close":     strconv.FormatFloat(bar.Close, 'f', -1, 64),
		"volume":    bar.Volume,
		"ticks":     bar.TickCount,
	}
}
