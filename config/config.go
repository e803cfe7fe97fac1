package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"ohlcbridge/internal/model"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Identity: selects the OHLC_price_data_<ClientID> directory
	ClientID string `env:"CLIENT_ID" envDefault:"1"`

	// Feed and fan-out
	FeedURL             string  `env:"FEED_URL" envDefault:"ws://localhost:9001/ws"`
	WSAddr              string  `env:"WS_ADDR" envDefault:":9002"`
	BroadcastIntervalMS int     `env:"BROADCAST_INTERVAL_MS" envDefault:"1000"`
	QueueCapacity       int     `env:"QUEUE_CAPACITY" envDefault:"100"`
	SyntheticSpread     float64 `env:"SYNTHETIC_SPREAD" envDefault:"0.0001"`

	// Aggregation (comma-separated labels or seconds, e.g. "1s,1m,300"; empty = all)
	EnabledTFs       string        `env:"ENABLED_TFS"`
	StateLogInterval time.Duration `env:"STATE_LOG_INTERVAL" envDefault:"60s"`

	// Persistence
	DataDir       string `env:"DATA_DIR" envDefault:"."`
	SQLitePath    string `env:"SQLITE_PATH"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	PersistAsync  bool   `env:"PERSIST_ASYNC" envDefault:"false"`

	// Observability
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("config: CLIENT_ID must not be empty")
	}
	if c.BroadcastIntervalMS <= 0 {
		return fmt.Errorf("config: BROADCAST_INTERVAL_MS must be positive, got %d", c.BroadcastIntervalMS)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("config: QUEUE_CAPACITY must be positive, got %d", c.QueueCapacity)
	}
	if c.SyntheticSpread < 0 {
		return fmt.Errorf("config: SYNTHETIC_SPREAD must not be negative, got %g", c.SyntheticSpread)
	}
	return nil
}

// BroadcastInterval returns BroadcastIntervalMS as a duration.
func (c *Config) BroadcastInterval() time.Duration {
	return time.Duration(c.BroadcastIntervalMS) * time.Millisecond
}

// ParseTFs parses EnabledTFs into timeframes. Invalid entries are skipped;
// an empty or fully invalid list yields every timeframe.
func (c *Config) ParseTFs() []model.Timeframe {
	parts := strings.Split(c.EnabledTFs, ",")
	tfs := make([]model.Timeframe, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		tf, err := model.ParseTimeframe(p)
		if err != nil {
			log.Printf("[config] skipping invalid TF value: %q", p)
			continue
		}
		tfs = append(tfs, tf)
	}
	if len(tfs) == 0 {
		return model.AllTimeframes()
	}
	return tfs
}
