// Package pipeline wires one decoded feed entry through the bar aggregator
// and the quote bridge.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"ohlcbridge/internal/bridge"
	"ohlcbridge/internal/marketdata/agg"
	"ohlcbridge/internal/marketdata/quote"
	"ohlcbridge/internal/model"
)

// Service is the feed Handler. HandleTick must be called from a single
// goroutine; it never blocks on the broadcaster.
type Service struct {
	agg     *agg.Aggregator
	deriver *quote.Deriver
	bridge  *bridge.Bridge
	log     *slog.Logger
	now     func() time.Time

	// OnTick is called for every handled entry (optional, for metrics).
	OnTick func(t model.Tick)
}

// New creates a Service.
func New(a *agg.Aggregator, d *quote.Deriver, b *bridge.Bridge, l *slog.Logger) *Service {
	if l == nil {
		l = slog.Default()
	}
	return &Service{
		agg:     a,
		deriver: d,
		bridge:  b,
		log:     l.With(slog.String("component", "pipeline")),
		now:     time.Now,
	}
}

// HandleTick folds trades into the bars and pushes the derived quote, if any,
// onto the bridge.
func (s *Service) HandleTick(t model.Tick) {
	if t.ReceivedAt.IsZero() {
		t.ReceivedAt = s.now()
	}
	if s.OnTick != nil {
		s.OnTick(t)
	}

	if t.IsTrade() {
		s.agg.OnTick(t.Symbol, t.Price, tradeVolume(t), t.ReceivedAt)
	}
	if u, ok := s.deriver.Derive(t); ok {
		s.bridge.PushUpdate(u)
	}
}

// tradeVolume is the size a trade entry adds to its bars. A snapshot's last
// trade is a price reference only and carries no size.
func tradeVolume(t model.Tick) int64 {
	if t.Type == model.EntrySnapshot {
		return 0
	}
	return t.Volume
}

// RunStateLogger logs the open bars and queue state every interval until ctx
// is cancelled.
func (s *Service) RunStateLogger(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.agg.LogState()
			s.log.Info("bridge state",
				slog.Int("queued", s.bridge.Len()),
				slog.Int("capacity", s.bridge.Cap()),
				slog.Uint64("dropped", s.bridge.Dropped()))
		}
	}
}
