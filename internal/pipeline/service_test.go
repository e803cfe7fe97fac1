package pipeline

import (
	"context"
	"testing"
	"time"

	"ohlcbridge/internal/bridge"
	"ohlcbridge/internal/marketdata/agg"
	"ohlcbridge/internal/marketdata/quote"
	"ohlcbridge/internal/model"
	"ohlcbridge/internal/store/csvlog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, spread float64, sink model.BarSink) (*Service, *agg.Aggregator, *bridge.Bridge) {
	t.Helper()
	a := agg.New(sink, agg.WithTimeframes([]model.Timeframe{model.TF1s, model.TF5s}))
	b := bridge.New(bridge.DefaultCapacity)
	return New(a, quote.NewDeriver(spread), b, nil), a, b
}

func tick(typ model.EntryType, sym string, price float64, vol int64, sec int64) model.Tick {
	return model.Tick{Type: typ, Symbol: sym, Price: price, Volume: vol, ReceivedAt: time.Unix(sec, 0)}
}

func TestHandleTick_TradeFeedsBarsAndQuote(t *testing.T) {
	s, a, b := newService(t, quote.DefaultSpread, nil)
	s.HandleTick(tick(model.EntryTrade, "EURUSD", 1.0850, 1000, 1700000000))

	snap := a.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, 1.0850, snap[0].Bar.Close)
	assert.Equal(t, int64(1000), snap[0].Bar.Volume)

	ups := b.Drain()
	require.Len(t, ups, 1)
	assert.True(t, ups[0].HasBid && ups[0].HasAsk)
	assert.InDelta(t, 1.0849, ups[0].Bid, 1e-9)
	assert.InDelta(t, 1.0851, ups[0].Ask, 1e-9)
}

func TestHandleTick_BidOfferDoNotTouchBars(t *testing.T) {
	s, a, b := newService(t, quote.DefaultSpread, nil)
	s.HandleTick(tick(model.EntryBid, "GBPUSD", 1.2699, 0, 1700000000))
	s.HandleTick(tick(model.EntryOffer, "GBPUSD", 1.2701, 0, 1700000000))

	assert.Empty(t, a.Snapshot())
	cache := bridge.NewCache()
	assert.Equal(t, 2, b.DrainInto(cache))
	q, ok := cache.Get("GBPUSD")
	require.True(t, ok)
	assert.Equal(t, 1.2699, q.Bid)
	assert.Equal(t, 1.2701, q.Ask)
}

func TestHandleTick_SnapshotWithTrade(t *testing.T) {
	s, a, b := newService(t, 0, nil)
	tk := tick(model.EntrySnapshot, "USDJPY", 150.0, 10000, 1700000000)
	tk.Bid, tk.Ask = 149.98, 150.02
	s.HandleTick(tk)

	snap := a.Snapshot()
	require.Len(t, snap, 2)
	for _, ob := range snap {
		assert.Equal(t, int64(0), ob.Bar.Volume, ob.Timeframe.String())
		assert.Equal(t, 1, ob.Bar.TickCount)
		assert.Equal(t, 150.0, ob.Bar.Close)
	}
	ups := b.Drain()
	require.Len(t, ups, 1)
	assert.Equal(t, 149.98, ups[0].Bid)

	// Zero spread: trades produce no quote.
	s.HandleTick(tick(model.EntryTrade, "USDJPY", 150.01, 1, 1700000001))
	assert.Empty(t, b.Drain())
}

func TestHandleTick_StampsMissingArrivalTime(t *testing.T) {
	s, a, _ := newService(t, 0, nil)
	s.now = func() time.Time { return time.Unix(1700000003, 0) }
	var seen model.Tick
	s.OnTick = func(tk model.Tick) { seen = tk }

	s.HandleTick(model.Tick{Type: model.EntryTrade, Symbol: "EURUSD", Price: 1.1, Volume: 1})
	assert.Equal(t, int64(1700000003), seen.ReceivedAt.Unix())
	assert.Equal(t, int64(1700000000), a.Snapshot()[1].Bar.BucketStart.Unix())
}

// Ticks at 0.2s, 1.5s, 4.9s and 5.1s past a 5s boundary end up as one closed
// 5s bar on disk plus one open bar flushed at shutdown.
func TestPipeline_EndToEndCSV(t *testing.T) {
	store, err := csvlog.New(csvlog.Config{BaseDir: t.TempDir(), ClientID: "9"}, nil)
	require.NoError(t, err)
	s, a, _ := newService(t, quote.DefaultSpread, store)

	base := time.Unix(1700000000, 0)
	for _, p := range []struct {
		off   time.Duration
		price float64
		vol   int64
	}{
		{200 * time.Millisecond, 1.1000, 10},
		{1500 * time.Millisecond, 1.1010, 20},
		{4900 * time.Millisecond, 1.0990, 5},
		{5100 * time.Millisecond, 1.1005, 7},
	} {
		s.HandleTick(model.Tick{Type: model.EntryTrade, Symbol: "EURUSD", Price: p.price, Volume: p.vol, ReceivedAt: base.Add(p.off)})
	}
	a.Flush()

	bars, err := store.ReadBars("EURUSD", model.TF5s, 0)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, model.Bar{BucketStart: base.UTC(), Open: 1.1, High: 1.101, Low: 1.099, Close: 1.099, Volume: 35, TickCount: 3}, bars[0])
	assert.Equal(t, int64(1700000005), bars[1].BucketStart.Unix())
	assert.Equal(t, 1, bars[1].TickCount)
}

func TestRunStateLogger_StopsOnCancel(t *testing.T) {
	s, _, _ := newService(t, 0, nil)
	s.HandleTick(tick(model.EntryTrade, "EURUSD", 1.1, 1, 1700000000))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.RunStateLogger(ctx, 5*time.Millisecond) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.NoError(t, <-done)

	ctx2, cancel2 := context.WithCancel(context.Background())
	cancel2()
	assert.NoError(t, s.RunStateLogger(ctx2, 0))
}
