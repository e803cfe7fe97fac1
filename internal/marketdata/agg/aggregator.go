// Package agg builds OHLCV bars for every configured timeframe from a stream
// of ticks. One tick updates one bar per timeframe; when a tick lands in a new
// bucket the previous bar is closed and handed to the BarSink.
package agg

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"ohlcbridge/internal/model"
)

// barState holds the open bar for one (symbol, timeframe) pair.
type barState struct {
	bar   model.Bar
	dirty bool // updated since it was last handed to the sink
}

// Aggregator owns the symbol × timeframe table of open bars.
// All access is serialized by a single mutex; persistence runs synchronously
// under that lock, so each (symbol, timeframe) log has exactly one writer.
type Aggregator struct {
	mu   sync.Mutex
	bars map[string]map[model.Timeframe]*barState

	tfs  []model.Timeframe
	sink model.BarSink
	log  *slog.Logger

	// Metrics hooks (optional, set externally). Called with the lock held.
	OnBarPersisted func(symbol string, tf model.Timeframe, bar model.Bar)
	OnPersistError func(symbol string, tf model.Timeframe, err error)
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithTimeframes restricts aggregation to the given timeframes.
// Unsupported values are ignored; an empty list keeps the default set.
func WithTimeframes(tfs []model.Timeframe) Option {
	return func(a *Aggregator) {
		valid := make([]model.Timeframe, 0, len(tfs))
		seen := make(map[model.Timeframe]bool, len(tfs))
		for _, tf := range tfs {
			if tf.Valid() && !seen[tf] {
				seen[tf] = true
				valid = append(valid, tf)
			}
		}
		if len(valid) > 0 {
			sort.Slice(valid, func(i, j int) bool { return valid[i] < valid[j] })
			a.tfs = valid
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.log = l }
}

// New creates an Aggregator that hands closed bars to sink.
func New(sink model.BarSink, opts ...Option) *Aggregator {
	a := &Aggregator{
		bars: make(map[string]map[model.Timeframe]*barState),
		tfs:  model.AllTimeframes(),
		sink: sink,
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With(slog.String("component", "agg"))
	return a
}

// Timeframes returns the enabled timeframes, shortest first.
func (a *Aggregator) Timeframes() []model.Timeframe {
	out := make([]model.Timeframe, len(a.tfs))
	copy(out, a.tfs)
	return out
}

// OnTick folds one tick into every timeframe. at is the time used for bucket
// alignment; the ingest path passes the arrival time.
func (a *Aggregator) OnTick(symbol string, price float64, volume int64, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	table, ok := a.bars[symbol]
	if !ok {
		table = make(map[model.Timeframe]*barState, len(a.tfs))
		a.bars[symbol] = table
	}

	for _, tf := range a.tfs {
		bucket := tf.Bucket(at)
		st := table[tf]

		if st != nil && !st.bar.BucketStart.Equal(bucket) {
			// Rollover: close the previous bar first
			if st.dirty && !st.bar.IsEmpty() {
				a.persist(symbol, tf, st.bar)
			}
			st = nil
		}

		if st == nil {
			st = &barState{bar: model.Bar{BucketStart: bucket}}
			table[tf] = st
		}

		st.bar.Update(price, volume)
		st.dirty = true
	}
}

// Flush persists every open bar that changed since it was last persisted.
// In-memory state is kept, so a later tick in the same bucket keeps
// accumulating. Returns the number of bars handed to the sink.
func (a *Aggregator) Flush() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for symbol, table := range a.bars {
		for tf, st := range table {
			if !st.dirty || st.bar.IsEmpty() {
				continue
			}
			a.persist(symbol, tf, st.bar)
			st.dirty = false
			n++
		}
	}
	if n > 0 {
		a.log.Info("flushed open bars", slog.Int("bars", n))
	}
	return n
}

// Snapshot returns a copy of every open bar, sorted by symbol then timeframe.
func (a *Aggregator) Snapshot() []model.OpenBar {
	a.mu.Lock()
	out := make([]model.OpenBar, 0, len(a.bars)*len(a.tfs))
	for symbol, table := range a.bars {
		for tf, st := range table {
			if st.bar.IsEmpty() {
				continue
			}
			out = append(out, model.OpenBar{Symbol: symbol, Timeframe: tf, Bar: st.bar})
		}
	}
	a.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Timeframe < out[j].Timeframe
	})
	return out
}

// LogState writes every open bar to the log at info level.
func (a *Aggregator) LogState() {
	snap := a.Snapshot()
	a.log.Info("current bar state", slog.Int("open_bars", len(snap)))
	for _, ob := range snap {
		a.log.Info("open bar",
			slog.String("symbol", ob.Symbol),
			slog.String("tf", ob.Timeframe.String()),
			slog.Int64("bucket", ob.Bar.BucketStart.Unix()),
			slog.Float64("open", ob.Bar.Open),
			slog.Float64("high", ob.Bar.High),
			slog.Float64("low", ob.Bar.Low),
			slog.Float64("close", ob.Bar.Close),
			slog.Int64("volume", ob.Bar.Volume),
			slog.Int("ticks", ob.Bar.TickCount),
		)
	}
}

// persist hands a bar to the sink. Failures are logged and swallowed: the
// bar is lost but aggregation continues. Caller holds a.mu.
func (a *Aggregator) persist(symbol string, tf model.Timeframe, bar model.Bar) {
	if a.sink == nil {
		return
	}
	if err := a.sink.Append(symbol, tf, bar); err != nil {
		a.log.Warn("bar persist failed",
			slog.String("symbol", symbol),
			slog.String("tf", tf.String()),
			slog.Int64("bucket", bar.BucketStart.Unix()),
			slog.Any("error", err),
		)
		if a.OnPersistError != nil {
			a.OnPersistError(symbol, tf, err)
		}
		return
	}
	if a.OnBarPersisted != nil {
		a.OnBarPersisted(symbol, tf, bar)
	}
}
