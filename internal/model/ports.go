package model

// ── Storage Port Interfaces ──
// These interfaces decouple the aggregator from concrete bar stores
// (CSV log, SQLite, Redis). Each store satisfies BarSink.

// BarSink persists closed bars. Implementations must be safe for concurrent
// Append calls on disjoint (symbol, timeframe) pairs.
type BarSink interface {
	// Append writes one closed bar. An error means the bar was not stored;
	// callers treat persistence as best-effort and do not retry.
	Append(symbol string, tf Timeframe, bar Bar) error
}

// BarReader reads persisted bars back for inspection and tests.
type BarReader interface {
	// ReadBars returns bars for (symbol, tf) with bucket start > afterTS, ascending.
	ReadBars(symbol string, tf Timeframe, afterTS int64) ([]Bar, error)
}

// BarSinkFunc adapts a function to BarSink.
type BarSinkFunc func(symbol string, tf Timeframe, bar Bar) error

// Append calls f.
func (f BarSinkFunc) Append(symbol string, tf Timeframe, bar Bar) error {
	return f(symbol, tf, bar)
}
