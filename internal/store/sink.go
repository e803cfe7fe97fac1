// Package store holds the bar persistence backends and the sinks that
// combine them.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"ohlcbridge/internal/model"
)

// MultiSink fans each Append out to every sink. A failing sink does not stop
// the rest; all errors are joined.
type MultiSink []model.BarSink

// Append implements model.BarSink.
func (m MultiSink) Append(symbol string, tf model.Timeframe, bar model.Bar) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(symbol, tf, bar); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ErrSinkClosed is returned by AsyncSink.Append after Close.
var ErrSinkClosed = errors.New("async sink closed")

// ErrSinkFull is returned when the async queue has no room.
var ErrSinkFull = errors.New("async sink full")

type record struct {
	symbol string
	tf     model.Timeframe
	bar    model.Bar
}

// AsyncSink queues bars on a bounded channel and writes them to the wrapped
// sink from a single goroutine. Append never blocks: with the queue full the
// bar is dropped and ErrSinkFull returned.
type AsyncSink struct {
	next model.BarSink
	ch   chan record
	log  *slog.Logger

	mu      sync.RWMutex // guards closed against concurrent Append
	closed  bool
	done    chan struct{}
	started atomic.Bool
	dropped atomic.Uint64

	OnDrop  func()      // bar dropped because the queue was full (optional)
	OnError func(error) // downstream write failed (optional)
}

// NewAsyncSink wraps next with a queue of the given capacity.
func NewAsyncSink(next model.BarSink, capacity int, logger *slog.Logger) *AsyncSink {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncSink{
		next: next,
		ch:   make(chan record, capacity),
		log:  logger.With(slog.String("component", "async-sink")),
		done: make(chan struct{}),
	}
}

// Append enqueues the bar without blocking.
func (a *AsyncSink) Append(symbol string, tf model.Timeframe, bar model.Bar) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrSinkClosed
	}
	select {
	case a.ch <- record{symbol: symbol, tf: tf, bar: bar}:
		return nil
	default:
		a.dropped.Add(1)
		if a.OnDrop != nil {
			a.OnDrop()
		}
		return fmt.Errorf("%w: %s %s", ErrSinkFull, symbol, tf)
	}
}

// Run writes queued bars until Close drains the queue. Cancelling ctx does
// not stop it; records enqueued before Close are still written.
func (a *AsyncSink) Run(_ context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return errors.New("async sink already running")
	}
	defer close(a.done)
	for r := range a.ch {
		a.write(r)
	}
	return nil
}

// Close stops accepting bars and waits until everything queued has been
// written. If Run was never started, the queue is drained inline.
func (a *AsyncSink) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return
	}
	a.closed = true
	close(a.ch)
	a.mu.Unlock()

	if a.started.CompareAndSwap(false, true) {
		for r := range a.ch {
			a.write(r)
		}
		close(a.done)
		return
	}
	<-a.done
}

// Pending returns the number of queued bars.
func (a *AsyncSink) Pending() int { return len(a.ch) }

// Dropped returns how many bars were rejected because the queue was full.
func (a *AsyncSink) Dropped() uint64 { return a.dropped.Load() }

func (a *AsyncSink) write(r record) {
	if err := a.next.Append(r.symbol, r.tf, r.bar); err != nil {
		a.log.Error("write failed",
			slog.String("symbol", r.symbol),
			slog.String("tf", r.tf.String()),
			slog.Any("error", err))
		if a.OnError != nil {
			a.OnError(err)
		}
	}
}
