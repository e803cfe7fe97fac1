// Package sim generates a synthetic FX feed for the bundled tick server.
package sim

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"

	"ohlcbridge/internal/model"

	"github.com/shopspring/decimal"
)

const (
	minVolume = 10000
	maxVolume = 100000
)

// Generator random-walks a set of instruments. Safe for concurrent use.
type Generator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	instrs []model.Instrument
	prices []float64
}

// NewGenerator starts every instrument at its BasePrice.
func NewGenerator(instruments []model.Instrument, seed int64) *Generator {
	g := &Generator{
		rng:    rand.New(rand.NewSource(seed)),
		instrs: append([]model.Instrument(nil), instruments...),
		prices: make([]float64, len(instruments)),
	}
	for i, in := range g.instrs {
		g.prices[i] = in.BasePrice
	}
	return g
}

// Step moves each price by a uniform amount in [-PipSize, +PipSize] and
// returns one trade per instrument.
func (g *Generator) Step() []model.Tick {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]model.Tick, len(g.instrs))
	for i, in := range g.instrs {
		delta := (g.rng.Float64()*2 - 1) * in.PipSize
		p := round(g.prices[i]+delta, in.Digits)
		if p <= 0 {
			p = in.PipSize
		}
		g.prices[i] = p
		out[i] = model.Tick{
			Type:   model.EntryTrade,
			Symbol: in.Symbol,
			Price:  p,
			Volume: int64(minVolume + g.rng.Intn(maxVolume-minVolume+1)),
		}
	}
	return out
}

// Snapshot returns a full refresh per instrument: bid and ask two pips
// around the current price plus the last trade.
func (g *Generator) Snapshot() []model.Tick {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]model.Tick, len(g.instrs))
	for i, in := range g.instrs {
		p := g.prices[i]
		out[i] = model.Tick{
			Type:   model.EntrySnapshot,
			Symbol: in.Symbol,
			Price:  p,
			Bid:    round(p-2*in.PipSize, in.Digits),
			Ask:    round(p+2*in.PipSize, in.Digits),
		}
	}
	return out
}

// Price returns the current simulated price of symbol.
func (g *Generator) Price(symbol string) (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, in := range g.instrs {
		if in.Symbol == symbol {
			return g.prices[i], true
		}
	}
	return 0, false
}

func round(p float64, digits int) float64 {
	return decimal.NewFromFloat(p).Round(int32(digits)).InexactFloat64()
}

// ParseInstruments parses "EURUSD:1.085,USDJPY:150" into instruments. A
// symbol without a price uses its default base price when it has one.
func ParseInstruments(s string) ([]model.Instrument, error) {
	defaults := make(map[string]model.Instrument, len(model.DefaultInstruments))
	for _, in := range model.DefaultInstruments {
		defaults[in.Symbol] = in
	}

	var out []model.Instrument
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sym, priceStr, hasPrice := strings.Cut(part, ":")
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if !hasPrice {
			in, ok := defaults[sym]
			if !ok {
				return nil, fmt.Errorf("instrument %q: no default price, use SYMBOL:PRICE", sym)
			}
			out = append(out, in)
			continue
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(priceStr), 64)
		if err != nil || price <= 0 {
			return nil, fmt.Errorf("instrument %q: invalid price %q", sym, priceStr)
		}
		out = append(out, model.NewInstrument(sym, price))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no instruments in %q", s)
	}
	return out, nil
}
