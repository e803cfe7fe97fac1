// Package quote turns decoded market-data entries into top-of-book updates
// for the broadcast bridge.
package quote

import (
	"ohlcbridge/internal/model"
)

// DefaultSpread is the half-spread added around a trade price when a trade
// entry is turned into a synthetic two-sided quote.
const DefaultSpread = 0.0001

// Deriver builds QuoteUpdates from ticks.
//
// Trades carry no order-book information, so a trade is rendered as a
// synthetic bid/ask pair at price ∓ Spread. Consumers of the existing
// broadcast payload rely on this. A Spread of 0 disables synthesis and trades
// produce no quote.
type Deriver struct {
	Spread float64
}

// NewDeriver creates a Deriver with the given half-spread.
func NewDeriver(spread float64) *Deriver {
	return &Deriver{Spread: spread}
}

// Derive returns the quote implied by t, or ok=false if t implies none.
func (d *Deriver) Derive(t model.Tick) (model.QuoteUpdate, bool) {
	switch t.Type {
	case model.EntryTrade:
		if d.Spread <= 0 {
			return model.QuoteUpdate{}, false
		}
		return model.TwoSided(t.Symbol, t.Price-d.Spread, t.Price+d.Spread, t.ReceivedAt), true

	case model.EntryBid:
		return model.BidOnly(t.Symbol, t.Price, t.ReceivedAt), true

	case model.EntryOffer:
		return model.AskOnly(t.Symbol, t.Price, t.ReceivedAt), true

	case model.EntrySnapshot:
		// A full refresh only counts as a quote when both sides are present.
		if t.Bid > 0 && t.Ask > 0 {
			return model.TwoSided(t.Symbol, t.Bid, t.Ask, t.ReceivedAt), true
		}
	}
	return model.QuoteUpdate{}, false
}
