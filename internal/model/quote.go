package model

import "time"

// AbsentPrice is the wire value for a side that is not present in an update.
// It never appears inside the service; presence is tracked with HasBid/HasAsk.
const AbsentPrice = -1.0

// QuoteUpdate is a derived top-of-book observation for one symbol.
// A side with its Has flag unset carries no information and must not
// overwrite a previously known value.
type QuoteUpdate struct {
	Symbol    string
	Bid       float64
	Ask       float64
	HasBid    bool
	HasAsk    bool
	Timestamp time.Time
}

// BidOnly builds an update that reports only the bid side.
func BidOnly(symbol string, bid float64, ts time.Time) QuoteUpdate {
	return QuoteUpdate{Symbol: symbol, Bid: bid, HasBid: true, Timestamp: ts}
}

// AskOnly builds an update that reports only the ask side.
func AskOnly(symbol string, ask float64, ts time.Time) QuoteUpdate {
	return QuoteUpdate{Symbol: symbol, Ask: ask, HasAsk: true, Timestamp: ts}
}

// TwoSided builds an update carrying both sides.
func TwoSided(symbol string, bid, ask float64, ts time.Time) QuoteUpdate {
	return QuoteUpdate{Symbol: symbol, Bid: bid, Ask: ask, HasBid: true, HasAsk: true, Timestamp: ts}
}

// QuoteUpdateFromWire converts a sentinel-encoded pair into an update.
// A side equal to AbsentPrice is treated as not present.
func QuoteUpdateFromWire(symbol string, bid, ask float64, ts time.Time) QuoteUpdate {
	return QuoteUpdate{
		Symbol:    symbol,
		Bid:       bid,
		Ask:       ask,
		HasBid:    bid != AbsentPrice,
		HasAsk:    ask != AbsentPrice,
		Timestamp: ts,
	}
}

// Quote is the latest known bid/ask for a symbol.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	HasBid    bool      `json:"-"`
	HasAsk    bool      `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// WireBid returns the bid, or AbsentPrice if no bid has been seen.
func (q Quote) WireBid() float64 {
	if !q.HasBid {
		return AbsentPrice
	}
	return q.Bid
}

// WireAsk returns the ask, or AbsentPrice if no ask has been seen.
func (q Quote) WireAsk() float64 {
	if !q.HasAsk {
		return AbsentPrice
	}
	return q.Ask
}
