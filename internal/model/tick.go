package model

import "time"

// EntryType identifies which side of the book a market-data entry reports.
type EntryType string

const (
	EntryTrade    EntryType = "trade"
	EntryBid      EntryType = "bid"
	EntryOffer    EntryType = "offer"
	EntrySnapshot EntryType = "snapshot" // full refresh carrying bid, ask and last trade
)

// Valid reports whether t is one of the known entry types.
func (t EntryType) Valid() bool {
	switch t {
	case EntryTrade, EntryBid, EntryOffer, EntrySnapshot:
		return true
	}
	return false
}

// Tick is one decoded market-data entry handed over by the feed collaborator.
// Price and Volume are not validated: non-positive values flow through as-is.
type Tick struct {
	Type   EntryType `json:"type"`
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`  // trade/bid/offer price; last trade for snapshots
	Volume int64     `json:"volume"` // trade size, 0 when the venue does not report one; ignored for snapshots
	Bid    float64   `json:"bid,omitempty"`
	Ask    float64   `json:"ask,omitempty"`

	// ReceivedAt is stamped by the ingest path on arrival. Bars are bucketed
	// by this time, not by any venue-supplied timestamp.
	ReceivedAt time.Time `json:"-"`
}

// IsTrade reports whether the tick carries a price that feeds the bar aggregator.
func (t *Tick) IsTrade() bool {
	return t.Type == EntryTrade || (t.Type == EntrySnapshot && t.Price != 0)
}
