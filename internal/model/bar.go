package model

import (
	"encoding/json"
	"time"
)

// Bar accumulates OHLCV for one (symbol, timeframe, bucket).
// A Bar is empty until its first Update.
type Bar struct {
	BucketStart time.Time `json:"ts"` // UTC, aligned to the timeframe
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      int64     `json:"volume"`
	TickCount   int       `json:"tick_count"`
}

// Update folds one tick into the bar.
func (b *Bar) Update(price float64, volume int64) {
	if b.TickCount == 0 {
		b.Open, b.High, b.Low, b.Close = price, price, price, price
	} else {
		if price > b.High {
			b.High = price
		}
		if price < b.Low {
			b.Low = price
		}
		b.Close = price
	}
	b.Volume += volume
	b.TickCount++
}

// IsEmpty reports whether no tick has been folded in yet.
func (b *Bar) IsEmpty() bool {
	return b.TickCount == 0
}

// OpenBar is a read-only view of an in-progress bar.
type OpenBar struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"tf"`
	Bar       Bar       `json:"bar"`
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	data, _ := json.Marshal(b)
	return data
}
