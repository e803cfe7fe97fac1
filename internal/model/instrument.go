package model

import "strings"

// Instrument describes a currency pair and its quoting convention.
type Instrument struct {
	Symbol    string  `json:"symbol"`
	Digits    int     `json:"digits"`     // 5 for most pairs, 3 for yen-quoted pairs
	PipSize   float64 `json:"pip_size"`   // one price increment at the quoted precision
	BasePrice float64 `json:"base_price"` // simulator starting price
}

// DefaultInstruments is the symbol set subscribed to by default.
var DefaultInstruments = []Instrument{
	{Symbol: "EURUSD", Digits: 5, PipSize: 0.0001, BasePrice: 1.08500},
	{Symbol: "GBPUSD", Digits: 5, PipSize: 0.0001, BasePrice: 1.27000},
	{Symbol: "USDJPY", Digits: 3, PipSize: 0.01, BasePrice: 150.000},
}

// NewInstrument infers the quoting convention from the symbol.
// Yen-quoted pairs use three decimals, everything else five.
func NewInstrument(symbol string, basePrice float64) Instrument {
	in := Instrument{Symbol: symbol, Digits: 5, PipSize: 0.0001, BasePrice: basePrice}
	if strings.HasSuffix(strings.ToUpper(symbol), "JPY") {
		in.Digits = 3
		in.PipSize = 0.01
	}
	return in
}
