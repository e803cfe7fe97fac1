package gateway

import (
	"encoding/json"
	"strconv"
	"time"

	"ohlcbridge/internal/model"
)

// EncodeQuote builds the subscriber record
// {"symbol":"EURUSD","bid":1.0849,"ask":1.0851,"timestamp":1700000000}.
// An absent side is sent as -1; timestamp is ts in epoch seconds.
// Numeric fields are hand-built; the symbol goes through encoding/json.
func EncodeQuote(q model.Quote, ts time.Time) []byte {
	sym, _ := json.Marshal(q.Symbol)
	buf := make([]byte, 0, 72+len(sym))
	buf = append(buf, `{"symbol":`...)
	buf = append(buf, sym...)
	buf = append(buf, `,"bid":`...)
	buf = strconv.AppendFloat(buf, q.WireBid(), 'f', -1, 64)
	buf = append(buf, `,"ask":`...)
	buf = strconv.AppendFloat(buf, q.WireAsk(), 'f', -1, 64)
	buf = append(buf, `,"timestamp":`...)
	buf = strconv.AppendInt(buf, ts.Unix(), 10)
	buf = append(buf, '}')
	return buf
}
