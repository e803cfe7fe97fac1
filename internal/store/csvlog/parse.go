package csvlog

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"ohlcbridge/internal/model"
)

func parseRecord(rec []string) (model.Bar, error) {
	ts, err := strconv.ParseInt(rec[0], 10, 64)
	if err != nil {
		return model.Bar{}, fmt.Errorf("csvlog timestamp %q: %w", rec[0], err)
	}

	var prices [4]float64
	for i := range prices {
		d, err := decimal.NewFromString(rec[1+i])
		if err != nil {
			return model.Bar{}, fmt.Errorf("csvlog %s %q: %w", Header[1+i], rec[1+i], err)
		}
		prices[i] = d.InexactFloat64()
	}

	vol, err := strconv.ParseInt(rec[5], 10, 64)
	if err != nil {
		return model.Bar{}, fmt.Errorf("csvlog volume %q: %w", rec[5], err)
	}
	ticks, err := strconv.Atoi(rec[6])
	if err != nil {
		return model.Bar{}, fmt.Errorf("csvlog tick count %q: %w", rec[6], err)
	}

	return model.Bar{
		BucketStart: time.Unix(ts, 0).UTC(),
		Open:        prices[0],
		High:        prices[1],
		Low:         prices[2],
		Close:       prices[3],
		Volume:      vol,
		TickCount:   ticks,
	}, nil
}
