package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timeframe is a bar duration in seconds.
type Timeframe int

const (
	TF1s  Timeframe = 1
	TF5s  Timeframe = 5
	TF10s Timeframe = 10
	TF15s Timeframe = 15
	TF30s Timeframe = 30
	TF1m  Timeframe = 60
	TF5m  Timeframe = 300
	TF15m Timeframe = 900
	TF30m Timeframe = 1800
	TF1h  Timeframe = 3600
	TF4h  Timeframe = 14400
)

// ErrUnknownTimeframe is returned when a duration is not one of the supported timeframes.
var ErrUnknownTimeframe = errors.New("unknown timeframe")

var allTimeframes = []Timeframe{TF1s, TF5s, TF10s, TF15s, TF30s, TF1m, TF5m, TF15m, TF30m, TF1h, TF4h}

var labels = map[Timeframe]string{
	TF1s: "1s", TF5s: "5s", TF10s: "10s", TF15s: "15s", TF30s: "30s",
	TF1m: "1m", TF5m: "5m", TF15m: "15m", TF30m: "30m",
	TF1h: "1h", TF4h: "4h",
}

// AllTimeframes returns every supported timeframe, shortest first.
func AllTimeframes() []Timeframe {
	out := make([]Timeframe, len(allTimeframes))
	copy(out, allTimeframes)
	return out
}

// Seconds returns the duration in seconds.
func (tf Timeframe) Seconds() int64 { return int64(tf) }

// Duration returns the timeframe as a time.Duration.
func (tf Timeframe) Duration() time.Duration { return time.Duration(tf) * time.Second }

// Valid reports whether tf is one of the supported timeframes.
func (tf Timeframe) Valid() bool {
	_, ok := labels[tf]
	return ok
}

// String returns the short label, e.g. "5m". Unsupported values render as "unknown".
func (tf Timeframe) String() string {
	if l, ok := labels[tf]; ok {
		return l
	}
	return "unknown"
}

// MarshalJSON encodes the timeframe as its label.
func (tf Timeframe) MarshalJSON() ([]byte, error) {
	return json.Marshal(tf.String())
}

// Bucket returns the start of the bucket containing t:
// floor(unix / seconds) * seconds, floored for pre-epoch times as well.
func (tf Timeframe) Bucket(t time.Time) time.Time {
	s := tf.Seconds()
	sec := t.Unix()
	b := sec / s * s
	if sec < 0 && sec%s != 0 {
		b -= s
	}
	return time.Unix(b, 0).UTC()
}

// ParseTimeframe accepts either a label ("5m") or a count of seconds ("300").
func ParseTimeframe(s string) (Timeframe, error) {
	s = strings.TrimSpace(s)
	for tf, l := range labels {
		if l == s {
			return tf, nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTimeframe, s)
	}
	tf := Timeframe(n)
	if !tf.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownTimeframe, n)
	}
	return tf, nil
}
