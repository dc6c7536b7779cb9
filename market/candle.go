package market

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Candle is one OHLCV bar. Time is the bar's open time in UTC.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Signal is a candle annotated by the strategy with a buy flag. It is the
// only input the simulator consumes.
type Signal struct {
	Candle
	Buy bool
}

// Kline is a streaming candle update from a venue. Closed is true for the
// final update of a bar; earlier updates carry the in-progress values.
type Kline struct {
	Candle
	Closed bool
}

// Event is what the live engine consumes: a kline plus the strategy's
// verdict. Buy is only meaningful when Closed is true.
type Event struct {
	Kline
	Buy bool
}

// Date returns the UTC calendar date of t as YYYY-MM-DD.
func Date(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// IntervalDuration parses a kline interval: Go durations such as "1m",
// "15m" or "4h", plus day and week forms such as "1d" and "1w".
func IntervalDuration(interval string) (time.Duration, error) {
	s := strings.TrimSpace(interval)
	unit := time.Duration(0)
	switch {
	case strings.HasSuffix(s, "d"):
		unit = 24 * time.Hour
	case strings.HasSuffix(s, "w"):
		unit = 7 * 24 * time.Hour
	}
	if unit > 0 {
		n, err := strconv.Atoi(s[:len(s)-1])
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("market: bad interval %q", interval)
		}
		return time.Duration(n) * unit, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("market: bad interval %q", interval)
	}
	return d, nil
}
