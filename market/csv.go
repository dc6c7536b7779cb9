package market

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNoTimeColumn is returned when a candle CSV header has none of the
// recognised time column names.
var ErrNoTimeColumn = errors.New("csv: no time column (want timestamp, datetime, date or time)")

var timeColumns = []string{"timestamp", "datetime", "date", "time"}

var signalColumns = []string{"buy_signal", "buy", "signal"}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// LoadCandlesCSV reads an OHLCV CSV file. See ReadCandles.
func LoadCandlesCSV(path string) ([]Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCandles(f)
}

// ReadCandles parses OHLCV rows with a header line. Column names are matched
// case-insensitively; the time column may be called timestamp, datetime,
// date or time and holds RFC3339, "YYYY-MM-DD hh:mm:ss" or unix
// milliseconds. Rows with a missing or non-numeric price are dropped and the
// result is sorted by time.
func ReadCandles(r io.Reader) ([]Candle, error) {
	rows, err := readRows(r, false)
	if err != nil {
		return nil, err
	}
	out := make([]Candle, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Candle)
	}
	return out, nil
}

// LoadSignalsCSV reads an OHLCV CSV that also carries a precomputed buy
// column (buy_signal, buy or signal). Truthy values are 1, true, yes.
func LoadSignalsCSV(path string) ([]Signal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readRows(f, true)
}

func readRows(r io.Reader, wantSignal bool) ([]Signal, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}

	tcol := -1
	for _, name := range timeColumns {
		if i, ok := idx[name]; ok {
			tcol = i
			break
		}
	}
	if tcol < 0 {
		return nil, ErrNoTimeColumn
	}

	var cols [5]int
	for i, name := range []string{"open", "high", "low", "close", "volume"} {
		c, ok := idx[name]
		if !ok {
			return nil, fmt.Errorf("csv: missing column %q", name)
		}
		cols[i] = c
	}

	scol := -1
	if wantSignal {
		for _, name := range signalColumns {
			if i, ok := idx[name]; ok {
				scol = i
				break
			}
		}
		if scol < 0 {
			return nil, fmt.Errorf("csv: missing buy signal column (want one of %s)", strings.Join(signalColumns, ", "))
		}
	}

	var out []Signal
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: %w", line, err)
		}
		if len(row) == 0 || len(row) <= tcol {
			continue
		}

		ts, err := ParseTime(row[tcol])
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: bad time %q: %w", line, row[tcol], err)
		}

		var vals [5]float64
		ok := true
		for i, c := range cols {
			if c >= len(row) {
				ok = false
				break
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(row[c]), 64)
			if err != nil {
				ok = false
				break
			}
			vals[i] = v
		}
		if !ok {
			continue
		}

		s := Signal{Candle: Candle{
			Time:   ts,
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		}}
		if scol >= 0 && scol < len(row) {
			s.Buy = truthy(row[scol])
		}
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// ParseTime accepts the time formats found in exchange exports.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time format")
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

// WriteCandlesCSV writes candles with a timestamp,open,high,low,close,volume
// header. Times are RFC3339 UTC.
func WriteCandlesCSV(w io.Writer, candles []Candle) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, c := range candles {
		if err := cw.Write([]string{
			c.Time.UTC().Format(time.RFC3339),
			ff(c.Open),
			ff(c.High),
			ff(c.Low),
			ff(c.Close),
			ff(c.Volume),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ff(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
