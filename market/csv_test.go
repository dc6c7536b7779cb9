package market

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCandles(t *testing.T) {
	t.Parallel()

	in := `Timestamp,Open,High,Low,Close,Volume
2024-01-01 00:01:00,101,102,100,101.5,3
2024-01-01 00:00:00,100,101,99,100.5,2
2024-01-01 00:02:00,,102,100,101,1
`
	got, err := ReadCandles(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 2, "row with a missing open is dropped")

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), got[0].Time)
	assert.Equal(t, 100.5, got[0].Close)
	assert.Equal(t, 101.5, got[1].Close)
}

func TestReadCandlesTimeAliases(t *testing.T) {
	t.Parallel()

	for _, col := range []string{"timestamp", "datetime", "date", "time"} {
		in := col + ",open,high,low,close,volume\n1704067200000,1,2,0.5,1.5,10\n"
		got, err := ReadCandles(strings.NewReader(in))
		require.NoError(t, err, col)
		require.Len(t, got, 1)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), got[0].Time)
	}
}

func TestReadCandlesErrors(t *testing.T) {
	t.Parallel()

	_, err := ReadCandles(strings.NewReader("when,open,high,low,close,volume\n"))
	assert.ErrorIs(t, err, ErrNoTimeColumn)

	_, err = ReadCandles(strings.NewReader("timestamp,open,high,low,close\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing column "volume"`)

	_, err = ReadCandles(strings.NewReader("timestamp,open,high,low,close,volume\nyesterday,1,1,1,1,1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad time")
}

func TestLoadSignalsCSV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "signals.csv")
	data := `timestamp,open,high,low,close,volume,buy_signal
2024-01-01T00:00:00Z,1,1,1,1,1,0
2024-01-01T00:01:00Z,1,1,1,1,1,true
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	got, err := LoadSignalsCSV(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.False(t, got[0].Buy)
	assert.True(t, got[1].Buy)
}

func TestWriteCandlesRoundTrip(t *testing.T) {
	t.Parallel()

	in := []Candle{
		{Time: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), Open: 1, High: 2, Low: 0.5, Close: 1.25, Volume: 42},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCandlesCSV(&buf, in))

	out, err := ReadCandles(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDate(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+7", 7*3600)
	ts := time.Date(2024, 1, 2, 3, 0, 0, 0, loc)
	assert.Equal(t, "2024-01-01", Date(ts))
}

func TestIntervalDuration(t *testing.T) {
	tests := map[string]time.Duration{
		"1m":  time.Minute,
		"15m": 15 * time.Minute,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
		"3d":  72 * time.Hour,
		"1w":  7 * 24 * time.Hour,
	}
	for in, want := range tests {
		got, err := IntervalDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "xd", "0m", "-1h", "soon"} {
		_, err := IntervalDuration(bad)
		assert.Error(t, err, bad)
	}
}
