package journal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatTradeOrg(t *testing.T) {
	t.Parallel()

	trade := TradeRecord{RunID: "run-1", Symbol: "BTCUSDT", ClosedTrade: sampleTrade()}
	trade.PositionID = "01HZXABCDEF"

	result := FormatTradeOrg(trade)

	assert.True(t, strings.HasPrefix(result, "** Trade: BTCUSDT TP (01HZXABC)\n"))
	assert.Contains(t, result, ":POSITION_ID: 01HZXABCDEF\n")
	assert.Contains(t, result, ":ENTRY_TIME: 2024-01-02T03:04:05Z\n")
	assert.Contains(t, result, ":EXIT_REASON: TP\n")
	assert.Contains(t, result, ":NET_PNL: 0.52\n")
	assert.Contains(t, result, ":END:\n")
}

func TestFormatTradesOrg(t *testing.T) {
	t.Parallel()

	a := TradeRecord{Symbol: "BTCUSDT", ClosedTrade: sampleTrade()}
	b := a
	b.PositionID = "P2"

	out := FormatTradesOrg([]TradeRecord{a, b})
	assert.Equal(t, 2, strings.Count(out, "** Trade:"))
	assert.Contains(t, out, ":END:\n\n*** Execution")
	assert.Empty(t, FormatTradesOrg(nil))
}
