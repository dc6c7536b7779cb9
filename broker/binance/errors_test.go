package binance

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/adshao/go-binance/v2/common"
	"github.com/rustyeddy/spottrader/broker"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		rejected  bool
		transient bool
	}{
		{"insufficient balance", &common.APIError{Code: -2010, Message: "Account has insufficient balance"}, true, false},
		{"filter failure", &common.APIError{Code: -1013, Message: "Filter failure: NOTIONAL"}, true, false},
		{"bad precision", &common.APIError{Code: -1111, Message: "Precision is over the maximum"}, true, false},
		{"invalid symbol", &common.APIError{Code: -1121, Message: "Invalid symbol."}, true, false},
		{"unknown code", &common.APIError{Code: -9999, Message: "?"}, true, false},
		{"rate limited", &common.APIError{Code: -1003, Message: "Too many requests"}, false, true},
		{"backend timeout", &common.APIError{Code: -1007, Message: "Timeout waiting for response"}, false, true},
		{"clock skew", &common.APIError{Code: -1021, Message: "Timestamp outside recvWindow"}, false, true},
		{"wrapped api error", fmt.Errorf("do: %w", &common.APIError{Code: -2010}), true, false},
		{"network", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, false, true},
		{"deadline", context.DeadlineExceeded, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("op", tt.err)
			assert.Equal(t, tt.rejected, broker.IsRejected(err))
			assert.Equal(t, tt.transient, broker.IsTransient(err))
		})
	}
}

func TestClassifyPassesThrough(t *testing.T) {
	t.Parallel()

	assert.NoError(t, classify("op", nil))
	assert.ErrorIs(t, classify("op", context.Canceled), context.Canceled)
	assert.False(t, broker.IsTransient(classify("op", context.Canceled)))
}

func TestRejectedKeepsCode(t *testing.T) {
	t.Parallel()

	err := classify("place order", &common.APIError{Code: -2010, Message: "insufficient balance"})
	var re *broker.RejectedError
	assert.ErrorAs(t, err, &re)
	assert.Equal(t, int64(-2010), re.Code)
	assert.Equal(t, "place order", re.Op)
}
