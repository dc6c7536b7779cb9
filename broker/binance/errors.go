package binance

import (
	"context"
	"errors"

	"github.com/adshao/go-binance/v2/common"
	"github.com/rustyeddy/spottrader/broker"
)

// Spot API codes for overload, rate limiting and clock skew. Anything else
// the API answers with is a refusal: -2010 insufficient balance, -1013
// filter failure, -1111 bad precision, -1121 bad symbol and so on.
// codeNoSuchOrder is the answer to a lookup of an unknown order.
const codeNoSuchOrder = -2013

var transientCodes = map[int64]bool{
	-1000: true, // unknown error
	-1001: true, // internal error, disconnected
	-1003: true, // too many requests
	-1006: true, // unexpected response
	-1007: true, // timeout waiting for backend
	-1015: true, // too many new orders
	-1021: true, // timestamp outside recv window
}

// classify maps a go-binance error onto the broker error taxonomy. API
// errors with unrecognised codes are permanent so an unexpected refusal is
// never resubmitted. Transport failures are transient.
func classify(op string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if transientCodes[apiErr.Code] {
			return &broker.TransientError{Op: op, Err: err}
		}
		return &broker.RejectedError{Op: op, Code: apiErr.Code, Msg: apiErr.Message}
	}
	return &broker.TransientError{Op: op, Err: err}
}
