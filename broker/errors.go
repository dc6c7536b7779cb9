package broker

import (
	"errors"
	"fmt"
)

// RejectedError is a permanent venue refusal: insufficient balance, an
// invalid quantity or price, an unknown symbol. Retrying cannot fix it.
type RejectedError struct {
	Op   string
	Code int64
	Msg  string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: rejected (code %d): %s", e.Op, e.Code, e.Msg)
}

// TransientError wraps a failure that may succeed on retry: network
// errors, timeouts, rate limiting, venue overload.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsRejected reports whether err is, or wraps, a RejectedError.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// IsTransient reports whether err is, or wraps, a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
