package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// instant records requested waits instead of sleeping.
func instant(waits *[]time.Duration) func(context.Context, time.Duration) bool {
	return func(ctx context.Context, d time.Duration) bool {
		*waits = append(*waits, d)
		return ctx.Err() == nil
	}
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Duration(0), p.Delay(0))
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 5*time.Second, p.Delay(4))
	assert.Equal(t, 5*time.Second, p.Delay(40))
}

func TestRetryTransientThenSuccess(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	p := DefaultRetryPolicy()
	p.Timeout = 0
	p.sleep = instant(&waits)

	calls := 0
	err := p.Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return &TransientError{Op: "op", Err: errors.New("timeout")}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, waits)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, sleep: instant(&waits)}

	calls := 0
	err := p.Do(context.Background(), "get price", func(context.Context) error {
		calls++
		return &TransientError{Op: "get price", Err: errors.New("503")}
	})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "get price")
	assert.Equal(t, 3, calls)
	assert.Len(t, waits, 2)
}

func TestRetryNeverRetriesRejection(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, sleep: instant(&waits)}

	calls := 0
	err := p.Do(context.Background(), "place order", func(context.Context) error {
		calls++
		return &RejectedError{Op: "place order", Code: -2010, Msg: "insufficient balance"}
	})
	require.Error(t, err)
	assert.True(t, IsRejected(err))
	assert.False(t, IsTransient(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, waits)
}

func TestRetryStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}

	calls := 0
	err := p.Do(ctx, "op", func(context.Context) error {
		calls++
		cancel()
		return &TransientError{Op: "op", Err: errors.New("reset")}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPerAttemptTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	p := RetryPolicy{MaxAttempts: 2, Timeout: 5 * time.Millisecond, sleep: instant(&waits)}

	calls := 0
	err := p.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 2, calls)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(context.Canceled))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(&TransientError{Err: errors.New("x")}))
	assert.False(t, IsRetryable(&RejectedError{Code: -1013}))
}
