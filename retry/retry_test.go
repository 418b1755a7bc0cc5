package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("connection reset by peer")

func recordingPolicy(p Policy, slept *[]time.Duration) Policy {
	p.Rand = func() float64 { return 0.5 } // zero jitter
	p.Sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return p
}

func always(c Class) func(error) Class {
	return func(error) Class { return c }
}

func TestBackoffIsMonotonicAndCapped(t *testing.T) {
	p := Policy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Factor: 2}

	prev := time.Duration(0)
	for n := 0; n < 10; n++ {
		b := p.Backoff(n, Retryable)
		assert.GreaterOrEqual(t, int64(b), int64(prev))
		assert.LessOrEqual(t, int64(b), int64(time.Second))
		prev = b
	}
	assert.Equal(t, 100*time.Millisecond, p.Backoff(0, Retryable))
	assert.Equal(t, 800*time.Millisecond, p.Backoff(3, Retryable))
	assert.Equal(t, time.Second, p.Backoff(4, Retryable))
}

func TestContentionUsesFastFirstRetry(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 10*time.Millisecond, p.Backoff(0, Contention))
	assert.Equal(t, 100*time.Millisecond, p.Backoff(1, Contention))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2, Contention))
}

func TestJitterStaysInBoundsAndAboveFloor(t *testing.T) {
	p := Policy{Jitter: 0.1}

	p.Rand = func() float64 { return 0 }
	assert.Equal(t, 90*time.Millisecond, p.jittered(100*time.Millisecond))
	p.Rand = func() float64 { return 0.999999 }
	assert.InDelta(t, float64(110*time.Millisecond), float64(p.jittered(100*time.Millisecond)), float64(time.Microsecond))

	p.Rand = func() float64 { return 0 }
	assert.Equal(t, MinBackoff, p.jittered(0))
}

func TestDoExhaustsRetryBudget(t *testing.T) {
	slept := []time.Duration{}
	p := recordingPolicy(DefaultPolicy(), &slept)

	calls := 0
	err := Do(context.Background(), p, always(Retryable), func(context.Context) error {
		calls++
		return errTransient
	})

	assert.Equal(t, p.MaxRetries+1, calls)
	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 4, exhausted.Attempts)
	assert.True(t, errors.Is(err, errTransient))
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, slept)
}

func TestDoFatalShortCircuits(t *testing.T) {
	slept := []time.Duration{}
	p := recordingPolicy(DefaultPolicy(), &slept)
	fatal := errors.New("syntax error")

	calls := 0
	err := Do(context.Background(), p, always(Fatal), func(context.Context) error {
		calls++
		return fatal
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, fatal, err)
	assert.Empty(t, slept)
}

func TestDoSucceedsAfterTransientFailure(t *testing.T) {
	slept := []time.Duration{}
	p := recordingPolicy(DefaultPolicy(), &slept)

	calls := 0
	err := Do(context.Background(), p, always(Contention), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 100 * time.Millisecond}, slept)
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := DefaultPolicy()
	p.InitialBackoff = time.Hour
	p.MaxBackoff = time.Hour

	calls := 0
	err := Do(ctx, p, always(Retryable), func(context.Context) error {
		calls++
		cancel()
		return errTransient
	})

	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, context.Canceled))
}
