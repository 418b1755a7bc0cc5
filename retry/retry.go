// Package retry runs an operation under a bounded exponential backoff policy.
// The caller decides, per error, whether another attempt makes sense.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	. "github.com/lovelive-bluebird/bluebird/utils/log"
)

// Class tells Do what to do with an error returned by the operation.
type Class int

const (
	// Fatal errors are returned to the caller immediately.
	Fatal Class = iota
	// Retryable errors are retried with the regular backoff schedule.
	Retryable
	// Contention errors are retryable, and the first retry waits only a
	// tenth of the initial backoff since the conflicting transaction is
	// usually gone by then.
	Contention
)

func (c Class) String() string {
	switch c {
	case Retryable:
		return "retryable"
	case Contention:
		return "contention"
	default:
		return "fatal"
	}
}

// MinBackoff is the floor applied after jitter.
const MinBackoff = time.Millisecond

// Policy configures Do. The zero value of Sleep and Rand select a context
// aware timer and a shared, locked random source.
type Policy struct {
	Name           string
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Factor         float64
	// Jitter is the fraction of the backoff added or removed at random.
	Jitter float64

	Sleep func(ctx context.Context, d time.Duration) error
	Rand  func() float64
}

// DefaultPolicy is used for individual store operations.
func DefaultPolicy() Policy {
	return Policy{
		Name:           "default",
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Factor:         2,
		Jitter:         0.1,
	}
}

// PoolPolicy is used when creating the connection pool at start-up.
func PoolPolicy() Policy {
	return Policy{
		Name:           "pool",
		MaxRetries:     5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Factor:         2,
		Jitter:         0.1,
	}
}

// RateLimitPolicy is used by translation providers on HTTP 429. Three
// attempts in total.
func RateLimitPolicy() Policy {
	return Policy{
		Name:           "rate_limit",
		MaxRetries:     2,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Factor:         2,
		Jitter:         0.2,
	}
}

// ExhaustedError is returned when every retry was used. It unwraps to the
// error of the last attempt.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Backoff returns the un-jittered delay before retry n, n starting at 0.
func (p Policy) Backoff(n int, class Class) time.Duration {
	if class == Contention {
		if n == 0 {
			return time.Duration(float64(p.InitialBackoff) * 0.1)
		}
		n--
	}
	backoff := float64(p.InitialBackoff) * math.Pow(p.Factor, float64(n))
	if backoff > float64(p.MaxBackoff) || math.IsInf(backoff, 1) {
		backoff = float64(p.MaxBackoff)
	}
	return time.Duration(backoff)
}

// jittered applies ±Jitter·backoff and the MinBackoff floor.
func (p Policy) jittered(backoff time.Duration) time.Duration {
	r := p.Rand
	if r == nil {
		r = defaultRand
	}
	delta := float64(backoff) * p.Jitter * (2*r() - 1)
	d := time.Duration(float64(backoff) + delta)
	if d < MinBackoff {
		return MinBackoff
	}
	return d
}

// Do runs op until it succeeds, classify reports a Fatal error, the retry
// budget is spent, or ctx is done. op is called at most MaxRetries+1 times.
func Do(ctx context.Context, p Policy, classify func(error) Class, op func(ctx context.Context) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 0 {
				Log.WithFields(logrus.Fields{"policy": p.Name, "attempts": attempt + 1}).Info("operation succeeded after retry")
			}
			return nil
		}

		class := classify(err)
		if class == Fatal {
			return err
		}
		if attempt >= p.MaxRetries {
			Log.WithFields(logrus.Fields{"policy": p.Name, "attempts": attempt + 1}).WithError(err).Error("retry budget exhausted")
			return &ExhaustedError{Attempts: attempt + 1, Last: err}
		}

		delay := p.jittered(p.Backoff(attempt, class))
		Log.WithFields(logrus.Fields{
			"policy":  p.Name,
			"attempt": attempt + 1,
			"class":   class.String(),
			"backoff": delay.String(),
		}).WithError(err).Warn("operation failed, retrying")

		if err := sleep(ctx, delay); err != nil {
			return errors.Wrapf(err, "retry interrupted after %d attempts", attempt+1)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var (
	randMu  sync.Mutex
	randSrc = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func defaultRand() float64 {
	randMu.Lock()
	defer randMu.Unlock()
	return randSrc.Float64()
}
