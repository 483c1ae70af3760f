package runner

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/pulsebench/pulsebench/internal/session"
)

// RetryPolicy bounds how often an operation is retried. A zero policy runs
// the operation exactly once.
type RetryPolicy struct {
	MaxAttempts int                                        // total attempts including the first
	Delay       time.Duration                              // fixed delay when DelayFunc is nil
	ShouldRetry func(error) bool                           // nil retries every error
	DelayFunc   func(attempt int, err error) time.Duration // attempt is 1-based
}

// Retry runs op until it succeeds, the policy is exhausted, ShouldRetry
// declines, or ctx ends. attempts reports how many times op ran.
func Retry(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error) (attempts int, err error) {
	limit := policy.MaxAttempts
	if limit < 1 {
		limit = 1
	}
	for attempt := 1; attempt <= limit; attempt++ {
		if ctx.Err() != nil {
			return attempts, ctx.Err()
		}
		attempts++
		err = op(ctx)
		if err == nil {
			return attempts, nil
		}
		if attempt == limit {
			break
		}
		if policy.ShouldRetry != nil && !policy.ShouldRetry(err) {
			return attempts, err
		}
		delay := policy.Delay
		if policy.DelayFunc != nil {
			delay = policy.DelayFunc(attempt, err)
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return attempts, ctx.Err()
			}
		}
	}
	return attempts, err
}

// Default reconnect backoff bounds.
const (
	DefaultRetryBase = 100 * time.Millisecond
	DefaultRetryMax  = 5 * time.Second
)

type jitterSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (j *jitterSource) jitter(upTo time.Duration) time.Duration {
	if upTo <= 0 {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return time.Duration(j.rnd.Int63n(int64(upTo)))
}

// ExponentialBackoff doubles base on every attempt up to ceiling and adds up to
// half of that again as jitter.
func ExponentialBackoff(base, ceiling time.Duration) func(attempt int, err error) time.Duration {
	if base <= 0 {
		base = DefaultRetryBase
	}
	if ceiling < base {
		ceiling = base
	}
	source := &jitterSource{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
	return func(attempt int, _ error) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		backoff := ceiling
		if attempt < 20 {
			backoff = min(time.Duration(1<<uint(attempt-1))*base, ceiling)
		}
		return backoff + source.jitter(backoff/2)
	}
}

// ReconnectPolicy retries failed session opens up to retries extra times with
// exponential backoff. Cancellation is never retried.
func ReconnectPolicy(retries int, base, ceiling time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: retries + 1,
		// A stopped VU ends the loop through ctx; timeouts are retried.
		ShouldRetry: func(err error) bool {
			var cfgErr *session.ConfigurationError
			return !errors.As(err, &cfgErr) && !errors.Is(err, session.ErrInterrupted)
		},
		DelayFunc: ExponentialBackoff(base, ceiling),
	}
}
