package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds how often and how patiently a batch operation is retried.
// Conversation turns never retry.
type RetryPolicy struct {
	MaxRetries int
	// MaxGuardedRetries caps retries of RetryClassMaybe errors; zero means 2.
	MaxGuardedRetries int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	Multiplier        float64
	Jitter            bool // adds up to 20% to each delay
}

func (p RetryPolicy) guardedLimit() int {
	limit := p.MaxGuardedRetries
	if limit <= 0 {
		limit = 2
	}
	return min(limit, p.MaxRetries)
}

// RetryAttempt describes a failure that is about to be retried.
type RetryAttempt struct {
	Op      string
	Attempt int // 1 for the first retry
	Delay   time.Duration
	Class   RetryClass
	Err     error
}

// Retrier retries one kind of operation. Classify defaults to ClassifyLLMError;
// OnRetry may be nil.
type Retrier struct {
	Policy   RetryPolicy
	Classify func(error) RetryClass
	OnRetry  func(RetryAttempt)
}

// Retry calls fn until it succeeds, fails with a non-retryable error, runs
// out of retries or ctx is done. Exhaustion is reported as a
// RetryExhaustedError wrapping the last failure.
func Retry[T any](ctx context.Context, r Retrier, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	classify := r.Classify
	if classify == nil {
		classify = ClassifyLLMError
	}

	for retries := 0; ; retries++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		class := classify(err)
		switch {
		case class == RetryClassNonRetryable:
			return zero, err
		case class == RetryClassMaybe && retries >= r.Policy.guardedLimit():
			return zero, NewRetryExhaustedError(err, retries+1, r.Policy.guardedLimit()+1, true)
		case retries >= r.Policy.MaxRetries:
			return zero, NewRetryExhaustedError(err, retries+1, r.Policy.MaxRetries+1, false)
		}

		delay := r.Policy.delay(retries, err)
		if r.OnRetry != nil {
			r.OnRetry(RetryAttempt{Op: op, Attempt: retries + 1, Delay: delay, Class: class, Err: err})
		}
		if err := wait(ctx, delay); err != nil {
			return zero, fmt.Errorf("%s: cancelled while retrying: %w", op, err)
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// delay is the pause before retry number retries+1. A provider's Retry-After
// wins over the backoff; both are capped at MaxDelay.
func (p RetryPolicy) delay(retries int, err error) time.Duration {
	if after := ExtractRetryAfter(err); after > 0 {
		return min(after, p.MaxDelay)
	}
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(retries))
	d = math.Min(d, float64(p.MaxDelay))
	if p.Jitter {
		d += rand.Float64() * 0.2 * d
	}
	return time.Duration(d)
}
