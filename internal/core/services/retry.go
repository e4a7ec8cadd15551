package services

import (
	"context"
	"time"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
)

// RetryPolicy computes exponential-backoff delays and drives bounded retry
// of provider operations.
type RetryPolicy struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	MaxRetries int

	// sleep is replaceable in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy returns the standard 1s/2x/30s-cap, 3-retry policy.
func DefaultRetryPolicy() *RetryPolicy {
	return NewRetryPolicy(time.Second, 2, 30*time.Second, 3)
}

// NewRetryPolicy creates a retry policy.
func NewRetryPolicy(base time.Duration, multiplier float64, max time.Duration, maxRetries int) *RetryPolicy {
	if base <= 0 {
		base = time.Second
	}
	if multiplier < 1 {
		multiplier = 2
	}
	if max < base {
		max = base
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryPolicy{
		BaseDelay:  base,
		Multiplier: multiplier,
		MaxDelay:   max,
		MaxRetries: maxRetries,
		sleep:      sleepCtx,
	}
}

// Delay returns min(base * multiplier^retryCount, cap).
func (p *RetryPolicy) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}

	d := float64(p.BaseDelay)
	for i := 0; i < retryCount; i++ {
		d *= p.Multiplier
		if time.Duration(d) >= p.MaxDelay {
			return p.MaxDelay
		}
	}

	if time.Duration(d) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// DelayFor applies the Retry-After hint as a floor on the computed backoff.
func (p *RetryPolicy) DelayFor(retryCount int, c domain.Classification) time.Duration {
	d := p.Delay(retryCount)
	if c.RetryAfter > d {
		return c.RetryAfter
	}
	return d
}

// ShouldRetry is false for permanent classifications and once the retry
// budget is spent; true otherwise. Unknown classifications retry but share
// the same cap.
func (p *RetryPolicy) ShouldRetry(retryCount int, c domain.Classification) bool {
	if c.Class == domain.ErrorClassPermanent {
		return false
	}
	return retryCount < p.MaxRetries
}

// Do executes fn, retrying on retryable failures with backoff. The final
// error is returned untouched when the budget is exhausted.
func (p *RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		c := Classify(lastErr)
		if !p.ShouldRetry(attempt, c) {
			return lastErr
		}

		if err := p.sleep(ctx, p.DelayFor(attempt, c)); err != nil {
			return lastErr
		}
	}
}

// sleepCtx sleeps for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
