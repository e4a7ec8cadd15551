package services

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ThrottleStatus reports how close a provider connection is to its rate limit
type ThrottleStatus string

const (
	ThrottleNormal      ThrottleStatus = "normal"
	ThrottleThrottled   ThrottleStatus = "throttled"
	ThrottleRateLimited ThrottleStatus = "rate-limited"
)

// RateLimiterConfig holds token-bucket tunables.
type RateLimiterConfig struct {
	MaxTokens  float64
	RefillRate float64 // tokens per second
	// ThrottleThreshold is the usage percentage (0-100) at which proactive
	// throttling starts. Default 80.
	ThrottleThreshold float64
}

// DefaultRateLimiterConfig mirrors typical provider quotas: burst of 50
// requests refilling at 10/s.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{MaxTokens: 50, RefillRate: 10, ThrottleThreshold: 80}
}

// RateLimiter is a token bucket shared per provider connection. Token
// accounting is serialized across concurrent requests from every account of
// that provider. It never silently drops a request: Acquire reports how long
// to wait, AcquireAndWait guarantees eventual admission.
//
// The bespoke implementation exists because callers need usage inspection,
// non-consuming wait hints, and status-change callbacks that
// golang.org/x/time/rate does not expose.
type RateLimiter struct {
	mu         sync.Mutex
	maxTokens  float64
	refillRate float64
	threshold  float64
	tokens     float64
	lastRefill time.Time
	lastStatus ThrottleStatus
	onChange   func(status ThrottleStatus, usagePercent float64)

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a full token bucket.
func NewRateLimiter(cfg RateLimiterConfig) (*RateLimiter, error) {
	if cfg.MaxTokens <= 0 || cfg.RefillRate <= 0 {
		return nil, fmt.Errorf("rate limiter: max tokens and refill rate must be positive")
	}
	if cfg.ThrottleThreshold <= 0 || cfg.ThrottleThreshold > 100 {
		cfg.ThrottleThreshold = 80
	}

	now := time.Now()
	return &RateLimiter{
		maxTokens:  cfg.MaxTokens,
		refillRate: cfg.RefillRate,
		threshold:  cfg.ThrottleThreshold,
		tokens:     cfg.MaxTokens,
		lastRefill: now,
		lastStatus: ThrottleNormal,
		now:        time.Now,
		sleep:      sleepCtx,
	}, nil
}

// OnStatusChange registers a callback fired only on actual status
// transitions, never redundantly for the same status.
func (r *RateLimiter) OnStatusChange(fn func(status ThrottleStatus, usagePercent float64)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// refill adds tokens for the elapsed time. Caller holds the lock.
func (r *RateLimiter) refill() {
	now := r.now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	r.tokens += elapsed * r.refillRate
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}
	r.lastRefill = now
}

// usageLocked returns consumed capacity as a percentage. Caller holds the lock.
func (r *RateLimiter) usageLocked() float64 {
	return (r.maxTokens - r.tokens) / r.maxTokens * 100
}

// statusLocked maps usage to a throttle status. Caller holds the lock.
func (r *RateLimiter) statusLocked() ThrottleStatus {
	usage := r.usageLocked()
	switch {
	case usage >= 100:
		return ThrottleRateLimited
	case usage >= r.threshold:
		return ThrottleThrottled
	default:
		return ThrottleNormal
	}
}

// notifyLocked fires the status callback if the status transitioned.
// Caller holds the lock; the callback is invoked after release.
func (r *RateLimiter) notifyLocked() func() {
	status := r.statusLocked()
	if status == r.lastStatus || r.onChange == nil {
		r.lastStatus = status
		return nil
	}
	r.lastStatus = status
	fn := r.onChange
	usage := r.usageLocked()
	return func() { fn(status, usage) }
}

// Acquire tries to take n tokens. Returns (true, 0) on success or
// (false, wait) with the time until n tokens will be available. Never blocks.
func (r *RateLimiter) Acquire(n float64) (bool, time.Duration) {
	r.mu.Lock()
	r.refill()

	var ok bool
	var wait time.Duration
	if r.tokens >= n {
		r.tokens -= n
		ok = true
	} else {
		deficit := n - r.tokens
		wait = time.Duration(deficit / r.refillRate * float64(time.Second))
	}

	notify := r.notifyLocked()
	r.mu.Unlock()

	if notify != nil {
		notify()
	}
	return ok, wait
}

// AcquireAndWait loops acquire-sleep-retry until admitted or ctx is done.
func (r *RateLimiter) AcquireAndWait(ctx context.Context, n float64) error {
	for {
		ok, wait := r.Acquire(n)
		if ok {
			return nil
		}
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// AcquireWithThrottling behaves like AcquireAndWait but adds a proportional
// artificial delay (50-500 ms) once usage crosses the threshold, so load
// backs off before the hard limit is hit.
func (r *RateLimiter) AcquireWithThrottling(ctx context.Context, n float64) error {
	if d := r.throttleDelay(); d > 0 {
		if err := r.sleep(ctx, d); err != nil {
			return err
		}
	}
	return r.AcquireAndWait(ctx, n)
}

// throttleDelay scales linearly from 50 ms at the threshold to 500 ms at
// full consumption. Zero below the threshold.
func (r *RateLimiter) throttleDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()

	usage := r.usageLocked()
	if usage < r.threshold {
		return 0
	}

	span := 100 - r.threshold
	frac := 1.0
	if span > 0 {
		frac = (usage - r.threshold) / span
		if frac > 1 {
			frac = 1
		}
	}
	const minDelay, maxDelay = 50 * time.Millisecond, 500 * time.Millisecond
	return minDelay + time.Duration(frac*float64(maxDelay-minDelay))
}

// GetCurrentUsage returns consumed capacity as a percentage (0-100).
// Idempotent under repeated reads with no further consumption.
func (r *RateLimiter) GetCurrentUsage() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	return r.usageLocked()
}

// GetThrottleStatus returns the current throttle status.
func (r *RateLimiter) GetThrottleStatus() ThrottleStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	return r.statusLocked()
}
