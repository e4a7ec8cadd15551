package services

import (
	"context"
	"testing"
	"time"
)

// testClock is a manually advanced clock for limiter tests
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// newTestLimiter creates a limiter on a manual clock with sleeps disabled
func newTestLimiter(t *testing.T, cfg RateLimiterConfig) (*RateLimiter, *testClock) {
	t.Helper()
	rl, err := NewRateLimiter(cfg)
	if err != nil {
		t.Fatalf("NewRateLimiter: %v", err)
	}
	clock := newTestClock()
	rl.now = clock.Now
	rl.lastRefill = clock.Now()
	rl.sleep = func(ctx context.Context, d time.Duration) error {
		clock.Advance(d)
		return nil
	}
	return rl, clock
}

// TestRateLimiter_AcquireDepletes tests basic token consumption
func TestRateLimiter_AcquireDepletes(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimiterConfig{MaxTokens: 10, RefillRate: 1})

	for i := 0; i < 10; i++ {
		ok, _ := rl.Acquire(1)
		if !ok {
			t.Fatalf("acquire %d should succeed", i)
		}
	}

	ok, wait := rl.Acquire(1)
	if ok {
		t.Fatal("acquire on empty bucket should fail")
	}
	if wait != time.Second {
		t.Errorf("expected 1s wait for 1 token at 1/s, got %s", wait)
	}
}

// TestRateLimiter_Refill tests that elapsed time restores tokens up to the cap
func TestRateLimiter_Refill(t *testing.T) {
	rl, clock := newTestLimiter(t, RateLimiterConfig{MaxTokens: 10, RefillRate: 2})

	for i := 0; i < 10; i++ {
		rl.Acquire(1)
	}
	if ok, _ := rl.Acquire(1); ok {
		t.Fatal("bucket should be empty")
	}

	clock.Advance(2 * time.Second) // 4 tokens back
	for i := 0; i < 4; i++ {
		if ok, _ := rl.Acquire(1); !ok {
			t.Fatalf("acquire %d after refill should succeed", i)
		}
	}
	if ok, _ := rl.Acquire(1); ok {
		t.Fatal("only 4 tokens should have refilled")
	}

	// Refill never exceeds capacity
	clock.Advance(time.Hour)
	if usage := rl.GetCurrentUsage(); usage != 0 {
		t.Errorf("expected full bucket, usage %f", usage)
	}
}

// TestRateLimiter_AcquireAndWait tests blocking admission via the fake sleep
func TestRateLimiter_AcquireAndWait(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimiterConfig{MaxTokens: 5, RefillRate: 5})

	for i := 0; i < 5; i++ {
		rl.Acquire(1)
	}

	// Fake sleep advances the clock, so this terminates deterministically
	if err := rl.AcquireAndWait(context.Background(), 3); err != nil {
		t.Fatalf("AcquireAndWait: %v", err)
	}
}

// TestRateLimiter_AcquireAndWaitCanceled tests that cancellation aborts the wait
func TestRateLimiter_AcquireAndWaitCanceled(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimiterConfig{MaxTokens: 1, RefillRate: 1})
	rl.Acquire(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rl.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	if err := rl.AcquireAndWait(ctx, 1); err == nil {
		t.Fatal("expected context error")
	}
}

// TestRateLimiter_UsageIdempotent tests that reads do not consume capacity
func TestRateLimiter_UsageIdempotent(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimiterConfig{MaxTokens: 10, RefillRate: 0.001})

	for i := 0; i < 5; i++ {
		rl.Acquire(1)
	}
	first := rl.GetCurrentUsage()
	for i := 0; i < 10; i++ {
		if got := rl.GetCurrentUsage(); got != first {
			t.Fatalf("usage changed across reads: %f -> %f", first, got)
		}
	}
	if first < 49 || first > 51 {
		t.Errorf("expected ~50%% usage, got %f", first)
	}
}

// TestRateLimiter_ThrottleStatusLadder tests status mapping by usage
func TestRateLimiter_ThrottleStatusLadder(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimiterConfig{MaxTokens: 10, RefillRate: 0.001, ThrottleThreshold: 80})

	if got := rl.GetThrottleStatus(); got != ThrottleNormal {
		t.Errorf("expected normal, got %s", got)
	}

	for i := 0; i < 8; i++ {
		rl.Acquire(1)
	}
	if got := rl.GetThrottleStatus(); got != ThrottleThrottled {
		t.Errorf("expected throttled at 80%%, got %s", got)
	}

	rl.Acquire(2)
	if got := rl.GetThrottleStatus(); got != ThrottleRateLimited {
		t.Errorf("expected rate-limited at 100%%, got %s", got)
	}
}

// TestRateLimiter_StatusCallbackFiresOnTransitionsOnly tests callback dedup
func TestRateLimiter_StatusCallbackFiresOnTransitionsOnly(t *testing.T) {
	rl, clock := newTestLimiter(t, RateLimiterConfig{MaxTokens: 10, RefillRate: 1, ThrottleThreshold: 80})

	var transitions []ThrottleStatus
	rl.OnStatusChange(func(status ThrottleStatus, usage float64) {
		transitions = append(transitions, status)
	})

	// Climb to throttled, then rate-limited
	for i := 0; i < 10; i++ {
		rl.Acquire(1)
	}
	// Multiple acquires at the same status must not re-fire
	rl.Acquire(1)
	rl.Acquire(1)

	// Recover to normal
	clock.Advance(time.Minute)
	rl.Acquire(1)

	want := []ThrottleStatus{ThrottleThrottled, ThrottleRateLimited, ThrottleNormal}
	if len(transitions) != len(want) {
		t.Fatalf("expected %d transitions, got %d: %v", len(want), len(transitions), transitions)
	}
	for i, s := range want {
		if transitions[i] != s {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], s)
		}
	}
}

// TestRateLimiter_ThrottleDelayScaling tests the proactive delay ramp
func TestRateLimiter_ThrottleDelayScaling(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimiterConfig{MaxTokens: 100, RefillRate: 0.001, ThrottleThreshold: 80})

	if d := rl.throttleDelay(); d != 0 {
		t.Errorf("expected no delay below threshold, got %s", d)
	}

	rl.Acquire(80)
	atThreshold := rl.throttleDelay()
	if atThreshold < 50*time.Millisecond || atThreshold > 100*time.Millisecond {
		t.Errorf("expected ~50ms at threshold, got %s", atThreshold)
	}

	rl.Acquire(20)
	atFull := rl.throttleDelay()
	if atFull != 500*time.Millisecond {
		t.Errorf("expected 500ms at full usage, got %s", atFull)
	}
}

// TestRateLimiter_AcquireWithThrottling tests that the artificial delay happens
func TestRateLimiter_AcquireWithThrottling(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimiterConfig{MaxTokens: 10, RefillRate: 10, ThrottleThreshold: 50})

	var slept []time.Duration
	rl.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	rl.Acquire(8)
	if err := rl.AcquireWithThrottling(context.Background(), 1); err != nil {
		t.Fatalf("AcquireWithThrottling: %v", err)
	}
	if len(slept) == 0 {
		t.Fatal("expected a throttle delay above the threshold")
	}
	if slept[0] < 50*time.Millisecond || slept[0] > 500*time.Millisecond {
		t.Errorf("delay out of range: %s", slept[0])
	}
}

// TestNewRateLimiter_Validation tests constructor input checks
func TestNewRateLimiter_Validation(t *testing.T) {
	if _, err := NewRateLimiter(RateLimiterConfig{MaxTokens: 0, RefillRate: 1}); err == nil {
		t.Error("expected error for zero max tokens")
	}
	if _, err := NewRateLimiter(RateLimiterConfig{MaxTokens: 1, RefillRate: 0}); err == nil {
		t.Error("expected error for zero refill rate")
	}

	rl, err := NewRateLimiter(RateLimiterConfig{MaxTokens: 1, RefillRate: 1, ThrottleThreshold: 150})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rl.threshold != 80 {
		t.Errorf("expected threshold default 80, got %f", rl.threshold)
	}
}
