package services

import (
	"sync"
	"time"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
)

// CircuitBreaker gates sync attempts per provider. Repeated transient or
// unknown failures open it; permanent failures are not evidence the provider
// is degraded and do not count. Shared across all accounts of one provider,
// updated atomically per attempt.
type CircuitBreaker struct {
	mu        sync.Mutex
	provider  domain.ProviderType
	threshold int
	coolDown  time.Duration

	state         domain.BreakerState
	failures      int
	lastChange    time.Time
	trialInFlight bool

	now func() time.Time
}

// NewCircuitBreaker creates a closed breaker. threshold is the consecutive
// transient-failure count that opens it; coolDown is how long it stays open
// before allowing a half-open trial.
func NewCircuitBreaker(provider domain.ProviderType, threshold int, coolDown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if coolDown <= 0 {
		coolDown = time.Minute
	}
	return &CircuitBreaker{
		provider:  provider,
		threshold: threshold,
		coolDown:  coolDown,
		state:     domain.BreakerClosed,
		now:       time.Now,
	}
}

// Allow reports whether an attempt may proceed. In half-open state only one
// trial attempt is admitted at a time.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case domain.BreakerClosed:
		return true
	case domain.BreakerOpen:
		if b.now().Sub(b.lastChange) >= b.coolDown {
			b.transition(domain.BreakerHalfOpen)
			b.trialInFlight = true
			return true
		}
		return false
	case domain.BreakerHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	}
	return false
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.trialInFlight = false
	if b.state != domain.BreakerClosed {
		b.transition(domain.BreakerClosed)
	}
}

// RecordFailure counts a failed attempt. Permanent classifications are
// ignored. A half-open trial failure reopens the breaker immediately.
func (b *CircuitBreaker) RecordFailure(class domain.ErrorClass) {
	if class == domain.ErrorClassPermanent {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialInFlight = false

	switch b.state {
	case domain.BreakerHalfOpen:
		b.transition(domain.BreakerOpen)
	case domain.BreakerClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.transition(domain.BreakerOpen)
		}
	}
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() domain.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Provider returns the provider this breaker guards.
func (b *CircuitBreaker) Provider() domain.ProviderType {
	return b.provider
}

// transition records a state change. Caller holds the lock.
func (b *CircuitBreaker) transition(to domain.BreakerState) {
	b.state = to
	b.lastChange = b.now()
}
