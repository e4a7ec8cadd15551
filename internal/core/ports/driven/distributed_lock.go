package driven

import (
	"context"
	"time"
)

// DistributedLock coordinates per-account sync across instances.
// Single-instance deployments may run without one; the orchestrator's
// in-process guard still prevents concurrent syncs for the same account.
type DistributedLock interface {
	// Acquire attempts to acquire a named lock with the given TTL.
	// Returns true if acquired, false if already held by another instance.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release releases a named lock. Best-effort; TTL implementations
	// auto-expire anyway. Safe to call even if the lock is not held.
	Release(ctx context.Context, name string) error

	// Extend extends the TTL of a currently held lock.
	// Returns error if the lock is not held by this instance.
	Extend(ctx context.Context, name string, ttl time.Duration) error

	// Ping checks if the lock backend is healthy.
	Ping(ctx context.Context) error
}
