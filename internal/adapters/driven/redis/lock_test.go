package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newTestLock starts a miniredis and returns a lock backed by it
func newTestLock(t *testing.T) (*Lock, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewLock(client), mr
}

// TestLock_AcquireAndContend tests basic SETNX semantics across two holders
func TestLock_AcquireAndContend(t *testing.T) {
	lock1, mr := newTestLock(t)
	lock2 := NewLock(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	if lock1.OwnerID() == lock2.OwnerID() {
		t.Fatal("owner IDs must be unique per instance")
	}

	acquired, err := lock1.Acquire(ctx, "sync:acc-1", 10*time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !acquired {
		t.Fatal("expected first acquire to succeed")
	}

	acquired, err = lock2.Acquire(ctx, "sync:acc-1", 10*time.Second)
	if err != nil {
		t.Fatalf("contending Acquire: %v", err)
	}
	if acquired {
		t.Error("second holder must not acquire a held lock")
	}

	// Not reentrant: the same holder cannot re-acquire either
	acquired, _ = lock1.Acquire(ctx, "sync:acc-1", 10*time.Second)
	if acquired {
		t.Error("re-acquire of a held lock must fail")
	}

	// A different account's lock is independent
	acquired, err = lock2.Acquire(ctx, "sync:acc-2", 10*time.Second)
	if err != nil {
		t.Fatalf("Acquire other name: %v", err)
	}
	if !acquired {
		t.Error("locks with different names must not contend")
	}
}

// TestLock_ReleaseIsOwnerScoped tests that only the holder can release
func TestLock_ReleaseIsOwnerScoped(t *testing.T) {
	lock1, mr := newTestLock(t)
	lock2 := NewLock(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	if _, err := lock1.Acquire(ctx, "sync:acc-1", 10*time.Second); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// Foreign release is a silent no-op
	if err := lock2.Release(ctx, "sync:acc-1"); err != nil {
		t.Fatalf("foreign Release: %v", err)
	}
	acquired, _ := lock2.Acquire(ctx, "sync:acc-1", 10*time.Second)
	if acquired {
		t.Error("foreign release must not free the lock")
	}

	// Owner release frees it
	if err := lock1.Release(ctx, "sync:acc-1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	acquired, err := lock2.Acquire(ctx, "sync:acc-1", 10*time.Second)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	if !acquired {
		t.Error("expected acquire to succeed after owner release")
	}

	// Releasing an unheld lock is not an error
	if err := lock1.Release(ctx, "sync:never-held"); err != nil {
		t.Errorf("releasing an unheld lock: %v", err)
	}
}

// TestLock_TTLExpiry tests that a crashed holder's lock frees itself
func TestLock_TTLExpiry(t *testing.T) {
	lock1, mr := newTestLock(t)
	lock2 := NewLock(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	if _, err := lock1.Acquire(ctx, "sync:acc-1", 2*time.Second); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	mr.FastForward(3 * time.Second)

	acquired, err := lock2.Acquire(ctx, "sync:acc-1", 10*time.Second)
	if err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}
	if !acquired {
		t.Error("expected the expired lock to be acquirable")
	}

	// The original holder's release must not free the new holder's lock
	if err := lock1.Release(ctx, "sync:acc-1"); err != nil {
		t.Fatalf("stale Release: %v", err)
	}
	acquired, _ = lock1.Acquire(ctx, "sync:acc-1", 10*time.Second)
	if acquired {
		t.Error("stale release must not free the reacquired lock")
	}
}

// TestLock_Extend tests owner-scoped TTL extension
func TestLock_Extend(t *testing.T) {
	lock1, mr := newTestLock(t)
	lock2 := NewLock(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	if _, err := lock1.Acquire(ctx, "sync:acc-1", 2*time.Second); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := lock1.Extend(ctx, "sync:acc-1", 30*time.Second); err != nil {
		t.Fatalf("Extend: %v", err)
	}

	// The extension outlives the original TTL
	mr.FastForward(3 * time.Second)
	acquired, _ := lock2.Acquire(ctx, "sync:acc-1", 10*time.Second)
	if acquired {
		t.Error("extended lock must still be held")
	}

	// Non-holders cannot extend
	if err := lock2.Extend(ctx, "sync:acc-1", 30*time.Second); err == nil {
		t.Error("expected error extending a foreign lock")
	}
	if err := lock2.Extend(ctx, "sync:never-held", 30*time.Second); err == nil {
		t.Error("expected error extending an unheld lock")
	}
}

// TestLock_Ping tests backend health check
func TestLock_Ping(t *testing.T) {
	lock, _ := newTestLock(t)
	if err := lock.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
