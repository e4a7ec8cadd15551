package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
)

// MockFailureStore is a mock implementation of FailureStore for testing
type MockFailureStore struct {
	mu       sync.RWMutex
	failures map[string]*domain.SyncFailure
}

// NewMockFailureStore creates a new MockFailureStore
func NewMockFailureStore() *MockFailureStore {
	return &MockFailureStore{
		failures: make(map[string]*domain.SyncFailure),
	}
}

func (m *MockFailureStore) Save(ctx context.Context, failure *domain.SyncFailure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *failure
	m.failures[failure.ID] = &cp
	return nil
}

func (m *MockFailureStore) Get(ctx context.Context, id string) (*domain.SyncFailure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.failures[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *MockFailureStore) GetOpen(ctx context.Context, accountID, emailID string) (*domain.SyncFailure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, f := range m.failures {
		if f.AccountID == accountID && f.EmailID == emailID && f.Status.Open() {
			cp := *f
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockFailureStore) ListByAccount(ctx context.Context, accountID string) ([]*domain.SyncFailure, error) {
	return m.list(func(f *domain.SyncFailure) bool {
		return accountID == "" || f.AccountID == accountID
	})
}

func (m *MockFailureStore) ListDue(ctx context.Context, accountID string, now time.Time) ([]*domain.SyncFailure, error) {
	return m.list(func(f *domain.SyncFailure) bool {
		if accountID != "" && f.AccountID != accountID {
			return false
		}
		return f.Status == domain.FailureStatusPending &&
			f.NextRetryAt != nil && !f.NextRetryAt.After(now)
	})
}

func (m *MockFailureStore) ListByStatus(ctx context.Context, accountID string, status domain.FailureStatus) ([]*domain.SyncFailure, error) {
	return m.list(func(f *domain.SyncFailure) bool {
		if accountID != "" && f.AccountID != accountID {
			return false
		}
		return f.Status == status
	})
}

func (m *MockFailureStore) Stats(ctx context.Context, accountID string) (*domain.FailureStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &domain.FailureStats{AccountID: accountID}
	for _, f := range m.failures {
		if accountID != "" && f.AccountID != accountID {
			continue
		}
		switch f.Status {
		case domain.FailureStatusPending:
			stats.PendingCount++
		case domain.FailureStatusRetrying:
			stats.RetryingCount++
		case domain.FailureStatusResolved:
			stats.ResolvedCount++
		case domain.FailureStatusExhausted:
			stats.ExhaustedCount++
		case domain.FailureStatusPermanent:
			stats.PermanentCount++
		case domain.FailureStatusDismissed:
			stats.DismissedCount++
		}
	}
	return stats, nil
}

func (m *MockFailureStore) DeleteByAccount(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, f := range m.failures {
		if f.AccountID == accountID {
			delete(m.failures, id)
		}
	}
	return nil
}

func (m *MockFailureStore) list(match func(*domain.SyncFailure) bool) ([]*domain.SyncFailure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.SyncFailure
	for _, f := range m.failures {
		if match(f) {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstFailedAt.Before(out[j].FirstFailedAt) })
	return out, nil
}

// Helper methods for testing

func (m *MockFailureStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = make(map[string]*domain.SyncFailure)
}

func (m *MockFailureStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.failures)
}
