package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
)

// MockSyncStateStore is a mock implementation of SyncStateStore for testing
type MockSyncStateStore struct {
	mu     sync.RWMutex
	states map[string]*domain.SyncState

	// Custom behavior hooks (optional)
	SaveFn func(state *domain.SyncState) error
}

// NewMockSyncStateStore creates a new MockSyncStateStore
func NewMockSyncStateStore() *MockSyncStateStore {
	return &MockSyncStateStore{
		states: make(map[string]*domain.SyncState),
	}
}

func (m *MockSyncStateStore) Save(ctx context.Context, state *domain.SyncState) error {
	if m.SaveFn != nil {
		if err := m.SaveFn(state); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *state
	m.states[state.AccountID] = &cp
	return nil
}

func (m *MockSyncStateStore) Get(ctx context.Context, accountID string) (*domain.SyncState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[accountID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *state
	return &cp, nil
}

func (m *MockSyncStateStore) List(ctx context.Context) ([]*domain.SyncState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.SyncState, 0, len(m.states))
	for _, state := range m.states {
		cp := *state
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (m *MockSyncStateStore) Delete(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[accountID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.states, accountID)
	return nil
}

func (m *MockSyncStateStore) UpdateStatus(ctx context.Context, accountID string, status domain.SyncStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	state.Status = status
	return nil
}

func (m *MockSyncStateStore) UpdateCursor(ctx context.Context, accountID string, cursor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	state.Cursor = cursor
	return nil
}

// MockAdaptiveStateStore is a mock implementation of AdaptiveStateStore for testing
type MockAdaptiveStateStore struct {
	mu     sync.RWMutex
	states map[string]*domain.AdaptiveState
}

// NewMockAdaptiveStateStore creates a new MockAdaptiveStateStore
func NewMockAdaptiveStateStore() *MockAdaptiveStateStore {
	return &MockAdaptiveStateStore{
		states: make(map[string]*domain.AdaptiveState),
	}
}

func (m *MockAdaptiveStateStore) Save(ctx context.Context, state *domain.AdaptiveState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *state
	m.states[state.AccountID] = &cp
	return nil
}

func (m *MockAdaptiveStateStore) Get(ctx context.Context, accountID string) (*domain.AdaptiveState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[accountID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *state
	return &cp, nil
}

func (m *MockAdaptiveStateStore) Delete(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[accountID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.states, accountID)
	return nil
}
