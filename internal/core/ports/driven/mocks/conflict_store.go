package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
)

// MockAuditStore is a mock implementation of ConflictAuditStore for testing
type MockAuditStore struct {
	mu      sync.RWMutex
	records []*domain.ConflictAudit
}

// NewMockAuditStore creates a new MockAuditStore
func NewMockAuditStore() *MockAuditStore {
	return &MockAuditStore{}
}

func (m *MockAuditStore) Append(ctx context.Context, audit *domain.ConflictAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *audit
	m.records = append(m.records, &cp)
	return nil
}

func (m *MockAuditStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]*domain.ConflictAudit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.ConflictAudit
	for _, a := range m.records {
		if accountID == "" || a.AccountID == accountID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResolvedAt.After(out[j].ResolvedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Helper methods for testing

func (m *MockAuditStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MockAuditStore) Last() *domain.ConflictAudit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.records) == 0 {
		return nil
	}
	cp := *m.records[len(m.records)-1]
	return &cp
}

// MockPreferenceStore is a mock implementation of PreferenceStore for testing
type MockPreferenceStore struct {
	mu    sync.RWMutex
	prefs map[string]*domain.ConflictPreference // key: accountID:type
}

// NewMockPreferenceStore creates a new MockPreferenceStore
func NewMockPreferenceStore() *MockPreferenceStore {
	return &MockPreferenceStore{
		prefs: make(map[string]*domain.ConflictPreference),
	}
}

func (m *MockPreferenceStore) SavePreference(ctx context.Context, pref *domain.ConflictPreference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *pref
	m.prefs[pref.AccountID+":"+string(pref.Type)] = &cp
	return nil
}

func (m *MockPreferenceStore) GetPreference(ctx context.Context, accountID string, conflictType domain.ConflictType) (*domain.ConflictPreference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pref, ok := m.prefs[accountID+":"+string(conflictType)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *pref
	return &cp, nil
}

func (m *MockPreferenceStore) DeletePreference(ctx context.Context, accountID string, conflictType domain.ConflictType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := accountID + ":" + string(conflictType)
	if _, ok := m.prefs[key]; !ok {
		return domain.ErrNotFound
	}
	delete(m.prefs, key)
	return nil
}
