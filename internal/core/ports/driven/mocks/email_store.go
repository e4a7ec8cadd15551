package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driven"
)

// MockEmailStore is a mock implementation of EmailStore for testing
type MockEmailStore struct {
	mu      sync.RWMutex
	records map[string]*domain.EmailRecord

	// Custom behavior hooks (optional)
	UpsertFn func(rec *domain.EmailRecord) error
	GetFn    func(id string) (*domain.EmailRecord, error)
	PingFn   func() error
}

// NewMockEmailStore creates a new MockEmailStore
func NewMockEmailStore() *MockEmailStore {
	return &MockEmailStore{
		records: make(map[string]*domain.EmailRecord),
	}
}

func (m *MockEmailStore) Upsert(ctx context.Context, rec *domain.EmailRecord) error {
	if m.UpsertFn != nil {
		if err := m.UpsertFn(rec); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *MockEmailStore) Get(ctx context.Context, id string) (*domain.EmailRecord, error) {
	if m.GetFn != nil {
		return m.GetFn(id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MockEmailStore) Find(ctx context.Context, filter driven.EmailFilter) ([]*domain.EmailRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.EmailRecord
	for _, rec := range m.records {
		if filter.AccountID != "" && rec.AccountID != filter.AccountID {
			continue
		}
		if filter.ThreadID != "" && rec.ThreadID != filter.ThreadID {
			continue
		}
		if filter.Label != "" && !rec.HasLabel(filter.Label) {
			continue
		}
		if filter.DirtyOnly && !rec.Dirty() {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MockEmailStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *MockEmailStore) DeleteCachedByAccount(ctx context.Context, accountID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, rec := range m.records {
		if rec.AccountID != accountID || rec.Draft {
			continue
		}
		delete(m.records, id)
		removed++
	}
	return removed, nil
}

func (m *MockEmailStore) CountByAccount(ctx context.Context, accountID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, rec := range m.records {
		if rec.AccountID == accountID {
			count++
		}
	}
	return count, nil
}

func (m *MockEmailStore) Ping(ctx context.Context) error {
	if m.PingFn != nil {
		return m.PingFn()
	}
	return nil
}

// Helper methods for testing

func (m *MockEmailStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]*domain.EmailRecord)
}

func (m *MockEmailStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
