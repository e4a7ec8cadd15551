package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driven"
)

// MockProviderAdapter is a scripted implementation of ProviderAdapter for
// testing. Tests preload listing pages, canonical records, and delta results;
// hooks inject failures per call.
type MockProviderAdapter struct {
	mu       sync.Mutex
	provider domain.ProviderType

	pages   map[string]driven.ListPageResult
	records map[string]*domain.EmailRecord
	deltas  []driven.DeltaResult
	cursor  string

	fetchCalls map[string]int

	// Custom behavior hooks (optional)
	ListPageFn     func(pageToken string) (driven.ListPageResult, error)
	FetchItemFn    func(itemID string, call int) error
	FetchDeltaFn   func(cursor string) (driven.DeltaResult, error)
	LatestCursorFn func() (string, error)
}

// NewMockProviderAdapter creates an empty adapter for the provider.
func NewMockProviderAdapter(provider domain.ProviderType) *MockProviderAdapter {
	return &MockProviderAdapter{
		provider:   provider,
		pages:      make(map[string]driven.ListPageResult),
		records:    make(map[string]*domain.EmailRecord),
		fetchCalls: make(map[string]int),
	}
}

func (m *MockProviderAdapter) Provider() domain.ProviderType { return m.provider }

// AddPage scripts the listing page returned for a page token ("" is the first).
func (m *MockProviderAdapter) AddPage(token string, page driven.ListPageResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[token] = page
}

// AddRecord scripts the canonical record returned for an item id.
func (m *MockProviderAdapter) AddRecord(itemID string, rec *domain.EmailRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[itemID] = rec
}

// QueueDelta appends a delta result; successive FetchDelta calls consume them
// in order, the last one repeating.
func (m *MockProviderAdapter) QueueDelta(delta driven.DeltaResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deltas = append(m.deltas, delta)
}

// SetCursor scripts the value LatestCursor returns.
func (m *MockProviderAdapter) SetCursor(cursor string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor = cursor
}

func (m *MockProviderAdapter) ListPage(ctx context.Context, pageToken string) (driven.ListPageResult, error) {
	if m.ListPageFn != nil {
		return m.ListPageFn(pageToken)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	page, ok := m.pages[pageToken]
	if !ok {
		return driven.ListPageResult{}, nil
	}
	return page, nil
}

func (m *MockProviderAdapter) FetchItem(ctx context.Context, itemID string) (driven.RawMessage, error) {
	m.mu.Lock()
	m.fetchCalls[itemID]++
	call := m.fetchCalls[itemID]
	m.mu.Unlock()

	if m.FetchItemFn != nil {
		if err := m.FetchItemFn(itemID, call); err != nil {
			return driven.RawMessage{}, err
		}
	}
	return driven.RawMessage{ItemID: itemID}, nil
}

func (m *MockProviderAdapter) Normalize(raw driven.RawMessage) (*domain.EmailRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[raw.ItemID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MockProviderAdapter) FetchDelta(ctx context.Context, cursor string) (driven.DeltaResult, error) {
	if m.FetchDeltaFn != nil {
		return m.FetchDeltaFn(cursor)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.deltas) == 0 {
		return driven.DeltaResult{NewCursor: cursor}, nil
	}
	delta := m.deltas[0]
	if len(m.deltas) > 1 {
		m.deltas = m.deltas[1:]
	}
	return delta, nil
}

func (m *MockProviderAdapter) LatestCursor(ctx context.Context) (string, error) {
	if m.LatestCursorFn != nil {
		return m.LatestCursorFn()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor, nil
}

// FetchCalls returns how many times an item was fetched.
func (m *MockProviderAdapter) FetchCalls(itemID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls[itemID]
}
