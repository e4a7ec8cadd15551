package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
)

// MockEventBus is a mock implementation of EventBus for testing. It records
// every published event and delivers synchronously to subscribers, so tests
// can assert on ordering without sleeps.
type MockEventBus struct {
	mu        sync.Mutex
	published []domain.Event
	handlers  map[domain.EventCategory]map[int]func(domain.Event)
	nextID    int
	closed    bool
}

// NewMockEventBus creates a new MockEventBus
func NewMockEventBus() *MockEventBus {
	return &MockEventBus{
		handlers: make(map[domain.EventCategory]map[int]func(domain.Event)),
	}
}

func (m *MockEventBus) Publish(ctx context.Context, event domain.Event) error {
	m.mu.Lock()
	m.published = append(m.published, event)
	var fns []func(domain.Event)
	for _, fn := range m.handlers[event.Category] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
	return nil
}

func (m *MockEventBus) Subscribe(category domain.EventCategory, handler func(domain.Event)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handlers[category] == nil {
		m.handlers[category] = make(map[int]func(domain.Event))
	}
	id := m.nextID
	m.nextID++
	m.handlers[category][id] = handler

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.handlers[category], id)
	}, nil
}

func (m *MockEventBus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = make(map[domain.EventCategory]map[int]func(domain.Event))
	m.closed = true
	return nil
}

// Helper methods for testing

// Published returns a copy of every event published so far.
func (m *MockEventBus) Published() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Event, len(m.published))
	copy(out, m.published)
	return out
}

// PublishedOfType returns published events matching the given type.
func (m *MockEventBus) PublishedOfType(typ domain.EventType) []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for _, ev := range m.published {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (m *MockEventBus) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}
