package mocks

import "sync"

// MockNetworkMonitor is a mock implementation of NetworkMonitor for testing.
// Tests flip connectivity with SetOnline and subscribers fire synchronously.
type MockNetworkMonitor struct {
	mu          sync.Mutex
	online      bool
	subscribers map[int]func(online bool)
	nextID      int
}

// NewMockNetworkMonitor creates a monitor in the given initial state.
func NewMockNetworkMonitor(online bool) *MockNetworkMonitor {
	return &MockNetworkMonitor{
		online:      online,
		subscribers: make(map[int]func(online bool)),
	}
}

func (m *MockNetworkMonitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *MockNetworkMonitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subscribers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

// SetOnline changes connectivity and notifies subscribers on transitions.
func (m *MockNetworkMonitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	var fns []func(bool)
	for _, fn := range m.subscribers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}
