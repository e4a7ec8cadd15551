package mocks

import (
	"context"
	"sync"
)

// MockCredentialProvider is a mock implementation of CredentialProvider for
// testing. By default it returns a static token; hooks override behavior.
type MockCredentialProvider struct {
	mu           sync.Mutex
	Token        string
	refreshCalls int

	// Custom behavior hooks (optional)
	GetFn     func(accountID string) (string, error)
	RefreshFn func(accountID string) (string, error)
}

// NewMockCredentialProvider creates a provider that always returns token.
func NewMockCredentialProvider(token string) *MockCredentialProvider {
	return &MockCredentialProvider{Token: token}
}

func (m *MockCredentialProvider) GetValidAccessToken(ctx context.Context, accountID string) (string, error) {
	if m.GetFn != nil {
		return m.GetFn(accountID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Token, nil
}

func (m *MockCredentialProvider) Refresh(ctx context.Context, accountID string) (string, error) {
	m.mu.Lock()
	m.refreshCalls++
	m.mu.Unlock()

	if m.RefreshFn != nil {
		return m.RefreshFn(accountID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Token, nil
}

// RefreshCalls returns how many times Refresh was invoked.
func (m *MockCredentialProvider) RefreshCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshCalls
}
