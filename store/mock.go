package store

import (
	"context"
	"sync"

	"github.com/getpup/keypool-orchestrator"
)

// MockCredentialStore is a configurable mock implementation of CredentialStore
// for use in tests. It allows setting up expected return values, tracking method
// calls, and injecting errors for testing error paths.
type MockCredentialStore struct {
	mu sync.RWMutex

	// ListByOwnerAndProviderFunc is called by ListByOwnerAndProvider if set.
	ListByOwnerAndProviderFunc func(ctx context.Context, ownerID, provider string) ([]keypool.Credential, error)

	// UpdateStatusFunc is called by UpdateStatus if set.
	UpdateStatusFunc func(ctx context.Context, id string, update StatusUpdate) error

	// Call tracking
	ListByOwnerAndProviderCalls []ListByOwnerAndProviderCall
	UpdateStatusCalls           []UpdateStatusCall
}

// Call tracking structs
type ListByOwnerAndProviderCall struct {
	OwnerID  string
	Provider string
}

type UpdateStatusCall struct {
	ID     string
	Update StatusUpdate
}

// NewMockCredentialStore creates a new mock credential store.
func NewMockCredentialStore() *MockCredentialStore {
	return &MockCredentialStore{}
}

// ListByOwnerAndProvider implements CredentialStore.
func (m *MockCredentialStore) ListByOwnerAndProvider(ctx context.Context, ownerID, provider string) ([]keypool.Credential, error) {
	m.mu.Lock()
	m.ListByOwnerAndProviderCalls = append(m.ListByOwnerAndProviderCalls, ListByOwnerAndProviderCall{
		OwnerID:  ownerID,
		Provider: provider,
	})
	m.mu.Unlock()

	if m.ListByOwnerAndProviderFunc != nil {
		return m.ListByOwnerAndProviderFunc(ctx, ownerID, provider)
	}

	return []keypool.Credential{}, nil
}

// UpdateStatus implements CredentialStore.
func (m *MockCredentialStore) UpdateStatus(ctx context.Context, id string, update StatusUpdate) error {
	m.mu.Lock()
	m.UpdateStatusCalls = append(m.UpdateStatusCalls, UpdateStatusCall{
		ID:     id,
		Update: update,
	})
	m.mu.Unlock()

	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, update)
	}

	return nil
}

// UpdatesFor returns the tracked updates for one credential, in call order.
func (m *MockCredentialStore) UpdatesFor(id string) []StatusUpdate {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var updates []StatusUpdate
	for _, call := range m.UpdateStatusCalls {
		if call.ID == id {
			updates = append(updates, call.Update)
		}
	}
	return updates
}

// Reset clears all call tracking data.
func (m *MockCredentialStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ListByOwnerAndProviderCalls = nil
	m.UpdateStatusCalls = nil
}
