package lifecycle

import (
	"context"
	"sync"

	"github.com/getpup/keypool-orchestrator"
)

// MockProber is a configurable mock implementation of CredentialProber for tests.
// Without ProbeFunc every probe succeeds and the credential is reported Active.
// It does not persist anything.
type MockProber struct {
	mu sync.Mutex

	// ProbeFunc is called by Probe and ProbeAll if set.
	ProbeFunc func(ctx context.Context, cred keypool.Credential) (ProbeResult, error)

	// ProbedIDs records the id of every probed credential in call order.
	ProbedIDs []string
}

var _ CredentialProber = (*MockProber)(nil)

// NewMockProber creates a new mock prober.
func NewMockProber() *MockProber {
	return &MockProber{}
}

// Probe implements CredentialProber.
func (m *MockProber) Probe(ctx context.Context, cred keypool.Credential) (ProbeResult, error) {
	m.mu.Lock()
	m.ProbedIDs = append(m.ProbedIDs, cred.ID)
	m.mu.Unlock()

	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx, cred)
	}

	cred.Status = keypool.StatusActive
	return ProbeResult{Credential: cred, Usable: true, Status: keypool.StatusActive}, nil
}

// ProbeAll implements CredentialProber by probing sequentially.
func (m *MockProber) ProbeAll(ctx context.Context, creds []keypool.Credential) ([]ProbeResult, error) {
	results := make([]ProbeResult, len(creds))
	for i, cred := range creds {
		result, err := m.Probe(ctx, cred)
		if err != nil {
			return results, err
		}
		results[i] = result
	}
	return results, nil
}

// Probed returns a copy of the probed ids.
func (m *MockProber) Probed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.ProbedIDs...)
}

// Reset clears all call tracking data.
func (m *MockProber) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ProbedIDs = nil
}
