package executor

import (
	"context"
	"sync"

	"github.com/getpup/keypool-orchestrator"
)

// MockRunner is a mock implementation of Runner for testing.
type MockRunner struct {
	mu sync.Mutex

	// ExecuteFunc is called by both Execute methods if set.
	ExecuteFunc func(ctx context.Context, op keypool.Operation, preferred *keypool.Credential) (Outcome, error)

	Calls []ExecuteCall
}

// ExecuteCall records the parameters of a single execute call.
type ExecuteCall struct {
	Operation   keypool.Operation
	PreferredID string
	MaxAttempts int
}

var _ Runner = (*MockRunner)(nil)

// NewMockRunner creates a new MockRunner with an empty call history.
func NewMockRunner() *MockRunner {
	return &MockRunner{
		Calls: make([]ExecuteCall, 0),
	}
}

// ExecuteWithRetry implements Runner.
func (m *MockRunner) ExecuteWithRetry(ctx context.Context, op keypool.Operation, maxAttempts int, rc *keypool.RequestContext) (Outcome, error) {
	return m.ExecuteWithCredential(ctx, op, nil, maxAttempts, rc)
}

// ExecuteWithCredential implements Runner.
// It records the call parameters, then:
// - If ExecuteFunc is set, calls and returns it
// - Otherwise, succeeds echoing the operation payload
func (m *MockRunner) ExecuteWithCredential(ctx context.Context, op keypool.Operation, preferred *keypool.Credential, maxAttempts int, rc *keypool.RequestContext) (Outcome, error) {
	call := ExecuteCall{Operation: op, MaxAttempts: maxAttempts}
	if preferred != nil {
		call.PreferredID = preferred.ID
	}

	m.mu.Lock()
	m.Calls = append(m.Calls, call)
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, op, preferred)
	}

	outcome := Outcome{Text: op.Payload, Model: op.Model, Attempts: 1}
	if preferred != nil {
		outcome.CredentialID = preferred.ID
	}
	return outcome, nil
}

// Snapshot returns a copy of the recorded calls.
func (m *MockRunner) Snapshot() []ExecuteCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecuteCall(nil), m.Calls...)
}

// Reset clears the call history.
func (m *MockRunner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = make([]ExecuteCall, 0)
}

// MockCaller is a mock implementation of keypool.Caller for testing.
type MockCaller struct {
	mu sync.Mutex

	// CallFunc is called by Call if set. Without it every call returns "ok".
	CallFunc func(ctx context.Context, cred keypool.Credential, req keypool.CallRequest) (string, error)

	Calls []CallerCall
}

// CallerCall records the parameters of a single upstream call.
type CallerCall struct {
	CredentialID string
	Request      keypool.CallRequest
}

var _ keypool.Caller = (*MockCaller)(nil)

// NewMockCaller creates a new MockCaller with an empty call history.
func NewMockCaller() *MockCaller {
	return &MockCaller{
		Calls: make([]CallerCall, 0),
	}
}

// Call implements keypool.Caller.
func (m *MockCaller) Call(ctx context.Context, cred keypool.Credential, req keypool.CallRequest) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, CallerCall{CredentialID: cred.ID, Request: req})
	m.mu.Unlock()

	if m.CallFunc != nil {
		return m.CallFunc(ctx, cred, req)
	}
	return "ok", nil
}

// CredentialIDs returns the credential id of every call in order.
func (m *MockCaller) CredentialIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.Calls))
	for _, c := range m.Calls {
		ids = append(ids, c.CredentialID)
	}
	return ids
}

// CallCount returns the number of recorded calls.
func (m *MockCaller) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Reset clears the call history.
func (m *MockCaller) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = make([]CallerCall, 0)
}
