package keypool

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// RequestContext is the per-run memory of credential outcomes.
// It records credentials that failed during the run, so they are not selected again,
// and credentials promoted to Active during the run, so they are reused first.
// A RequestContext is shared by every branch of a run and is safe for concurrent use.
type RequestContext struct {
	runID string

	mu       sync.RWMutex
	failed   map[string]struct{}
	promoted map[string]struct{}
}

// NewRequestContext creates an empty RequestContext with a fresh run ID.
func NewRequestContext() *RequestContext {
	return &RequestContext{
		runID:    uuid.New().String(),
		failed:   make(map[string]struct{}),
		promoted: make(map[string]struct{}),
	}
}

// RunID returns the identifier of the run this context belongs to.
func (rc *RequestContext) RunID() string {
	return rc.runID
}

// MarkFailed records that the credential failed during this run.
// A failed credential is no longer considered promoted.
func (rc *RequestContext) MarkFailed(credentialID string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.failed[credentialID] = struct{}{}
	delete(rc.promoted, credentialID)
}

// MarkPromoted records that the credential was promoted to Active during this run.
func (rc *RequestContext) MarkPromoted(credentialID string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if _, failed := rc.failed[credentialID]; failed {
		return
	}
	rc.promoted[credentialID] = struct{}{}
}

// HasFailed reports whether the credential failed during this run.
func (rc *RequestContext) HasFailed(credentialID string) bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	_, ok := rc.failed[credentialID]
	return ok
}

// IsPromoted reports whether the credential was promoted during this run.
func (rc *RequestContext) IsPromoted(credentialID string) bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	_, ok := rc.promoted[credentialID]
	return ok
}

// Failed returns the sorted IDs of credentials that failed during this run.
func (rc *RequestContext) Failed() []string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return sortedKeys(rc.failed)
}

// Promoted returns the sorted IDs of credentials promoted during this run.
func (rc *RequestContext) Promoted() []string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return sortedKeys(rc.promoted)
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type requestContextKey struct{}

// WithRequestContext returns a copy of ctx carrying rc.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom returns the RequestContext carried by ctx, if any.
func RequestContextFrom(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok && rc != nil
}
