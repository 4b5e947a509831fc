// Package upstream routes model calls to the client for each credential's provider.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/getpup/keypool-orchestrator"
)

// ErrUnknownProvider is returned for credentials whose provider has no route.
var ErrUnknownProvider = errors.New("unknown provider")

// Router is a keypool.Caller that dispatches on Credential.Provider.
type Router struct {
	mu     sync.RWMutex
	routes map[string]keypool.Caller
}

var _ keypool.Caller = (*Router)(nil)

// NewRouter creates a Router with the given provider routes.
func NewRouter(routes map[string]keypool.Caller) *Router {
	r := &Router{routes: make(map[string]keypool.Caller, len(routes))}
	for provider, caller := range routes {
		r.routes[provider] = caller
	}
	return r
}

// Handle registers caller for provider, replacing any previous route.
func (r *Router) Handle(provider string, caller keypool.Caller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[provider] = caller
}

// Supports reports whether provider has a route.
func (r *Router) Supports(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.routes[provider]
	return ok
}

// Providers returns the routed providers, sorted.
func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]string, 0, len(r.routes))
	for p := range r.routes {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	return providers
}

// Call implements keypool.Caller.
func (r *Router) Call(ctx context.Context, cred keypool.Credential, req keypool.CallRequest) (string, error) {
	r.mu.RLock()
	caller, ok := r.routes[cred.Provider]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, cred.Provider)
	}
	return caller.Call(ctx, cred, req)
}
