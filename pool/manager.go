// Package pool selects credentials from an owner's pool for a provider.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/getpup/keypool-orchestrator"
	"github.com/getpup/keypool-orchestrator/lifecycle"
	"github.com/getpup/keypool-orchestrator/metrics"
	"github.com/getpup/keypool-orchestrator/store"
	"golang.org/x/sync/singleflight"
)

// Config holds configuration for the pool Manager.
type Config struct {
	// Store is the credential store (required).
	Store store.CredentialStore

	// Prober promotes cooled-down credentials when the pool runs low (optional).
	// Without a Prober, Assign never probes.
	Prober lifecycle.CredentialProber

	// Lifecycle stamps handed-out credentials (default: a Manager over Store).
	Lifecycle *lifecycle.Manager

	// CooldownWindow is how long a RateLimited or Failed credential is skipped
	// after its last failure (default: 2m).
	CooldownWindow time.Duration

	// MinActive is the Active count below which Assign probes eligible
	// credentials for promotion (default: 5).
	MinActive int

	// Logger is for observability (optional).
	Logger keypool.Logger

	// Collector records assignment metrics (optional).
	Collector *metrics.Collector

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Manager hands out credentials from one owner's pool for one provider.
//
// Hand-outs are serialized per Manager and each handed-out credential is stamped
// with last-used, so concurrent callers sharing a Manager rotate through the pool.
// This is a soft reservation: another process may still pick the same credential.
type Manager struct {
	config   Config
	ownerID  string
	provider string
	mu       sync.Mutex
	probes   singleflight.Group
}

// New creates a new pool Manager bound to ownerID and provider.
// Applies default values for CooldownWindow and MinActive if zero.
func New(cfg Config, ownerID, provider string) *Manager {
	if cfg.CooldownWindow == 0 {
		cfg.CooldownWindow = 2 * time.Minute
	}
	if cfg.MinActive == 0 {
		cfg.MinActive = 5
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Lifecycle == nil {
		cfg.Lifecycle = lifecycle.New(lifecycle.Config{
			Store:     cfg.Store,
			Logger:    cfg.Logger,
			Collector: cfg.Collector,
			Now:       cfg.Now,
		})
	}

	return &Manager{
		config:   cfg,
		ownerID:  ownerID,
		provider: provider,
	}
}

// OwnerID returns the owner this manager is bound to.
func (m *Manager) OwnerID() string {
	return m.ownerID
}

// Provider returns the provider this manager is bound to.
func (m *Manager) Provider() string {
	return m.provider
}

// Assign returns up to count usable credentials, skipping any that already failed in rc.
//
// When at least count credentials are Active they are returned least-recently-used first
// without probing. When fewer than MinActive are Active, every cooled-down RateLimited and
// Failed credential is probed in parallel and the ones that pass are promoted; promoted
// credentials are returned first, then the previously Active ones. An empty result means
// the pool is exhausted for this run.
//
// Probing happens outside the hand-out lock so other callers with Active credentials
// are not held up. Concurrent promotions of one Manager share a single probe round.
func (m *Manager) Assign(ctx context.Context, count int, rc *keypool.RequestContext) ([]keypool.Credential, error) {
	if count <= 0 {
		return []keypool.Credential{}, nil
	}

	m.mu.Lock()
	p, err := m.load(ctx, rc)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	var eligible []keypool.Credential
	if len(p.active) < count && len(p.active) < m.config.MinActive && m.config.Prober != nil {
		eligible = p.eligible()
	}

	if len(eligible) == 0 {
		picked := p.active
		if len(picked) > count {
			picked = picked[:count]
		}
		assigned := m.handOut(ctx, picked)
		m.mu.Unlock()

		m.logAssigned(ctx, count, len(assigned), len(p.active))
		return assigned, nil
	}
	m.mu.Unlock()

	promoted := m.promote(ctx, eligible, rc)

	m.mu.Lock()
	defer m.mu.Unlock()

	p, err = m.load(ctx, rc)
	if err != nil {
		return nil, err
	}

	picked := make([]keypool.Credential, 0, len(promoted)+len(p.active))
	seen := make(map[string]bool, len(promoted))
	for _, cred := range promoted {
		if rc != nil && rc.HasFailed(cred.ID) {
			continue
		}
		seen[cred.ID] = true
		picked = append(picked, cred)
	}
	for _, cred := range p.active {
		if !seen[cred.ID] {
			picked = append(picked, cred)
		}
	}
	if len(picked) > count {
		picked = picked[:count]
	}

	assigned := m.handOut(ctx, picked)
	m.logAssigned(ctx, count, len(assigned), len(p.active))
	return assigned, nil
}

// handOut stamps picked and records the assignment. Callers hold m.mu.
func (m *Manager) handOut(ctx context.Context, picked []keypool.Credential) []keypool.Credential {
	assigned := make([]keypool.Credential, 0, len(picked))
	for _, cred := range picked {
		assigned = append(assigned, m.stamp(ctx, cred))
	}
	m.config.Collector.AddAssignments(len(assigned))
	return assigned
}

func (m *Manager) logAssigned(ctx context.Context, requested, assigned, active int) {
	if m.config.Logger != nil {
		m.config.Logger.Debug(ctx, "credentials assigned",
			"ownerID", m.ownerID, "provider", m.provider,
			"requested", requested, "assigned", assigned, "active", active)
	}
}

// Replacement returns one credential to retry with after a failure, excluding
// every credential that already failed in rc. Candidates are taken in order from:
// Active credentials promoted in this run, other Active credentials by LRU,
// cooled-down RateLimited credentials, then cooled-down Failed credentials.
// Lower tiers are returned unprobed. Returns keypool.ErrNoReplacement when no tier has a candidate.
func (m *Manager) Replacement(ctx context.Context, rc *keypool.RequestContext) (keypool.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.load(ctx, rc)
	if err != nil {
		return keypool.Credential{}, err
	}

	var promoted, others []keypool.Credential
	for _, cred := range p.active {
		if rc != nil && rc.IsPromoted(cred.ID) {
			promoted = append(promoted, cred)
		} else {
			others = append(others, cred)
		}
	}

	for tier, candidates := range [][]keypool.Credential{promoted, others, p.rateLimited, p.failed} {
		if len(candidates) == 0 {
			continue
		}

		m.config.Collector.IncReplacements(true)
		if m.config.Logger != nil {
			m.config.Logger.Debug(ctx, "replacement selected",
				"ownerID", m.ownerID, "provider", m.provider,
				"credentialID", candidates[0].ID, "tier", tier+1, "status", candidates[0].Status)
		}

		return m.stamp(ctx, candidates[0]), nil
	}

	m.config.Collector.IncReplacements(false)
	if m.config.Logger != nil {
		m.config.Logger.Info(ctx, "no replacement available",
			"ownerID", m.ownerID, "provider", m.provider,
			"coolingDown", p.coolingDown, "excluded", p.excluded)
	}

	return keypool.Credential{}, keypool.ErrNoReplacement
}

// Snapshot reports the pool's current composition.
func (m *Manager) Snapshot(ctx context.Context) (Inventory, error) {
	creds, err := m.config.Store.ListByOwnerAndProvider(ctx, m.ownerID, m.provider)
	if err != nil {
		return Inventory{}, fmt.Errorf("failed to load credentials: %w", err)
	}

	return newInventory(creds, m.config.Now(), m.config.CooldownWindow), nil
}

func (m *Manager) load(ctx context.Context, rc *keypool.RequestContext) (partition, error) {
	creds, err := m.config.Store.ListByOwnerAndProvider(ctx, m.ownerID, m.provider)
	if err != nil {
		return partition{}, fmt.Errorf("failed to load credentials: %w", err)
	}

	now := m.config.Now()
	inv := newInventory(creds, now, m.config.CooldownWindow)
	m.config.Collector.SetCredentialCounts(m.ownerID, inv.Counts())

	return split(creds, rc, now, m.config.CooldownWindow), nil
}

// promote probes candidates and returns the ones that passed, least-recently-used first.
// Callers arriving while a probe round is in flight wait for it and share its result.
func (m *Manager) promote(ctx context.Context, candidates []keypool.Credential, rc *keypool.RequestContext) []keypool.Credential {
	v, _, _ := m.probes.Do("promote", func() (interface{}, error) {
		return m.probeRound(ctx, candidates), nil
	})
	promoted := v.([]keypool.Credential)

	if rc != nil {
		for _, cred := range promoted {
			rc.MarkPromoted(cred.ID)
		}
	}
	return promoted
}

func (m *Manager) probeRound(ctx context.Context, candidates []keypool.Credential) []keypool.Credential {
	results, err := m.config.Prober.ProbeAll(ctx, candidates)
	if err != nil && m.config.Logger != nil {
		m.config.Logger.Error(ctx, "failed to persist probe results",
			"ownerID", m.ownerID, "provider", m.provider, "error", err)
	}

	promoted := make([]keypool.Credential, 0, len(results))
	for _, result := range results {
		if result.Usable {
			promoted = append(promoted, result.Credential)
		}
	}

	sortLeastRecentlyUsed(promoted)
	m.config.Collector.AddPromotions(len(promoted))

	if m.config.Logger != nil {
		m.config.Logger.Info(ctx, "probed cooled-down credentials",
			"ownerID", m.ownerID, "provider", m.provider,
			"probed", len(candidates), "promoted", len(promoted))
	}

	return promoted
}

// stamp marks cred as handed out. A failed stamp is logged and the credential is still used.
func (m *Manager) stamp(ctx context.Context, cred keypool.Credential) keypool.Credential {
	touched, err := m.config.Lifecycle.Touch(ctx, cred)
	if err != nil {
		if m.config.Logger != nil {
			m.config.Logger.Error(ctx, "failed to stamp credential", "credentialID", cred.ID, "error", err)
		}
		return cred
	}
	return touched
}
