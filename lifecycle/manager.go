// Package lifecycle owns credential health: it is the only writer of credential
// status and runs the health probes that move credentials between states.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/getpup/keypool-orchestrator"
	"github.com/getpup/keypool-orchestrator/metrics"
	"github.com/getpup/keypool-orchestrator/store"
)

// Config holds configuration for the lifecycle Manager.
type Config struct {
	// Store persists credential status (required).
	Store store.CredentialStore

	// Logger is for observability (optional).
	Logger keypool.Logger

	// Collector records status transition metrics (optional).
	Collector *metrics.Collector

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Manager applies credential status transitions and persists them.
type Manager struct {
	config Config
}

// New creates a new lifecycle Manager with the given configuration.
func New(cfg Config) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{
		config: cfg,
	}
}

// Now returns the manager's current time.
func (m *Manager) Now() time.Time {
	return m.config.Now()
}

// RecordSuccess marks a credential Active after a successful call,
// stamping last-used and resetting the failure count.
func (m *Manager) RecordSuccess(ctx context.Context, cred keypool.Credential) (keypool.Credential, error) {
	now := m.config.Now()
	zero := 0
	return m.apply(ctx, cred, store.StatusUpdate{
		Status:       keypool.StatusActive,
		LastUsed:     &now,
		FailureCount: &zero,
	}, "call succeeded")
}

// RecordFailure records a failed call classified as kind.
//
// Throttled kinds move the credential to RateLimited. Transient, Malformed and
// ModelUnavailable failures are not attributed to the credential: its status is
// kept while last-failed and the failure count are still recorded. Anything else
// marks the credential Failed.
func (m *Manager) RecordFailure(ctx context.Context, cred keypool.Credential, kind keypool.ErrorKind) (keypool.Credential, error) {
	now := m.config.Now()
	count := cred.FailureCount + 1

	update := store.StatusUpdate{
		LastFailed:   &now,
		FailureCount: &count,
	}

	switch {
	case kind.Throttled():
		update.Status = keypool.StatusRateLimited
	case kind == keypool.KindTransient, kind == keypool.KindMalformed, kind == keypool.KindModelUnavailable:
		update.Status = cred.Status
		if !update.Status.Valid() {
			update.Status = keypool.StatusActive
		}
	default:
		update.Status = keypool.StatusFailed
	}

	return m.apply(ctx, cred, update, "call failed", "kind", kind)
}

// RecordProbe records the outcome of a health probe. A nil err means the probe succeeded.
//
// Success makes the credential Active with a zero failure count. Throttled kinds make it
// RateLimited. Every other failure, including network errors and timeouts, makes it Failed.
func (m *Manager) RecordProbe(ctx context.Context, cred keypool.Credential, err error) (keypool.Credential, error) {
	if err == nil {
		zero := 0
		return m.apply(ctx, cred, store.StatusUpdate{
			Status:       keypool.StatusActive,
			FailureCount: &zero,
		}, "probe succeeded")
	}

	now := m.config.Now()
	kind := keypool.Classify(err)

	if kind.Throttled() {
		return m.apply(ctx, cred, store.StatusUpdate{
			Status:     keypool.StatusRateLimited,
			LastFailed: &now,
		}, "probe throttled", "kind", kind)
	}

	count := cred.FailureCount + 1
	return m.apply(ctx, cred, store.StatusUpdate{
		Status:       keypool.StatusFailed,
		LastFailed:   &now,
		FailureCount: &count,
	}, "probe failed", "kind", kind, "error", err)
}

// Touch stamps last-used on a credential being handed out without changing its status.
func (m *Manager) Touch(ctx context.Context, cred keypool.Credential) (keypool.Credential, error) {
	now := m.config.Now()
	status := cred.Status
	if !status.Valid() {
		status = keypool.StatusActive
	}
	return m.apply(ctx, cred, store.StatusUpdate{
		Status:   status,
		LastUsed: &now,
	}, "")
}

func (m *Manager) apply(ctx context.Context, cred keypool.Credential, update store.StatusUpdate, event string, args ...interface{}) (keypool.Credential, error) {
	if err := m.config.Store.UpdateStatus(ctx, cred.ID, update); err != nil {
		if m.config.Logger != nil {
			m.config.Logger.Error(ctx, "failed to persist credential status",
				"credentialID", cred.ID, "status", update.Status, "error", err)
		}
		return cred, fmt.Errorf("failed to update credential %s: %w", cred.ID, err)
	}

	updated := update.Apply(cred)

	if event == "" {
		return updated, nil
	}

	changed := cred.Status != updated.Status
	if changed {
		m.config.Collector.IncStatusTransition(string(cred.Status), string(updated.Status))
	}

	if m.config.Logger != nil {
		logArgs := append([]interface{}{
			"credentialID", cred.ID,
			"provider", cred.Provider,
			"from", cred.Status,
			"to", updated.Status,
			"failureCount", updated.FailureCount,
		}, args...)
		if changed {
			m.config.Logger.Info(ctx, "credential status changed: "+event, logArgs...)
		} else {
			m.config.Logger.Debug(ctx, event, logArgs...)
		}
	}

	return updated, nil
}
