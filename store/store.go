package store

import (
	"context"
	"time"

	"github.com/getpup/keypool-orchestrator"
)

// StatusUpdate describes a change to a credential's health fields.
// Nil pointers leave the corresponding field unchanged.
type StatusUpdate struct {
	// Status is the new status (required).
	Status keypool.Status

	// LastUsed, if set, replaces the last-used timestamp.
	LastUsed *time.Time

	// LastFailed, if set, replaces the last-failed timestamp.
	LastFailed *time.Time

	// FailureCount, if set, replaces the consecutive failure count.
	FailureCount *int
}

// Apply returns cred with the update applied.
func (u StatusUpdate) Apply(cred keypool.Credential) keypool.Credential {
	cred.Status = u.Status
	if u.LastUsed != nil {
		t := *u.LastUsed
		cred.LastUsed = &t
	}
	if u.LastFailed != nil {
		t := *u.LastFailed
		cred.LastFailed = &t
	}
	if u.FailureCount != nil {
		cred.FailureCount = *u.FailureCount
	}
	return cred
}

// CredentialStore provides persistence for credential health.
// Implementations must be safe for concurrent access. Writes are last-writer-wins
// per credential; no transactional guarantee is required.
type CredentialStore interface {
	// ListByOwnerAndProvider returns every credential of the owner for the provider.
	// Returns an empty slice if none exist.
	ListByOwnerAndProvider(ctx context.Context, ownerID, provider string) ([]keypool.Credential, error)

	// UpdateStatus applies a status update to a credential.
	// Returns ErrCredentialNotFound if the credential does not exist.
	UpdateStatus(ctx context.Context, id string, update StatusUpdate) error
}

// CredentialWriter creates credentials. Credential creation is normally done
// out-of-band by the owner; this is used by tooling and tests.
type CredentialWriter interface {
	// InsertCredential stores a new credential. An empty ID is replaced by a new UUID
	// and an empty status by StatusActive. Returns the stored credential.
	InsertCredential(ctx context.Context, cred keypool.Credential) (keypool.Credential, error)
}
