package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/getpup/keypool-orchestrator"
	"github.com/getpup/keypool-orchestrator/store"
	"github.com/google/uuid"
)

// Store is an in-memory implementation of CredentialStore for testing and local runs.
// It provides thread-safe access to credential data using a sync.RWMutex.
type Store struct {
	mu          sync.RWMutex
	credentials map[string]keypool.Credential // credentialID -> credential
}

// Compile-time checks.
var (
	_ store.CredentialStore  = (*Store)(nil)
	_ store.CredentialWriter = (*Store)(nil)
)

// New creates a new in-memory store, optionally seeded with credentials.
func New(seed ...keypool.Credential) *Store {
	s := &Store{
		credentials: make(map[string]keypool.Credential),
	}
	for _, cred := range seed {
		s.credentials[cred.ID] = copyCredential(cred)
	}
	return s
}

// ListByOwnerAndProvider returns every credential of the owner for the provider, ordered by ID.
// Returns an empty slice if none exist.
func (s *Store) ListByOwnerAndProvider(ctx context.Context, ownerID, provider string) ([]keypool.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	creds := make([]keypool.Credential, 0)
	for _, cred := range s.credentials {
		if cred.OwnerID == ownerID && cred.Provider == provider {
			creds = append(creds, copyCredential(cred))
		}
	}

	sort.Slice(creds, func(i, j int) bool {
		return creds[i].ID < creds[j].ID
	})

	return creds, nil
}

// UpdateStatus applies a status update to a credential.
// Returns store.ErrCredentialNotFound if the credential does not exist.
func (s *Store) UpdateStatus(ctx context.Context, id string, update store.StatusUpdate) error {
	if !update.Status.Valid() {
		return store.ErrInvalidStatus
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.credentials[id]
	if !ok {
		return store.ErrCredentialNotFound
	}

	s.credentials[id] = update.Apply(cred)

	return nil
}

// InsertCredential stores a new credential.
// An empty ID is replaced by a new UUID and an empty status by StatusActive.
func (s *Store) InsertCredential(ctx context.Context, cred keypool.Credential) (keypool.Credential, error) {
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	if cred.Status == "" {
		cred.Status = keypool.StatusActive
	}
	if !cred.Status.Valid() {
		return keypool.Credential{}, store.ErrInvalidStatus
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.credentials[cred.ID] = copyCredential(cred)

	return copyCredential(cred), nil
}

// Get returns a credential by ID.
// Returns store.ErrCredentialNotFound if the credential does not exist.
func (s *Store) Get(id string) (keypool.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.credentials[id]
	if !ok {
		return keypool.Credential{}, store.ErrCredentialNotFound
	}

	return copyCredential(cred), nil
}

// copyCredential detaches the timestamp pointers so callers cannot mutate stored state.
func copyCredential(cred keypool.Credential) keypool.Credential {
	if cred.LastUsed != nil {
		t := *cred.LastUsed
		cred.LastUsed = &t
	}
	if cred.LastFailed != nil {
		t := *cred.LastFailed
		cred.LastFailed = &t
	}
	return cred
}
