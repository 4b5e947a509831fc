package executor

import (
	"context"

	"github.com/getpup/keypool-orchestrator"
)

// Pool hands out credentials for one owner and provider.
// *pool.Manager implements it.
type Pool interface {
	Assign(ctx context.Context, count int, rc *keypool.RequestContext) ([]keypool.Credential, error)
	Replacement(ctx context.Context, rc *keypool.RequestContext) (keypool.Credential, error)
}

// Runner executes operations against a credential pool.
// This interface allows for mock implementations in tests.
type Runner interface {
	// ExecuteWithRetry runs op with up to maxAttempts attempts, drawing credentials from the pool.
	ExecuteWithRetry(ctx context.Context, op keypool.Operation, maxAttempts int, rc *keypool.RequestContext) (Outcome, error)

	// ExecuteWithCredential is ExecuteWithRetry with preferred used on the first attempt.
	// A nil preferred behaves like ExecuteWithRetry.
	ExecuteWithCredential(ctx context.Context, op keypool.Operation, preferred *keypool.Credential, maxAttempts int, rc *keypool.RequestContext) (Outcome, error)
}

// Outcome is a successful operation result.
type Outcome struct {
	// Text is the upstream response.
	Text string

	// CredentialID identifies the credential that produced Text.
	CredentialID string

	// Model is the model that produced Text.
	Model string

	// Attempts is the attempt number that succeeded (1-based).
	Attempts int
}
