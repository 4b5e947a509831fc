// Package executor runs single operations against an owner's credential pool,
// replacing credentials that fail and retrying within an attempt budget.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/getpup/keypool-orchestrator"
	"github.com/getpup/keypool-orchestrator/lifecycle"
	"github.com/getpup/keypool-orchestrator/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the operation executor.
type Config struct {
	// Pool supplies credentials and replacements (required).
	Pool Pool

	// Caller performs upstream calls (required).
	Caller keypool.Caller

	// Lifecycle records call outcomes on credentials (required).
	Lifecycle *lifecycle.Manager

	// Prober checks each credential before it is used (optional).
	// Without a Prober, or with DisableProbe set, credentials are used unprobed.
	Prober lifecycle.CredentialProber

	// DisableProbe skips the probe before use.
	DisableProbe bool

	// CallTimeout bounds each upstream call when the operation sets no timeout (default: 60s).
	CallTimeout time.Duration

	// TransientRetries is how often a Transient failure is retried on the same
	// credential (default: 2). Negative disables transient retries.
	TransientRetries int

	// NewBackOff overrides the transient retry backoff (default: exponential, bounded by TransientRetries).
	NewBackOff func() backoff.BackOff

	// Logger is an optional logger for observability.
	Logger keypool.Logger

	// Collector records operation metrics (optional).
	Collector *metrics.Collector

	// Tracer creates operation spans (default: the global otel tracer).
	Tracer trace.Tracer
}

// Executor executes operations with retry and credential replacement.
type Executor struct {
	config Config
	call   CallFunc
}

// Compile-time check that Executor implements Runner.
var _ Runner = (*Executor)(nil)

// New creates a new Executor with the given configuration.
// It applies default values for CallTimeout, TransientRetries and Tracer if zero.
func New(cfg Config) *Executor {
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.TransientRetries == 0 {
		cfg.TransientRetries = 2
	}
	if cfg.TransientRetries < 0 {
		cfg.TransientRetries = 0
	}
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = ExponentialBackOff(cfg.TransientRetries)
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/getpup/keypool-orchestrator/executor")
	}

	return &Executor{
		config: cfg,
		call:   Chain(cfg.Caller, cfg.CallTimeout, cfg.NewBackOff),
	}
}

// ExecuteWithRetry runs op with up to maxAttempts attempts.
//
// Each attempt takes one credential from the pool, probes it, and calls upstream.
// A failed call is recorded on the credential, the credential is excluded for the
// rest of the run, and the same attempt is retried once on a replacement. When no
// replacement exists the operation fails with ReplacementsExhausted.
func (e *Executor) ExecuteWithRetry(ctx context.Context, op keypool.Operation, maxAttempts int, rc *keypool.RequestContext) (Outcome, error) {
	return e.ExecuteWithCredential(ctx, op, nil, maxAttempts, rc)
}

// ExecuteWithCredential runs op like ExecuteWithRetry, using preferred on the first
// attempt unless it already failed in rc.
func (e *Executor) ExecuteWithCredential(ctx context.Context, op keypool.Operation, preferred *keypool.Credential, maxAttempts int, rc *keypool.RequestContext) (Outcome, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if rc == nil {
		rc = keypool.NewRequestContext()
	}

	ctx, span := e.config.Tracer.Start(ctx, "keypool.execute", trace.WithAttributes(
		attribute.String("keypool.operation", op.Name),
		attribute.String("keypool.run_id", rc.RunID()),
		attribute.Int("keypool.max_attempts", maxAttempts),
	))
	defer span.End()

	start := time.Now()
	outcome, err := e.execute(ctx, op, preferred, maxAttempts, rc)
	e.config.Collector.ObserveOperationDuration(time.Since(start).Seconds())
	e.config.Collector.IncOperations(err == nil)

	if err != nil {
		var exhausted *keypool.ExhaustedError
		if errors.As(err, &exhausted) {
			e.config.Collector.IncExhaustion(string(exhausted.Reason))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if e.config.Logger != nil {
			e.config.Logger.Error(ctx, "operation failed", "operation", op.Name, "runID", rc.RunID(), "error", err)
		}
		return Outcome{}, err
	}

	span.SetAttributes(
		attribute.String("keypool.credential_id", outcome.CredentialID),
		attribute.String("keypool.model", outcome.Model),
		attribute.Int("keypool.attempts", outcome.Attempts),
	)

	return outcome, nil
}

func (e *Executor) execute(ctx context.Context, op keypool.Operation, preferred *keypool.Credential, maxAttempts int, rc *keypool.RequestContext) (Outcome, error) {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return Outcome{}, cancelled(ctx, op)
		}

		cred, ok, err := e.pick(ctx, attempt, preferred, rc)
		if err != nil {
			return Outcome{}, err
		}
		if !ok {
			return Outcome{}, &keypool.ExhaustedError{
				Operation: op.Name,
				Reason:    keypool.ExhaustedNoCredentials,
				Attempts:  attempt - 1,
				LastErr:   lastErr,
			}
		}

		reply, err := e.try(ctx, cred, op, rc)
		if err == nil {
			return e.succeed(ctx, cred, reply, attempt), nil
		}
		if errors.Is(err, errCancelled) {
			return Outcome{}, err
		}
		lastErr = err

		if errors.Is(err, errProbeFailed) {
			continue
		}

		replacement, err := e.config.Pool.Replacement(ctx, rc)
		if errors.Is(err, keypool.ErrNoReplacement) {
			return Outcome{}, &keypool.ExhaustedError{
				Operation: op.Name,
				Reason:    keypool.ExhaustedReplacements,
				Attempts:  attempt,
				LastErr:   lastErr,
			}
		}
		if err != nil {
			return Outcome{}, fmt.Errorf("failed to find replacement credential: %w", err)
		}

		if e.config.Logger != nil {
			e.config.Logger.Info(ctx, "retrying with replacement credential",
				"operation", op.Name, "attempt", attempt,
				"failedCredentialID", cred.ID, "credentialID", replacement.ID)
		}

		reply, err = e.try(ctx, replacement, op, rc)
		if err == nil {
			return e.succeed(ctx, replacement, reply, attempt), nil
		}
		if errors.Is(err, errCancelled) {
			return Outcome{}, err
		}
		lastErr = err
	}

	return Outcome{}, &keypool.ExhaustedError{
		Operation: op.Name,
		Reason:    keypool.ExhaustedAttempts,
		Attempts:  maxAttempts,
		LastErr:   lastErr,
	}
}

// errProbeFailed marks a credential that failed its pre-use probe; no call was sent with it.
var errProbeFailed = errors.New("credential failed pre-use probe")

// errCancelled marks a failure caused by the caller's context rather than upstream.
// Nothing is recorded on the credential and no replacement is sought.
var errCancelled = errors.New("cancelled")

func cancelled(ctx context.Context, op keypool.Operation) error {
	return fmt.Errorf("operation %s %w: %w", op.Name, errCancelled, context.Cause(ctx))
}

// pick returns the credential for an attempt. ok is false when the pool is exhausted.
func (e *Executor) pick(ctx context.Context, attempt int, preferred *keypool.Credential, rc *keypool.RequestContext) (keypool.Credential, bool, error) {
	if attempt == 1 && preferred != nil && !rc.HasFailed(preferred.ID) {
		return *preferred, true, nil
	}

	creds, err := e.config.Pool.Assign(ctx, 1, rc)
	if err != nil {
		return keypool.Credential{}, false, fmt.Errorf("failed to assign credential: %w", err)
	}
	if len(creds) == 0 {
		return keypool.Credential{}, false, nil
	}
	return creds[0], true, nil
}

// try probes cred (when enabled) and calls upstream with it. Every failure is
// recorded on the credential and excludes it from the rest of the run, unless
// ctx itself was cancelled.
func (e *Executor) try(ctx context.Context, cred keypool.Credential, op keypool.Operation, rc *keypool.RequestContext) (Reply, error) {
	if e.config.Prober != nil && !e.config.DisableProbe {
		result, err := e.config.Prober.Probe(ctx, cred)
		if err != nil && e.config.Logger != nil {
			e.config.Logger.Error(ctx, "failed to persist probe result", "credentialID", cred.ID, "error", err)
		}
		if !result.Usable {
			if ctx.Err() != nil {
				return Reply{}, cancelled(ctx, op)
			}
			rc.MarkFailed(cred.ID)
			if e.config.Logger != nil {
				e.config.Logger.Info(ctx, "credential failed probe before use",
					"operation", op.Name, "credentialID", cred.ID, "status", result.Status, "kind", result.Kind)
			}
			if result.Err != nil {
				return Reply{}, fmt.Errorf("%w: %s: %w", errProbeFailed, cred.ID, result.Err)
			}
			return Reply{}, fmt.Errorf("%w: %s", errProbeFailed, cred.ID)
		}
		cred = result.Credential
	}

	reply, err := e.call(ctx, cred, op)
	if err == nil {
		return reply, nil
	}
	if ctx.Err() != nil {
		return Reply{}, cancelled(ctx, op)
	}

	kind := keypool.Classify(err)
	rc.MarkFailed(cred.ID)
	e.config.Collector.IncUpstreamErrors(string(kind))

	if _, recErr := e.config.Lifecycle.RecordFailure(ctx, cred, kind); recErr != nil && e.config.Logger != nil {
		e.config.Logger.Error(ctx, "failed to record call failure", "credentialID", cred.ID, "error", recErr)
	}

	if e.config.Logger != nil {
		e.config.Logger.Info(ctx, "upstream call failed",
			"operation", op.Name, "credentialID", cred.ID, "kind", kind, "error", err)
	}

	return Reply{}, err
}

func (e *Executor) succeed(ctx context.Context, cred keypool.Credential, reply Reply, attempt int) Outcome {
	if _, err := e.config.Lifecycle.RecordSuccess(ctx, cred); err != nil && e.config.Logger != nil {
		e.config.Logger.Error(ctx, "failed to record call success", "credentialID", cred.ID, "error", err)
	}

	return Outcome{
		Text:         reply.Text,
		CredentialID: cred.ID,
		Model:        reply.Model,
		Attempts:     attempt,
	}
}
