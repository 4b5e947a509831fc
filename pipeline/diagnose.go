package pipeline

import (
	"context"
	"errors"

	"github.com/getpup/keypool-orchestrator"
)

// diagnose maps a stage failure onto a reason the user can act on.
//
// When the pool ran dry and any credential is throttled the run should be retried
// later. Otherwise the last upstream error decides between an unavailable upstream
// and credentials that are all invalid or failed.
func (r *run) diagnose(ctx context.Context, err error) keypool.FailureReason {
	if errors.Is(err, keypool.ErrInvalidInput) {
		return keypool.ReasonInvalidInput
	}

	kind := keypool.Classify(err)

	if errors.Is(err, keypool.ErrCredentialExhausted) {
		inv, snapErr := r.pool.Snapshot(context.WithoutCancel(ctx))
		if snapErr != nil && r.config.Logger != nil {
			r.config.Logger.Error(ctx, "failed to load pool inventory", "runID", r.rc.RunID(), "error", snapErr)
		}
		if (snapErr == nil && inv.Throttled()) || kind.Throttled() {
			return keypool.ReasonRateLimited
		}
		switch kind {
		case keypool.KindTransient, keypool.KindModelUnavailable:
			return keypool.ReasonUpstreamUnavailable
		case keypool.KindMalformed:
			return keypool.ReasonMalformedOutput
		}
		return keypool.ReasonCredentialsExhausted
	}

	switch {
	case kind.Throttled():
		return keypool.ReasonRateLimited
	case kind == keypool.KindUnauthorized:
		return keypool.ReasonCredentialsExhausted
	case kind == keypool.KindMalformed:
		return keypool.ReasonMalformedOutput
	default:
		return keypool.ReasonUpstreamUnavailable
	}
}
