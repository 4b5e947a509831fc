package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/getpup/keypool-orchestrator"
)

// Reply is the text of one upstream call and the model that produced it.
type Reply struct {
	Text  string
	Model string
}

// CallFunc performs one logical upstream call for op with cred.
// Call policies wrap a CallFunc to add timeouts, retries or model fallback.
type CallFunc func(ctx context.Context, cred keypool.Credential, op keypool.Operation) (Reply, error)

// Direct adapts a Caller into a CallFunc that calls op.Model once.
func Direct(caller keypool.Caller) CallFunc {
	return func(ctx context.Context, cred keypool.Credential, op keypool.Operation) (Reply, error) {
		text, err := caller.Call(ctx, cred, op.Request(op.Model))
		if err != nil {
			return Reply{}, err
		}
		return Reply{Text: text, Model: op.Model}, nil
	}
}

// WithTimeout bounds each call by op.Timeout, or by fallback when op.Timeout is zero.
// A call cut off by its own deadline fails as a Transient upstream error.
func WithTimeout(next CallFunc, fallback time.Duration) CallFunc {
	return func(ctx context.Context, cred keypool.Credential, op keypool.Operation) (Reply, error) {
		timeout := op.Timeout
		if timeout <= 0 {
			timeout = fallback
		}
		op.Timeout = timeout

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		reply, err := next(callCtx, cred, op)
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return Reply{}, keypool.NewUpstreamError(keypool.KindTransient, 0,
				fmt.Errorf("call timed out after %s: %w", timeout, err))
		}
		return reply, err
	}
}

// WithTransientRetry retries Transient failures on the same credential using the
// backoff returned by newBackOff. Every other failure is returned immediately.
func WithTransientRetry(next CallFunc, newBackOff func() backoff.BackOff) CallFunc {
	return func(ctx context.Context, cred keypool.Credential, op keypool.Operation) (Reply, error) {
		var reply Reply

		operation := func() error {
			r, err := next(ctx, cred, op)
			if err == nil {
				reply = r
				return nil
			}
			if keypool.Classify(err) != keypool.KindTransient {
				return backoff.Permanent(err)
			}
			return err
		}

		if err := backoff.Retry(operation, backoff.WithContext(newBackOff(), ctx)); err != nil {
			return Reply{}, err
		}
		return reply, nil
	}
}

// WithModelFallback tries op.Model and then each of op.FallbackModels in order.
// It moves to the next model only on Transient, Malformed or ModelUnavailable
// failures; credential-level failures stop the ladder.
func WithModelFallback(next CallFunc) CallFunc {
	return func(ctx context.Context, cred keypool.Credential, op keypool.Operation) (Reply, error) {
		models := append([]string{op.Model}, op.FallbackModels...)

		var lastErr error
		for _, model := range models {
			attempt := op
			attempt.Model = model
			attempt.FallbackModels = nil

			reply, err := next(ctx, cred, attempt)
			if err == nil {
				return reply, nil
			}
			lastErr = err

			if ctx.Err() != nil || !fallsBack(keypool.Classify(err)) {
				break
			}
		}

		return Reply{}, lastErr
	}
}

func fallsBack(kind keypool.ErrorKind) bool {
	switch kind {
	case keypool.KindTransient, keypool.KindMalformed, keypool.KindModelUnavailable:
		return true
	default:
		return false
	}
}

// ExponentialBackOff returns a backoff factory allowing at most retries retries.
func ExponentialBackOff(retries int) func() backoff.BackOff {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 250 * time.Millisecond
		b.MaxInterval = 4 * time.Second
		b.MaxElapsedTime = 30 * time.Second
		return backoff.WithMaxRetries(b, uint64(retries))
	}
}

// Chain builds the default policy stack around caller:
// model fallback over transient retry over per-call timeout.
func Chain(caller keypool.Caller, timeout time.Duration, newBackOff func() backoff.BackOff) CallFunc {
	return WithModelFallback(WithTransientRetry(WithTimeout(Direct(caller), timeout), newBackOff))
}
