package keypool

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrCredentialExhausted indicates no usable credential exists for the owner and provider.
	ErrCredentialExhausted = errors.New("credential exhausted")

	// ErrNoReplacement indicates no credential qualifies as a replacement in any tier.
	ErrNoReplacement = errors.New("no replacement credential")

	// ErrMalformedOutput indicates the upstream returned structured output that could not be parsed.
	ErrMalformedOutput = errors.New("malformed output")

	// ErrInvalidInput indicates the pipeline input is incomplete.
	ErrInvalidInput = errors.New("invalid input")
)

// ErrorKind classifies an upstream failure by its effect on the credential.
type ErrorKind string

const (
	// KindUnauthorized means the credential was rejected outright.
	KindUnauthorized ErrorKind = "unauthorized"

	// KindRateLimited means the credential is temporarily throttled.
	KindRateLimited ErrorKind = "rate_limited"

	// KindInsufficientCredit means the credential ran out of quota or credit.
	KindInsufficientCredit ErrorKind = "insufficient_credit"

	// KindTransient means a network failure or timeout.
	KindTransient ErrorKind = "transient"

	// KindMalformed means the upstream response could not be parsed.
	KindMalformed ErrorKind = "malformed"

	// KindModelUnavailable means the requested model does not exist or is overloaded.
	KindModelUnavailable ErrorKind = "model_unavailable"

	// KindOther is any failure not covered above.
	KindOther ErrorKind = "other"
)

// CredentialLevel reports whether the kind says something about the credential
// rather than the request or the model.
func (k ErrorKind) CredentialLevel() bool {
	switch k {
	case KindUnauthorized, KindRateLimited, KindInsufficientCredit:
		return true
	}
	return false
}

// Throttled reports whether the kind should put a credential into cooldown as RateLimited.
func (k ErrorKind) Throttled() bool {
	return k == KindRateLimited || k == KindInsufficientCredit
}

// UpstreamError is a classified failure returned by a Caller.
type UpstreamError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

// Error implements error.
func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError builds an UpstreamError.
func NewUpstreamError(kind ErrorKind, statusCode int, err error) *UpstreamError {
	return &UpstreamError{Kind: kind, StatusCode: statusCode, Err: err}
}

// KindForStatus maps an HTTP status code onto an ErrorKind.
func KindForStatus(code int) ErrorKind {
	switch {
	case code == 401 || code == 403:
		return KindUnauthorized
	case code == 402:
		return KindInsufficientCredit
	case code == 404:
		return KindModelUnavailable
	case code == 408:
		return KindTransient
	case code == 429:
		return KindRateLimited
	case code == 503 || code == 529:
		return KindModelUnavailable
	case code >= 500:
		return KindTransient
	case code >= 400:
		return KindOther
	}
	return KindOther
}

// Classify returns the ErrorKind of err.
// Deadlines and network errors are Transient; unclassified errors are Other.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	if errors.Is(err, ErrMalformedOutput) {
		return KindMalformed
	}

	return KindOther
}

// ExhaustionReason says why an operation ran out of options.
type ExhaustionReason string

const (
	// ExhaustedNoCredentials means the pool had no usable credential at all.
	ExhaustedNoCredentials ExhaustionReason = "no_credentials"

	// ExhaustedReplacements means a credential failed and no replacement was left.
	ExhaustedReplacements ExhaustionReason = "replacements_exhausted"

	// ExhaustedAttempts means every attempt in the budget failed.
	ExhaustedAttempts ExhaustionReason = "attempts_exhausted"
)

// ExhaustedError is returned by the executor when an operation cannot be completed.
type ExhaustedError struct {
	Operation string
	Reason    ExhaustionReason
	Attempts  int
	LastErr   error
}

// Error implements error.
func (e *ExhaustedError) Error() string {
	switch e.Reason {
	case ExhaustedNoCredentials:
		return fmt.Sprintf("operation %q: no usable credentials available", e.Operation)
	case ExhaustedReplacements:
		return fmt.Sprintf("operation %q: all credentials exhausted after %d attempt(s): %v", e.Operation, e.Attempts, e.LastErr)
	default:
		return fmt.Sprintf("operation %q: failed after %d attempt(s): %v", e.Operation, e.Attempts, e.LastErr)
	}
}

// Unwrap returns the last upstream error, if any.
func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// Is reports ErrCredentialExhausted for the reasons where the pool itself ran dry.
func (e *ExhaustedError) Is(target error) bool {
	if target != ErrCredentialExhausted {
		return false
	}
	return e.Reason == ExhaustedNoCredentials || e.Reason == ExhaustedReplacements
}
