package keypool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Constants(t *testing.T) {
	t.Run("StatusActive equals active", func(t *testing.T) {
		assert.Equal(t, Status("active"), StatusActive)
	})

	t.Run("StatusRateLimited equals rate_limited", func(t *testing.T) {
		assert.Equal(t, Status("rate_limited"), StatusRateLimited)
	})

	t.Run("StatusFailed equals failed", func(t *testing.T) {
		assert.Equal(t, Status("failed"), StatusFailed)
	})

	t.Run("unknown status is not valid", func(t *testing.T) {
		assert.False(t, Status("paused").Valid())
		assert.True(t, StatusRateLimited.Valid())
	})
}

func TestCredential_CooledDown(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	window := 2 * time.Minute

	t.Run("never failed is eligible", func(t *testing.T) {
		cred := Credential{ID: "k1", Status: StatusFailed}
		assert.True(t, cred.CooledDown(now, window))
	})

	t.Run("failed three minutes ago is eligible", func(t *testing.T) {
		failed := now.Add(-3 * time.Minute)
		cred := Credential{ID: "k1", Status: StatusFailed, LastFailed: &failed}
		assert.True(t, cred.CooledDown(now, window))
	})

	t.Run("failed one minute ago is not eligible", func(t *testing.T) {
		failed := now.Add(-1 * time.Minute)
		cred := Credential{ID: "k1", Status: StatusFailed, LastFailed: &failed}
		assert.False(t, cred.CooledDown(now, window))
	})
}

func TestCredential_Redacted(t *testing.T) {
	assert.Equal(t, "****", Credential{Secret: "abc"}.Redacted())
	assert.Equal(t, "****wxyz", Credential{Secret: "sk-secret-wxyz"}.Redacted())
}

func TestOperation_Request(t *testing.T) {
	op := Operation{
		Name:      "title",
		Payload:   "write a title",
		Model:     "primary",
		Timeout:   5 * time.Second,
		MaxTokens: 64,
	}

	req := op.Request("fallback")

	assert.Equal(t, "write a title", req.Payload)
	assert.Equal(t, "fallback", req.Model)
	assert.Equal(t, 5*time.Second, req.Timeout)
	assert.Equal(t, 64, req.MaxTokens)
}

func TestResult_Branch(t *testing.T) {
	res := Result{
		Branches: []BranchReport{
			{Name: "tool", Status: BranchSucceeded},
			{Name: "faq", Status: BranchFailed},
		},
	}

	b, ok := res.Branch("faq")
	require.True(t, ok)
	assert.Equal(t, BranchFailed, b.Status)

	_, ok = res.Branch("missing")
	assert.False(t, ok)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"upstream error", NewUpstreamError(KindRateLimited, 429, errors.New("slow down")), KindRateLimited},
		{"wrapped upstream error", fmt.Errorf("call: %w", NewUpstreamError(KindUnauthorized, 401, errors.New("bad key"))), KindUnauthorized},
		{"deadline", context.DeadlineExceeded, KindTransient},
		{"malformed", fmt.Errorf("parse: %w", ErrMalformedOutput), KindMalformed},
		{"unknown", errors.New("boom"), KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestKindForStatus(t *testing.T) {
	assert.Equal(t, KindUnauthorized, KindForStatus(401))
	assert.Equal(t, KindUnauthorized, KindForStatus(403))
	assert.Equal(t, KindInsufficientCredit, KindForStatus(402))
	assert.Equal(t, KindRateLimited, KindForStatus(429))
	assert.Equal(t, KindModelUnavailable, KindForStatus(404))
	assert.Equal(t, KindModelUnavailable, KindForStatus(503))
	assert.Equal(t, KindTransient, KindForStatus(500))
	assert.Equal(t, KindOther, KindForStatus(400))
}

func TestErrorKind_Predicates(t *testing.T) {
	assert.True(t, KindUnauthorized.CredentialLevel())
	assert.True(t, KindInsufficientCredit.CredentialLevel())
	assert.False(t, KindTransient.CredentialLevel())

	assert.True(t, KindRateLimited.Throttled())
	assert.True(t, KindInsufficientCredit.Throttled())
	assert.False(t, KindUnauthorized.Throttled())
}

func TestExhaustedError(t *testing.T) {
	t.Run("no credentials is credential exhaustion", func(t *testing.T) {
		err := error(&ExhaustedError{Operation: "title", Reason: ExhaustedNoCredentials})
		assert.True(t, errors.Is(err, ErrCredentialExhausted))
		assert.Contains(t, err.Error(), "no usable credentials")
	})

	t.Run("replacements exhausted mentions all credentials", func(t *testing.T) {
		last := NewUpstreamError(KindRateLimited, 429, errors.New("quota"))
		err := error(&ExhaustedError{Operation: "title", Reason: ExhaustedReplacements, Attempts: 1, LastErr: last})
		assert.True(t, errors.Is(err, ErrCredentialExhausted))
		assert.Contains(t, err.Error(), "all credentials exhausted")
		assert.Equal(t, KindRateLimited, Classify(err))
	})

	t.Run("attempts exhausted is not credential exhaustion", func(t *testing.T) {
		err := error(&ExhaustedError{Operation: "title", Reason: ExhaustedAttempts, Attempts: 3, LastErr: context.DeadlineExceeded})
		assert.False(t, errors.Is(err, ErrCredentialExhausted))
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})
}

func TestRequestContext(t *testing.T) {
	t.Run("new context has a run id and empty sets", func(t *testing.T) {
		rc := NewRequestContext()
		assert.NotEmpty(t, rc.RunID())
		assert.Empty(t, rc.Failed())
		assert.Empty(t, rc.Promoted())
	})

	t.Run("failure removes promotion", func(t *testing.T) {
		rc := NewRequestContext()
		rc.MarkPromoted("k1")
		assert.True(t, rc.IsPromoted("k1"))

		rc.MarkFailed("k1")
		assert.True(t, rc.HasFailed("k1"))
		assert.False(t, rc.IsPromoted("k1"))
	})

	t.Run("failed credential cannot be promoted again", func(t *testing.T) {
		rc := NewRequestContext()
		rc.MarkFailed("k1")
		rc.MarkPromoted("k1")
		assert.False(t, rc.IsPromoted("k1"))
	})

	t.Run("concurrent marks are safe", func(t *testing.T) {
		rc := NewRequestContext()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				rc.MarkFailed(fmt.Sprintf("k%02d", i))
			}(i)
		}
		wg.Wait()

		failed := rc.Failed()
		assert.Len(t, failed, 50)
		assert.Equal(t, "k00", failed[0])
	})

	t.Run("travels on a context", func(t *testing.T) {
		rc := NewRequestContext()
		ctx := WithRequestContext(context.Background(), rc)

		got, ok := RequestContextFrom(ctx)
		require.True(t, ok)
		assert.Same(t, rc, got)

		_, ok = RequestContextFrom(context.Background())
		assert.False(t, ok)
	})
}
