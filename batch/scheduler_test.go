package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/getpup/keypool-orchestrator"
	"github.com/getpup/keypool-orchestrator/executor"
	"github.com/getpup/keypool-orchestrator/lifecycle"
	"github.com/getpup/keypool-orchestrator/pool"
	"github.com/getpup/keypool-orchestrator/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// assignerFunc adapts a function to Assigner.
type assignerFunc func(ctx context.Context, count int, rc *keypool.RequestContext) ([]keypool.Credential, error)

func (f assignerFunc) Assign(ctx context.Context, count int, rc *keypool.RequestContext) ([]keypool.Credential, error) {
	return f(ctx, count, rc)
}

func fixedPool(ids ...string) assignerFunc {
	return func(ctx context.Context, count int, rc *keypool.RequestContext) ([]keypool.Credential, error) {
		creds := make([]keypool.Credential, 0, len(ids))
		for _, id := range ids {
			creds = append(creds, keypool.Credential{ID: id, Status: keypool.StatusActive})
		}
		if len(creds) > count {
			creds = creds[:count]
		}
		return creds, nil
	}
}

func operations(n int) []keypool.Operation {
	ops := make([]keypool.Operation, n)
	for i := range ops {
		ops[i] = keypool.Operation{Name: fmt.Sprintf("op-%d", i), Payload: fmt.Sprintf("payload-%d", i)}
	}
	return ops
}

func TestRunBatch_RoundRobinPreAssignment(t *testing.T) {
	runner := executor.NewMockRunner()
	s := New(Config{Pool: fixedPool("k0", "k1", "k2"), Runner: runner})

	result := s.RunBatch(context.Background(), operations(5), 0, keypool.NewRequestContext())

	require.Len(t, result.Successful, 5)
	got := make([]string, 0, 5)
	for _, success := range result.Successful {
		got = append(got, success.Outcome.CredentialID)
	}
	assert.Equal(t, []string{"k0", "k1", "k2", "k0", "k1"}, got)
}

func TestRunBatch_RealPoolAndExecutor(t *testing.T) {
	s := memory.New(
		keypool.Credential{ID: "k0", OwnerID: "owner-1", Provider: "gemini", Status: keypool.StatusActive},
		keypool.Credential{ID: "k1", OwnerID: "owner-1", Provider: "gemini", Status: keypool.StatusActive},
		keypool.Credential{ID: "k2", OwnerID: "owner-1", Provider: "gemini", Status: keypool.StatusActive},
	)
	manager := lifecycle.New(lifecycle.Config{Store: s})
	credentials := pool.New(pool.Config{Store: s, Lifecycle: manager}, "owner-1", "gemini")
	runner := executor.New(executor.Config{
		Pool: credentials,
		Caller: keypool.CallerFunc(func(ctx context.Context, cred keypool.Credential, req keypool.CallRequest) (string, error) {
			return "ok", nil
		}),
		Lifecycle:    manager,
		DisableProbe: true,
	})
	scheduler := New(Config{Pool: credentials, Runner: runner, MaxAttempts: 3})

	result := scheduler.RunBatch(context.Background(), operations(5), 2, keypool.NewRequestContext())

	require.Len(t, result.Successful, 5)
	require.Empty(t, result.Failed)

	sizes := make([]int, 0, len(result.Batches))
	for _, chunk := range result.Batches {
		sizes = append(sizes, len(chunk.Indexes))
	}
	assert.Equal(t, []int{2, 2, 1}, sizes)

	got := make([]string, 0, 5)
	for _, success := range result.Successful {
		assert.Equal(t, "ok", success.Outcome.Text)
		got = append(got, success.Outcome.CredentialID)
	}
	assert.Equal(t, []string{"k0", "k1", "k2", "k0", "k1"}, got)
}

func TestRunBatch_ChunksAndCounts(t *testing.T) {
	runner := executor.NewMockRunner()
	runner.ExecuteFunc = func(ctx context.Context, op keypool.Operation, preferred *keypool.Credential) (executor.Outcome, error) {
		if op.Name == "op-3" || op.Name == "op-5" {
			return executor.Outcome{}, errors.New("upstream down")
		}
		return executor.Outcome{Text: op.Payload}, nil
	}
	s := New(Config{Pool: fixedPool("k0", "k1"), Runner: runner})

	result := s.RunBatch(context.Background(), operations(7), 3, keypool.NewRequestContext())

	assert.Equal(t, 7, result.Total)
	assert.Len(t, result.Batches, 3)
	assert.Equal(t, len(result.Successful)+len(result.Failed), result.Total)
	assert.Equal(t, []int{0, 1, 2}, result.Batches[0].Indexes)
	assert.Equal(t, []int{6}, result.Batches[2].Indexes)
	assert.Equal(t, 2, result.Batches[1].Failed)
	assert.Equal(t, 1, result.Batches[1].Succeeded)

	require.Len(t, result.Failed, 2)
	assert.Equal(t, 3, result.Failed[0].Index)
	assert.Equal(t, 5, result.Failed[1].Index)
	assert.Equal(t, []string{"payload-0", "payload-1", "payload-2", "payload-4", "payload-6"}, result.Texts())
	assert.Len(t, result.Errors(), 2)
	assert.InDelta(t, 5.0/7.0, result.SuccessRate(), 1e-9)
	assert.Len(t, runner.Snapshot(), 7, "a failure never cancels siblings")
}

func TestRunBatch_AllChunksRunConcurrently(t *testing.T) {
	var inFlight, maxInFlight int32
	release := make(chan struct{})
	var once sync.Once

	runner := executor.NewMockRunner()
	runner.ExecuteFunc = func(ctx context.Context, op keypool.Operation, preferred *keypool.Credential) (executor.Outcome, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		if n == 6 {
			once.Do(func() { close(release) })
		}
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
		atomic.AddInt32(&inFlight, -1)
		return executor.Outcome{}, nil
	}
	s := New(Config{Pool: fixedPool("k0"), Runner: runner})

	result := s.RunBatch(context.Background(), operations(6), 2, keypool.NewRequestContext())

	assert.Equal(t, int32(6), atomic.LoadInt32(&maxInFlight))
	assert.Len(t, result.Successful, 6)
}

func TestRunBatch_PassesAttemptBudget(t *testing.T) {
	runner := executor.NewMockRunner()
	s := New(Config{Pool: fixedPool("k0"), Runner: runner, MaxAttempts: 5})

	s.RunBatch(context.Background(), operations(2), 1, nil)

	for _, call := range runner.Snapshot() {
		assert.Equal(t, 5, call.MaxAttempts)
		assert.Equal(t, "k0", call.PreferredID)
	}
}

func TestRunBatch_NoCredentialsStillRunsEveryOperation(t *testing.T) {
	runner := executor.NewMockRunner()
	runner.ExecuteFunc = func(ctx context.Context, op keypool.Operation, preferred *keypool.Credential) (executor.Outcome, error) {
		assert.Nil(t, preferred)
		return executor.Outcome{}, &keypool.ExhaustedError{Operation: op.Name, Reason: keypool.ExhaustedNoCredentials}
	}
	s := New(Config{Pool: fixedPool(), Runner: runner})

	result := s.RunBatch(context.Background(), operations(3), 2, keypool.NewRequestContext())

	assert.Len(t, result.Failed, 3)
	assert.Equal(t, float64(0), result.SuccessRate())
	assert.ErrorIs(t, result.Failed[0].Err, keypool.ErrCredentialExhausted)
}

func TestRunBatch_PreAssignErrorFallsBackToPool(t *testing.T) {
	runner := executor.NewMockRunner()
	pool := assignerFunc(func(ctx context.Context, count int, rc *keypool.RequestContext) ([]keypool.Credential, error) {
		return nil, errors.New("store unavailable")
	})
	s := New(Config{Pool: pool, Runner: runner})

	result := s.RunBatch(context.Background(), operations(2), 0, keypool.NewRequestContext())

	assert.Len(t, result.Successful, 2)
	for _, call := range runner.Snapshot() {
		assert.Empty(t, call.PreferredID)
	}
}

func TestRunBatch_Empty(t *testing.T) {
	s := New(Config{Pool: fixedPool("k0"), Runner: executor.NewMockRunner()})

	result := s.RunBatch(context.Background(), nil, 3, keypool.NewRequestContext())

	assert.Equal(t, 0, result.Total)
	assert.Empty(t, result.Batches)
	assert.Equal(t, float64(0), result.SuccessRate())
}
