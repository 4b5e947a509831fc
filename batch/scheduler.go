// Package batch runs many operations concurrently in fixed-size chunks,
// spreading them across an owner's credentials.
package batch

import (
	"context"
	"time"

	"github.com/getpup/keypool-orchestrator"
	"github.com/getpup/keypool-orchestrator/executor"
	"github.com/getpup/keypool-orchestrator/metrics"
	"golang.org/x/sync/errgroup"
)

// Assigner pre-assigns credentials for a batch. *pool.Manager implements it.
type Assigner interface {
	Assign(ctx context.Context, count int, rc *keypool.RequestContext) ([]keypool.Credential, error)
}

// Config holds configuration for the Scheduler.
type Config struct {
	// Pool pre-assigns credentials to operations (required).
	Pool Assigner

	// Runner executes each operation (required).
	Runner executor.Runner

	// MaxAttempts is the attempt budget for each operation (default: 3).
	MaxAttempts int

	// Logger is for observability (optional).
	Logger keypool.Logger

	// Collector records batch metrics (optional).
	Collector *metrics.Collector
}

// Scheduler runs batches of operations.
type Scheduler struct {
	config Config
}

// New creates a new Scheduler with the given configuration.
func New(cfg Config) *Scheduler {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}

	return &Scheduler{
		config: cfg,
	}
}

// RunBatch executes every operation and waits for all of them to settle.
//
// Credentials are pre-assigned once for the whole batch and operation i prefers
// credential i modulo the number assigned. Operations are split into contiguous
// chunks of batchSize (all operations in one chunk when batchSize <= 0). All chunks
// start at once and every operation inside a chunk runs concurrently. A failed
// operation never cancels its siblings.
func (s *Scheduler) RunBatch(ctx context.Context, ops []keypool.Operation, batchSize int, rc *keypool.RequestContext) Result {
	if rc == nil {
		rc = keypool.NewRequestContext()
	}

	result := Result{Total: len(ops)}
	if len(ops) == 0 {
		return result
	}
	if batchSize <= 0 || batchSize > len(ops) {
		batchSize = len(ops)
	}

	start := time.Now()
	s.config.Collector.IncBatches()

	creds, err := s.config.Pool.Assign(ctx, len(ops), rc)
	if err != nil {
		// Every operation still runs; each draws its own credential from the pool.
		creds = nil
		if s.config.Logger != nil {
			s.config.Logger.Error(ctx, "failed to pre-assign credentials", "operations", len(ops), "error", err)
		}
	}

	items := make([]item, len(ops))
	for i, op := range ops {
		items[i] = item{index: i, op: op}
		if len(creds) > 0 {
			cred := creds[i%len(creds)]
			items[i].preferred = &cred
		}
	}

	chunks := make([][]item, 0, (len(items)+batchSize-1)/batchSize)
	for lo := 0; lo < len(items); lo += batchSize {
		hi := lo + batchSize
		if hi > len(items) {
			hi = len(items)
		}
		chunks = append(chunks, items[lo:hi])
	}

	settled := make([]settledOp, len(ops))
	chunkResults := make([]ChunkResult, len(chunks))

	var g errgroup.Group
	for c, chunk := range chunks {
		c, chunk := c, chunk
		g.Go(func() error {
			chunkResults[c] = s.runChunk(ctx, c, chunk, settled, rc)
			return nil
		})
	}
	_ = g.Wait()

	result.Batches = chunkResults
	for i, so := range settled {
		if so.err != nil {
			result.Failed = append(result.Failed, Failure{Index: i, Operation: ops[i], Err: so.err})
			continue
		}
		result.Successful = append(result.Successful, Success{Index: i, Operation: ops[i], Outcome: so.outcome})
	}

	if s.config.Logger != nil {
		s.config.Logger.Info(ctx, "batch completed",
			"runID", rc.RunID(),
			"operations", result.Total,
			"chunks", len(chunks),
			"credentials", len(creds),
			"successful", len(result.Successful),
			"failed", len(result.Failed),
			"duration", time.Since(start))
	}

	return result
}

type item struct {
	index     int
	op        keypool.Operation
	preferred *keypool.Credential
}

type settledOp struct {
	outcome executor.Outcome
	err     error
}

func (s *Scheduler) runChunk(ctx context.Context, number int, chunk []item, settled []settledOp, rc *keypool.RequestContext) ChunkResult {
	var g errgroup.Group
	for _, it := range chunk {
		it := it
		g.Go(func() error {
			outcome, err := s.config.Runner.ExecuteWithCredential(ctx, it.op, it.preferred, s.config.MaxAttempts, rc)
			settled[it.index] = settledOp{outcome: outcome, err: err}
			return nil
		})
	}
	_ = g.Wait()

	cr := ChunkResult{Number: number}
	for _, it := range chunk {
		cr.Indexes = append(cr.Indexes, it.index)
		if settled[it.index].err != nil {
			cr.Failed++
		} else {
			cr.Succeeded++
		}
	}
	return cr
}
