package batch

import (
	"github.com/getpup/keypool-orchestrator"
	"github.com/getpup/keypool-orchestrator/executor"
)

// Result is the settled outcome of a batch.
// len(Successful)+len(Failed) == Total, and both are ordered by operation index.
type Result struct {
	Batches    []ChunkResult
	Successful []Success
	Failed     []Failure
	Total      int
}

// ChunkResult summarizes one chunk.
type ChunkResult struct {
	// Number is the chunk's position, starting at 0.
	Number int

	// Indexes are the operation indexes in the chunk.
	Indexes []int

	Succeeded int
	Failed    int
}

// Success is one operation that succeeded.
type Success struct {
	Index     int
	Operation keypool.Operation
	Outcome   executor.Outcome
}

// Failure is one operation that failed after exhausting its attempts.
type Failure struct {
	Index     int
	Operation keypool.Operation
	Err       error
}

// SuccessRate returns the fraction of operations that succeeded, or 0 for an empty batch.
func (r Result) SuccessRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(len(r.Successful)) / float64(r.Total)
}

// Texts returns the successful outputs in operation order.
func (r Result) Texts() []string {
	texts := make([]string, 0, len(r.Successful))
	for _, s := range r.Successful {
		texts = append(texts, s.Outcome.Text)
	}
	return texts
}

// Errors returns the failure errors in operation order.
func (r Result) Errors() []error {
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, f.Err)
	}
	return errs
}
