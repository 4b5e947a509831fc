// Package pipeline runs a multi-stage content workflow against one owner's
// credential pool: a foundation call, then concurrent branches of dependent steps.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/getpup/keypool-orchestrator"
	"github.com/getpup/keypool-orchestrator/batch"
	"github.com/getpup/keypool-orchestrator/executor"
	"github.com/getpup/keypool-orchestrator/internal/extract"
	"github.com/getpup/keypool-orchestrator/lifecycle"
	"github.com/getpup/keypool-orchestrator/metrics"
	"github.com/getpup/keypool-orchestrator/pool"
	"github.com/getpup/keypool-orchestrator/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidConfig is returned by Run when the Orchestrator cannot run at all.
var ErrInvalidConfig = errors.New("invalid pipeline configuration")

// Config holds configuration for the pipeline Orchestrator.
type Config struct {
	// Store is the credential store (required).
	Store store.CredentialStore

	// Caller performs upstream calls (required).
	Caller keypool.Caller

	// Workflow is the workflow to run (default: ContentWorkflow with zero options).
	Workflow Workflow

	// CooldownWindow is how long a throttled or failed credential is skipped (default: 2m).
	CooldownWindow time.Duration

	// MinActive is the Active count below which cooled-down credentials are probed (default: 5).
	MinActive int

	// MaxAttempts is the attempt budget for each operation (default: 3).
	MaxAttempts int

	// BatchSize is the chunk size for steps with several operations (default: 5).
	BatchSize int

	// CallTimeout bounds each upstream call (default: 60s).
	CallTimeout time.Duration

	// TransientRetries is how often a Transient failure is retried on the same credential
	// (default: 2). Negative disables transient retries.
	TransientRetries int

	// NewBackOff overrides the transient retry backoff.
	NewBackOff func() backoff.BackOff

	// DisableProbe skips the probe before each credential is used.
	DisableProbe bool

	// ProbeModels maps a provider to the model used for probing it.
	ProbeModels map[string]string

	// ProbeTimeout bounds each probe call (default: 15s).
	ProbeTimeout time.Duration

	// MaxRecoveryCandidates bounds the JSON candidates scanned when the
	// foundation output is not plain JSON (default: 8).
	MaxRecoveryCandidates int

	// Logger is for observability (optional).
	Logger keypool.Logger

	// MetricsEnabled enables Prometheus metrics collection (default: true).
	// Set to false explicitly to disable metrics.
	MetricsEnabled *bool

	// Tracer creates pipeline, branch and operation spans (default: the global otel tracer).
	Tracer trace.Tracer

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Orchestrator runs workflows. It holds no per-run state; every Run builds its
// own pool manager, executor and batch scheduler bound to the owner and provider.
type Orchestrator struct {
	config         Config
	metricsEnabled bool
}

var _ keypool.Pipeline = (*Orchestrator)(nil)

// New creates a new Orchestrator with the given configuration.
// Applies default values for all duration/int fields if zero.
func New(cfg Config) *Orchestrator {
	if cfg.Workflow.Foundation == nil && len(cfg.Workflow.Branches) == 0 {
		cfg.Workflow = ContentWorkflow(ContentOptions{})
	}
	if cfg.CooldownWindow == 0 {
		cfg.CooldownWindow = 2 * time.Minute
	}
	if cfg.MinActive == 0 {
		cfg.MinActive = 5
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 5
	}
	if cfg.MaxRecoveryCandidates == 0 {
		cfg.MaxRecoveryCandidates = extract.MaxCandidates
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/getpup/keypool-orchestrator/pipeline")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	metricsEnabled := true
	if cfg.MetricsEnabled != nil {
		metricsEnabled = *cfg.MetricsEnabled
	}

	return &Orchestrator{
		config:         cfg,
		metricsEnabled: metricsEnabled,
	}
}

// Run executes the workflow for ownerID's credentials of provider.
//
// Every pipeline outcome is reported in the Result, including invalid input and
// exhausted credentials. The returned error is non-nil only for ErrInvalidConfig.
func (o *Orchestrator) Run(ctx context.Context, ownerID, provider string, input keypool.WorkflowInput) (keypool.Result, error) {
	if err := o.validate(); err != nil {
		return keypool.Result{}, err
	}

	rc := keypool.NewRequestContext()
	ctx = keypool.WithRequestContext(ctx, rc)
	start := time.Now()

	ctx, span := o.config.Tracer.Start(ctx, "keypool.pipeline", trace.WithAttributes(
		attribute.String("keypool.run_id", rc.RunID()),
		attribute.String("keypool.owner_id", ownerID),
		attribute.String("keypool.provider", provider),
	))
	defer span.End()

	r := o.newRun(ownerID, provider, rc)

	if o.config.Logger != nil {
		o.config.Logger.Info(ctx, "pipeline started",
			"runID", rc.RunID(), "ownerID", ownerID, "provider", provider, "topic", input.Topic)
	}

	result := r.execute(ctx, input)
	result.RunID = rc.RunID()
	result.Duration = time.Since(start)

	r.collector.IncPipelineRuns(string(result.Status))
	r.collector.ObservePipelineDuration(result.Duration.Seconds())

	span.SetAttributes(
		attribute.String("keypool.status", string(result.Status)),
		attribute.String("keypool.reason", string(result.Reason)),
	)
	if result.Status == keypool.PipelineFailed {
		if result.Err != nil {
			span.RecordError(result.Err)
		}
		span.SetStatus(codes.Error, string(result.Reason))
	}

	if o.config.Logger != nil {
		args := []interface{}{
			"runID", rc.RunID(),
			"ownerID", ownerID,
			"provider", provider,
			"status", result.Status,
			"duration", result.Duration,
		}
		if result.Status == keypool.PipelineCompleted {
			o.config.Logger.Info(ctx, "pipeline completed", args...)
		} else {
			args = append(args, "reason", result.Reason, "error", result.Err)
			o.config.Logger.Error(ctx, "pipeline did not complete", args...)
		}
	}

	return result, nil
}

func (o *Orchestrator) validate() error {
	if o.config.Store == nil {
		return fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if o.config.Caller == nil {
		return fmt.Errorf("%w: caller is required", ErrInvalidConfig)
	}
	if err := o.config.Workflow.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// run holds the components of one pipeline run.
type run struct {
	config    Config
	ownerID   string
	provider  string
	rc        *keypool.RequestContext
	collector *metrics.Collector
	pool      *pool.Manager
	exec      executor.Runner
	batch     *batch.Scheduler
}

func (o *Orchestrator) newRun(ownerID, provider string, rc *keypool.RequestContext) *run {
	cfg := o.config

	var collector *metrics.Collector
	if o.metricsEnabled {
		collector = metrics.NewCollector(provider)
	}

	lifecycleManager := lifecycle.New(lifecycle.Config{
		Store:     cfg.Store,
		Logger:    cfg.Logger,
		Collector: collector,
		Now:       cfg.Now,
	})

	prober := lifecycle.NewProber(lifecycle.ProberConfig{
		Caller:    cfg.Caller,
		Lifecycle: lifecycleManager,
		Models:    cfg.ProbeModels,
		Timeout:   cfg.ProbeTimeout,
		Logger:    cfg.Logger,
		Collector: collector,
	})

	poolManager := pool.New(pool.Config{
		Store:          cfg.Store,
		Prober:         prober,
		Lifecycle:      lifecycleManager,
		CooldownWindow: cfg.CooldownWindow,
		MinActive:      cfg.MinActive,
		Logger:         cfg.Logger,
		Collector:      collector,
		Now:            cfg.Now,
	}, ownerID, provider)

	exec := executor.New(executor.Config{
		Pool:             poolManager,
		Caller:           cfg.Caller,
		Lifecycle:        lifecycleManager,
		Prober:           prober,
		DisableProbe:     cfg.DisableProbe,
		CallTimeout:      cfg.CallTimeout,
		TransientRetries: cfg.TransientRetries,
		NewBackOff:       cfg.NewBackOff,
		Logger:           cfg.Logger,
		Collector:        collector,
		Tracer:           cfg.Tracer,
	})

	scheduler := batch.New(batch.Config{
		Pool:        poolManager,
		Runner:      exec,
		MaxAttempts: cfg.MaxAttempts,
		Logger:      cfg.Logger,
		Collector:   collector,
	})

	return &run{
		config:    cfg,
		ownerID:   ownerID,
		provider:  provider,
		rc:        rc,
		collector: collector,
		pool:      poolManager,
		exec:      exec,
		batch:     scheduler,
	}
}

func (r *run) execute(ctx context.Context, input keypool.WorkflowInput) keypool.Result {
	if err := validateInput(r.ownerID, r.provider, input); err != nil {
		return r.abort(keypool.ReasonInvalidInput, err)
	}

	meta, reason, err := r.foundation(ctx, input)
	if err != nil {
		return r.abort(reason, err)
	}

	branches := r.config.Workflow.Branches
	reports := make([]keypool.BranchReport, len(branches))
	outputs := make([][]string, len(branches))

	// Branches never return an error, so one failing branch cannot cancel another.
	var g errgroup.Group
	for i, b := range branches {
		i, b := i, b
		g.Go(func() error {
			reports[i], outputs[i] = r.runBranch(ctx, b, meta, input)
			return nil
		})
	}
	_ = g.Wait()

	return join(meta, reports, outputs)
}

// abort reports a run that ended before any branch started.
func (r *run) abort(reason keypool.FailureReason, err error) keypool.Result {
	reports := make([]keypool.BranchReport, 0, len(r.config.Workflow.Branches))
	for _, b := range r.config.Workflow.Branches {
		reports = append(reports, keypool.BranchReport{
			Name:     b.Name,
			Required: b.Required,
			Status:   keypool.BranchSkipped,
		})
	}

	return keypool.Result{
		Status:   keypool.PipelineFailed,
		Branches: reports,
		Reason:   reason,
		Err:      err,
	}
}

func validateInput(ownerID, provider string, input keypool.WorkflowInput) error {
	var missing []string
	if strings.TrimSpace(ownerID) == "" {
		missing = append(missing, "owner id")
	}
	if strings.TrimSpace(provider) == "" {
		missing = append(missing, "provider")
	}
	if strings.TrimSpace(input.Topic) == "" {
		missing = append(missing, "topic")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", keypool.ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// foundation runs Stage 0 and parses its metadata.
func (r *run) foundation(ctx context.Context, input keypool.WorkflowInput) (keypool.Metadata, keypool.FailureReason, error) {
	ctx, span := r.config.Tracer.Start(ctx, "keypool.foundation")
	defer span.End()

	op := r.config.Workflow.Foundation(input)
	outcome, err := r.exec.ExecuteWithRetry(ctx, op, r.config.MaxAttempts, r.rc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "foundation call failed")
		return keypool.Metadata{}, r.diagnose(ctx, err), fmt.Errorf("foundation failed: %w", err)
	}

	meta, err := extract.Into(outcome.Text, r.config.MaxRecoveryCandidates, validMetadata)
	if err != nil {
		span.SetStatus(codes.Error, "foundation output unusable")
		return keypool.Metadata{}, keypool.ReasonMalformedOutput,
			fmt.Errorf("%w: foundation output has no usable metadata: %v", keypool.ErrMalformedOutput, err)
	}

	span.SetAttributes(
		attribute.Int("keypool.sections", len(meta.Sections)),
		attribute.Int("keypool.faqs", len(meta.FAQs)),
	)
	if r.config.Logger != nil {
		r.config.Logger.Debug(ctx, "foundation metadata parsed",
			"runID", r.rc.RunID(), "title", meta.Title, "sections", len(meta.Sections), "faqs", len(meta.FAQs))
	}

	return meta, keypool.ReasonNone, nil
}

// runBranch runs the steps of b in order. It returns the outputs of the last step,
// or nil when a step failed.
func (r *run) runBranch(ctx context.Context, b Branch, meta keypool.Metadata, input keypool.WorkflowInput) (keypool.BranchReport, []string) {
	ctx, span := r.config.Tracer.Start(ctx, "keypool.branch", trace.WithAttributes(
		attribute.String("keypool.branch", b.Name),
		attribute.Bool("keypool.required", b.Required),
	))
	defer span.End()

	report := keypool.BranchReport{
		Name:     b.Name,
		Required: b.Required,
		Status:   keypool.BranchSucceeded,
	}

	var prev []string
	for _, step := range b.Steps {
		outputs, reason, err := r.runStep(ctx, step, meta, input, prev)
		if err != nil {
			report.Status = keypool.BranchFailed
			report.FailedStep = step.Name
			report.Reason = reason
			report.Err = fmt.Errorf("branch %s: step %s: %w", b.Name, step.Name, err)

			span.RecordError(err)
			span.SetStatus(codes.Error, string(reason))
			if r.config.Logger != nil {
				r.config.Logger.Error(ctx, "branch failed",
					"runID", r.rc.RunID(), "branch", b.Name, "step", step.Name, "reason", reason, "error", err)
			}
			return report, nil
		}
		prev = outputs
	}

	if r.config.Logger != nil {
		r.config.Logger.Debug(ctx, "branch succeeded", "runID", r.rc.RunID(), "branch", b.Name, "outputs", len(prev))
	}

	return report, prev
}

func (r *run) runStep(ctx context.Context, step Step, meta keypool.Metadata, input keypool.WorkflowInput, prev []string) ([]string, keypool.FailureReason, error) {
	ops, err := step.Operations(meta, input, prev)
	if err != nil {
		return nil, keypool.ReasonMalformedOutput, fmt.Errorf("failed to build operations: %w", err)
	}

	var outputs []string
	switch len(ops) {
	case 0:
		outputs = []string{}
	case 1:
		outcome, err := r.exec.ExecuteWithRetry(ctx, ops[0], r.config.MaxAttempts, r.rc)
		if err != nil {
			return nil, r.diagnose(ctx, err), err
		}
		outputs = []string{outcome.Text}
	default:
		res := r.batch.RunBatch(ctx, ops, r.config.BatchSize, r.rc)
		if len(res.Failed) > 0 && (!step.AllowPartial || len(res.Successful) == 0) {
			first := res.Failed[0].Err
			return nil, r.diagnose(ctx, first),
				fmt.Errorf("%d of %d operations failed: %w", len(res.Failed), res.Total, first)
		}
		if len(res.Failed) > 0 && r.config.Logger != nil {
			r.config.Logger.Info(ctx, "step accepted partial results",
				"runID", r.rc.RunID(), "step", step.Name, "successful", len(res.Successful), "failed", len(res.Failed))
		}
		outputs = res.Texts()
	}

	if step.Check != nil {
		if err := step.Check(outputs); err != nil {
			return nil, keypool.ReasonMalformedOutput, fmt.Errorf("%w: %v", keypool.ErrMalformedOutput, err)
		}
	}

	return outputs, keypool.ReasonNone, nil
}

// join derives the run status from the branch reports. A failed required branch
// fails the run; failed optional branches only make it partial.
func join(meta keypool.Metadata, reports []keypool.BranchReport, outputs [][]string) keypool.Result {
	result := keypool.Result{
		Status: keypool.PipelineCompleted,
		Artifact: keypool.Artifact{
			Metadata: meta,
			Outputs:  make(map[string][]string, len(reports)),
		},
		Branches: reports,
		Reason:   keypool.ReasonNone,
	}

	var requiredFailure, optionalFailure *keypool.BranchReport
	for i := range reports {
		rep := &reports[i]
		if rep.Status == keypool.BranchSucceeded {
			result.Artifact.Outputs[rep.Name] = outputs[i]
			continue
		}
		if rep.Required && requiredFailure == nil {
			requiredFailure = rep
		}
		if !rep.Required && optionalFailure == nil {
			optionalFailure = rep
		}
	}

	switch {
	case requiredFailure != nil:
		result.Status = keypool.PipelineFailed
		result.Reason = requiredFailure.Reason
		result.Err = requiredFailure.Err
	case optionalFailure != nil:
		result.Status = keypool.PipelinePartiallyCompleted
		result.Reason = optionalFailure.Reason
		result.Err = optionalFailure.Err
	}

	return result
}
