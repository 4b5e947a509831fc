package lifecycle

import (
	"context"
	"time"

	"github.com/getpup/keypool-orchestrator"
	"github.com/getpup/keypool-orchestrator/metrics"
	"golang.org/x/sync/errgroup"
)

// CredentialProber checks whether credentials are usable right now.
type CredentialProber interface {
	// Probe sends one minimal call with cred and persists the resulting status.
	// The returned error is non-nil only when the status could not be persisted.
	Probe(ctx context.Context, cred keypool.Credential) (ProbeResult, error)

	// ProbeAll probes every credential concurrently. Results are in input order.
	ProbeAll(ctx context.Context, creds []keypool.Credential) ([]ProbeResult, error)
}

// ProbeResult is the outcome of one probe.
type ProbeResult struct {
	// Credential is the credential with its new status applied.
	Credential keypool.Credential

	// Usable is true when the probe call succeeded.
	Usable bool

	// Status is the status the credential was moved to.
	Status keypool.Status

	// Kind classifies the probe failure; empty on success.
	Kind keypool.ErrorKind

	// Err is the upstream error; nil on success.
	Err error
}

// ProberConfig holds configuration for the Prober.
type ProberConfig struct {
	// Caller performs the probe call (required).
	Caller keypool.Caller

	// Lifecycle persists the probe outcome (required).
	Lifecycle *Manager

	// Payload is the probe prompt (default: "ping").
	Payload string

	// Models maps a provider to the model used for probing it.
	// Providers without an entry use DefaultModel.
	Models map[string]string

	// DefaultModel is the probe model for providers not in Models.
	// Empty lets the Caller pick its own default.
	DefaultModel string

	// MaxTokens bounds the probe response (default: 1).
	MaxTokens int

	// Timeout bounds each probe call (default: 15s).
	Timeout time.Duration

	// Logger is for observability (optional).
	Logger keypool.Logger

	// Collector records probe metrics (optional).
	Collector *metrics.Collector
}

// Prober implements CredentialProber with a minimal upstream call.
type Prober struct {
	config ProberConfig
}

var _ CredentialProber = (*Prober)(nil)

// NewProber creates a new Prober with the given configuration.
func NewProber(cfg ProberConfig) *Prober {
	if cfg.Payload == "" {
		cfg.Payload = "ping"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &Prober{
		config: cfg,
	}
}

// Probe sends one minimal call with cred, classifies the outcome and persists it.
// When ctx is cancelled during the call the credential is reported unusable and
// left untouched in the store.
func (p *Prober) Probe(ctx context.Context, cred keypool.Credential) (ProbeResult, error) {
	req := keypool.CallRequest{
		Payload:   p.config.Payload,
		Model:     p.modelFor(cred.Provider),
		Timeout:   p.config.Timeout,
		MaxTokens: p.config.MaxTokens,
	}

	callCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	start := time.Now()
	_, callErr := p.config.Caller.Call(callCtx, cred, req)
	cancel()
	p.config.Collector.ObserveProbeLatency(time.Since(start).Seconds())

	// A cancelled caller says nothing about the credential.
	if callErr != nil && ctx.Err() != nil {
		return ProbeResult{
			Credential: cred,
			Status:     cred.Status,
			Kind:       keypool.Classify(callErr),
			Err:        callErr,
		}, nil
	}

	updated, err := p.config.Lifecycle.RecordProbe(ctx, cred, callErr)
	result := ProbeResult{
		Credential: updated,
		Usable:     callErr == nil,
		Status:     updated.Status,
		Kind:       keypool.Classify(callErr),
		Err:        callErr,
	}

	p.config.Collector.IncProbes(string(result.Status))

	if p.config.Logger != nil {
		p.config.Logger.Debug(ctx, "probe completed",
			"credentialID", cred.ID, "usable", result.Usable, "status", result.Status, "kind", result.Kind)
	}

	return result, err
}

// ProbeAll probes every credential concurrently and waits for all of them.
// The returned error is the first persistence failure, if any.
func (p *Prober) ProbeAll(ctx context.Context, creds []keypool.Credential) ([]ProbeResult, error) {
	results := make([]ProbeResult, len(creds))

	var g errgroup.Group
	for i, cred := range creds {
		i, cred := i, cred
		g.Go(func() error {
			result, err := p.Probe(ctx, cred)
			results[i] = result
			return err
		})
	}

	err := g.Wait()
	return results, err
}

func (p *Prober) modelFor(provider string) string {
	if model, ok := p.config.Models[provider]; ok {
		return model
	}
	return p.config.DefaultModel
}
