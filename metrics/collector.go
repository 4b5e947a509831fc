package metrics

// Collector wraps metrics and provides helper methods with a pre-filled provider label.
// A nil *Collector is valid and records nothing.
type Collector struct {
	provider string
}

// NewCollector creates a new Collector for the given provider.
func NewCollector(provider string) *Collector {
	return &Collector{provider: provider}
}

// Provider returns the provider label.
func (c *Collector) Provider() string {
	if c == nil {
		return ""
	}
	return c.provider
}

// IncProbes increments the probes counter for the resulting status.
func (c *Collector) IncProbes(status string) {
	if c == nil {
		return
	}
	ProbesTotal.WithLabelValues(c.provider, status).Inc()
}

// IncStatusTransition increments the status transitions counter.
func (c *Collector) IncStatusTransition(from, to string) {
	if c == nil {
		return
	}
	StatusTransitionsTotal.WithLabelValues(c.provider, from, to).Inc()
}

// AddAssignments adds n handed-out credentials.
func (c *Collector) AddAssignments(n int) {
	if c == nil || n <= 0 {
		return
	}
	AssignmentsTotal.WithLabelValues(c.provider).Add(float64(n))
}

// AddPromotions adds n promoted credentials.
func (c *Collector) AddPromotions(n int) {
	if c == nil || n <= 0 {
		return
	}
	PromotionsTotal.WithLabelValues(c.provider).Add(float64(n))
}

// IncReplacements increments the replacements counter with "found" or "none".
func (c *Collector) IncReplacements(found bool) {
	if c == nil {
		return
	}
	result := "none"
	if found {
		result = "found"
	}
	ReplacementsTotal.WithLabelValues(c.provider, result).Inc()
}

// IncExhaustion increments the exhaustion counter for a reason.
func (c *Collector) IncExhaustion(reason string) {
	if c == nil {
		return
	}
	ExhaustionTotal.WithLabelValues(c.provider, reason).Inc()
}

// IncOperations increments the operations counter with "success" or "failure".
func (c *Collector) IncOperations(success bool) {
	if c == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	OperationsTotal.WithLabelValues(c.provider, result).Inc()
}

// IncUpstreamErrors increments the upstream errors counter for an error kind.
func (c *Collector) IncUpstreamErrors(kind string) {
	if c == nil {
		return
	}
	UpstreamErrorsTotal.WithLabelValues(c.provider, kind).Inc()
}

// IncBatches increments the batches counter.
func (c *Collector) IncBatches() {
	if c == nil {
		return
	}
	BatchesTotal.WithLabelValues(c.provider).Inc()
}

// IncPipelineRuns increments the pipeline runs counter for a terminal status.
func (c *Collector) IncPipelineRuns(status string) {
	if c == nil {
		return
	}
	PipelineRunsTotal.WithLabelValues(c.provider, status).Inc()
}

// SetCredentialCounts sets the inventory gauge for an owner. Statuses missing from counts are set to 0.
func (c *Collector) SetCredentialCounts(ownerID string, counts map[string]int) {
	if c == nil {
		return
	}
	for _, s := range []string{"active", "rate_limited", "failed"} {
		CredentialsByStatus.WithLabelValues(c.provider, ownerID, s).Set(float64(counts[s]))
	}
}

// ObserveOperationDuration records an operation duration observation.
func (c *Collector) ObserveOperationDuration(seconds float64) {
	if c == nil {
		return
	}
	OperationDuration.WithLabelValues(c.provider).Observe(seconds)
}

// ObserveProbeLatency records a probe latency observation.
func (c *Collector) ObserveProbeLatency(seconds float64) {
	if c == nil {
		return
	}
	ProbeLatency.WithLabelValues(c.provider).Observe(seconds)
}

// ObservePipelineDuration records a pipeline duration observation.
func (c *Collector) ObservePipelineDuration(seconds float64) {
	if c == nil {
		return
	}
	PipelineDuration.WithLabelValues(c.provider).Observe(seconds)
}
