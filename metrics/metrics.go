package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ProbesTotal tracks health probes by outcome status.
var ProbesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "keypool_probes_total",
		Help: "Total credential health probes by resulting status",
	},
	[]string{"provider", "status"},
)

// StatusTransitionsTotal tracks credential status changes.
var StatusTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "keypool_status_transitions_total",
		Help: "Total credential status transitions",
	},
	[]string{"provider", "from", "to"},
)

// AssignmentsTotal tracks credentials handed out by the pool manager.
var AssignmentsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "keypool_assignments_total",
		Help: "Total credentials handed out",
	},
	[]string{"provider"},
)

// PromotionsTotal tracks credentials promoted back to active by probing.
var PromotionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "keypool_promotions_total",
		Help: "Total credentials promoted to active after a probe",
	},
	[]string{"provider"},
)

// ReplacementsTotal tracks replacement lookups by result.
var ReplacementsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "keypool_replacements_total",
		Help: "Total replacement lookups",
	},
	[]string{"provider", "result"},
)

// ExhaustionTotal tracks operations that ran out of credentials or attempts.
var ExhaustionTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "keypool_exhaustion_total",
		Help: "Total operations that exhausted credentials or attempts",
	},
	[]string{"provider", "reason"},
)

// OperationsTotal tracks executed operations by result.
var OperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "keypool_operations_total",
		Help: "Total operations executed",
	},
	[]string{"provider", "result"},
)

// UpstreamErrorsTotal tracks classified upstream failures.
var UpstreamErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "keypool_upstream_errors_total",
		Help: "Total upstream failures by error kind",
	},
	[]string{"provider", "kind"},
)

// BatchesTotal tracks batch runs.
var BatchesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "keypool_batches_total",
		Help: "Total batch runs",
	},
	[]string{"provider"},
)

// PipelineRunsTotal tracks pipeline runs by terminal status.
var PipelineRunsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "keypool_pipeline_runs_total",
		Help: "Total pipeline runs by terminal status",
	},
	[]string{"provider", "status"},
)

// CredentialsByStatus tracks the last observed pool inventory.
var CredentialsByStatus = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "keypool_credentials",
		Help: "Credentials in the last loaded pool by status",
	},
	[]string{"provider", "owner_id", "status"},
)

// OperationDuration tracks operation latency including retries.
var OperationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "keypool_operation_duration_seconds",
		Help:    "Operation latency including retries and replacements",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"provider"},
)

// ProbeLatency tracks probe round-trip latency.
var ProbeLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "keypool_probe_latency_seconds",
		Help:    "Probe round-trip latency",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"provider"},
)

// PipelineDuration tracks end-to-end pipeline latency.
var PipelineDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "keypool_pipeline_duration_seconds",
		Help:    "End-to-end pipeline latency",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	},
	[]string{"provider"},
)
