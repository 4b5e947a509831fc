// Package keypool is the high-level entry point: it builds a content pipeline
// over a credential store and an upstream caller from functional options.
package keypool

import (
	"database/sql"
	"fmt"
	"time"

	rootpkg "github.com/getpup/keypool-orchestrator"
	"github.com/getpup/keypool-orchestrator/pipeline"
	"github.com/getpup/keypool-orchestrator/store"
	"github.com/getpup/keypool-orchestrator/store/postgres"
	"go.opentelemetry.io/otel/trace"
)

// Re-export core types from root package
type (
	// Credential is a caller-supplied secret used to authenticate upstream.
	Credential = rootpkg.Credential

	// WorkflowInput describes the content a pipeline run should produce.
	WorkflowInput = rootpkg.WorkflowInput

	// Result is the terminal report of a pipeline run.
	Result = rootpkg.Result

	// Caller performs one upstream model call with a credential.
	Caller = rootpkg.Caller

	// Logger receives structured log lines.
	Logger = rootpkg.Logger
)

// Option configures a Pipeline.
type Option func(*config)

// config holds the internal configuration for creating a Pipeline.
type config struct {
	db             *sql.DB
	store          store.CredentialStore
	caller         rootpkg.Caller
	workflow       *pipeline.Workflow
	cooldownWindow time.Duration
	minActive      int
	maxAttempts    int
	batchSize      int
	callTimeout    time.Duration
	disableProbe   bool
	probeModels    map[string]string
	logger         rootpkg.Logger
	metricsEnabled *bool
	tracer         trace.Tracer
	tableConfig    postgres.TableConfig
}

// New creates a new Pipeline with the given options.
//
// Required options:
//   - WithStore or WithDatabase: where credentials live
//   - WithCaller: the upstream client
//
// Optional configuration (with defaults):
//   - WithCooldownWindow: how long failed credentials are skipped (default: 2m)
//   - WithMinActive: Active count below which credentials are probed for promotion (default: 5)
//   - WithMaxAttempts: attempt budget per operation (default: 3)
//   - WithBatchSize: chunk size for batched steps (default: 5)
//   - WithCallTimeout: timeout per upstream call (default: 60s)
//   - WithProbeDisabled: skip the probe before each credential is used (default: probe)
//   - WithProbeModel: model used to probe a provider's credentials (default: the caller's default)
//   - WithWorkflow: the workflow to run (default: pipeline.ContentWorkflow)
//   - WithLogger: logger for observability (default: nil)
//   - WithMetricsEnabled: enable Prometheus metrics (default: true)
//   - WithTracer: OpenTelemetry tracer (default: global tracer)
//   - WithTableName: credentials table used with WithDatabase (default: keypool_credentials)
//
// Example:
//
//	p, err := keypool.New(
//	    keypool.WithDatabase(db),
//	    keypool.WithCaller(upstream.NewRouter(routes)),
//	    keypool.WithCooldownWindow(5*time.Minute),
//	)
//
// Returns an error if any required option is missing.
func New(opts ...Option) (rootpkg.Pipeline, error) {
	// Apply defaults
	cfg := &config{
		tableConfig: postgres.DefaultTableConfig(),
	}

	// Apply options
	for _, opt := range opts {
		opt(cfg)
	}

	// Create store from database if not provided
	if cfg.store == nil && cfg.db != nil {
		cfg.store = postgres.NewWithConfig(cfg.db, cfg.tableConfig)
	}

	// Validate required fields
	if cfg.store == nil {
		return nil, fmt.Errorf("credential store is required: use WithStore or WithDatabase option")
	}
	if cfg.caller == nil {
		return nil, fmt.Errorf("caller is required: use WithCaller option")
	}

	pc := pipeline.Config{
		Store:          cfg.store,
		Caller:         cfg.caller,
		CooldownWindow: cfg.cooldownWindow,
		MinActive:      cfg.minActive,
		MaxAttempts:    cfg.maxAttempts,
		BatchSize:      cfg.batchSize,
		CallTimeout:    cfg.callTimeout,
		DisableProbe:   cfg.disableProbe,
		ProbeModels:    cfg.probeModels,
		Logger:         cfg.logger,
		MetricsEnabled: cfg.metricsEnabled,
		Tracer:         cfg.tracer,
	}
	if cfg.workflow != nil {
		if err := cfg.workflow.Validate(); err != nil {
			return nil, fmt.Errorf("invalid workflow: %w", err)
		}
		pc.Workflow = *cfg.workflow
	}

	return pipeline.New(pc), nil
}

// WithDatabase uses a PostgreSQL credential store on db.
// Ignored when WithStore is also given.
func WithDatabase(db *sql.DB) Option {
	return func(c *config) {
		c.db = db
	}
}

// WithStore sets a custom credential store.
func WithStore(s store.CredentialStore) Option {
	return func(c *config) {
		c.store = s
	}
}

// WithCaller sets the upstream caller.
func WithCaller(caller rootpkg.Caller) Option {
	return func(c *config) {
		c.caller = caller
	}
}

// WithWorkflow sets the workflow to run instead of the default content workflow.
func WithWorkflow(wf pipeline.Workflow) Option {
	return func(c *config) {
		c.workflow = &wf
	}
}

// WithCooldownWindow sets how long a throttled or failed credential is skipped.
func WithCooldownWindow(window time.Duration) Option {
	return func(c *config) {
		c.cooldownWindow = window
	}
}

// WithMinActive sets the Active count below which cooled-down credentials are probed.
func WithMinActive(n int) Option {
	return func(c *config) {
		c.minActive = n
	}
}

// WithMaxAttempts sets the attempt budget for each operation.
func WithMaxAttempts(n int) Option {
	return func(c *config) {
		c.maxAttempts = n
	}
}

// WithBatchSize sets the chunk size for steps with several operations.
func WithBatchSize(size int) Option {
	return func(c *config) {
		c.batchSize = size
	}
}

// WithCallTimeout sets the timeout for each upstream call.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.callTimeout = timeout
	}
}

// WithProbeDisabled turns off the probe before each credential is used.
func WithProbeDisabled() Option {
	return func(c *config) {
		c.disableProbe = true
	}
}

// WithProbeModel sets the model used to probe credentials of provider.
func WithProbeModel(provider, model string) Option {
	return func(c *config) {
		if c.probeModels == nil {
			c.probeModels = make(map[string]string)
		}
		c.probeModels[provider] = model
	}
}

// WithLogger sets the logger for observability.
func WithLogger(logger rootpkg.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetricsEnabled enables or disables Prometheus metrics collection.
func WithMetricsEnabled(enabled bool) Option {
	return func(c *config) {
		c.metricsEnabled = &enabled
	}
}

// WithTracer sets the OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *config) {
		c.tracer = tracer
	}
}

// WithTableName sets a custom credentials table for the store created by WithDatabase.
func WithTableName(table string) Option {
	return func(c *config) {
		c.tableConfig = postgres.TableConfig{CredentialsTable: table}
	}
}

// RunMigrations creates the credentials table in a PostgreSQL database.
//
// This should typically be run once during application deployment or startup.
//
// To run migrations with a custom table name, use RunMigrationsWithTableName.
func RunMigrations(db *sql.DB) error {
	return RunMigrationsWithTableName(db, postgres.DefaultTableConfig().CredentialsTable)
}

// RunMigrationsWithTableName creates the credentials table with a custom name.
// Use this if you specified a custom table name via WithTableName.
func RunMigrationsWithTableName(db *sql.DB, table string) error {
	_, err := db.Exec(postgres.MigrationUp(postgres.TableConfig{CredentialsTable: table}))
	if err != nil {
		return fmt.Errorf("failed to execute migrations: %w", err)
	}

	return nil
}
