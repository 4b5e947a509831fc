package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/getpup/keypool-orchestrator"
	"github.com/getpup/keypool-orchestrator/config"
	"github.com/getpup/keypool-orchestrator/logging"
	"github.com/getpup/keypool-orchestrator/metrics"
	"github.com/getpup/keypool-orchestrator/pipeline"
	"github.com/getpup/keypool-orchestrator/store"
	"github.com/getpup/keypool-orchestrator/store/memory"
	"github.com/getpup/keypool-orchestrator/store/mysql"
	"github.com/getpup/keypool-orchestrator/store/postgres"
	"github.com/getpup/keypool-orchestrator/store/sqlite"
	"github.com/getpup/keypool-orchestrator/upstream"
	"github.com/getpup/keypool-orchestrator/upstream/gemini"
	"github.com/getpup/keypool-orchestrator/upstream/openai"
)

// credentialStore is what every command needs from the configured store.
type credentialStore interface {
	store.CredentialStore
	store.CredentialWriter
}

// App holds the components shared by every command.
type App struct {
	Config *config.Config
	Logger *logging.Logger
	Store  credentialStore
	Router *upstream.Router

	db            *sql.DB
	metricsServer *metrics.Server
}

// NewApp loads configuration and wires the store, logger and upstream router.
func NewApp(configPath, logLevel string, logOutput io.Writer) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, err := logging.New(logOutput, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		Router: upstream.NewRouter(map[string]keypool.Caller{
			openai.Provider: openai.New(openai.Config{
				BaseURL:      cfg.Providers.OpenAIBaseURL,
				DefaultModel: cfg.Providers.OpenAIModel,
			}),
			gemini.Provider: gemini.New(gemini.Config{
				BaseURL:      cfg.Providers.GeminiBaseURL,
				DefaultModel: cfg.Providers.GeminiModel,
			}),
		}),
	}

	if err := a.openStore(); err != nil {
		return nil, err
	}

	return a, nil
}

func (a *App) openStore() error {
	db := a.Config.Database

	switch db.Driver {
	case config.DriverMemory:
		a.Store = memory.New()
		return nil

	case config.DriverSQLite:
		conn, err := sqlite.Open(db.DSN)
		if err != nil {
			return err
		}
		a.db = conn
		a.Store = sqlite.NewWithConfig(conn, sqlite.TableConfig{CredentialsTable: db.Table})

	case config.DriverPostgres:
		conn, err := sql.Open("postgres", db.DSN)
		if err != nil {
			return fmt.Errorf("failed to open postgres database: %w", err)
		}
		a.db = conn
		a.Store = postgres.NewWithConfig(conn, postgres.TableConfig{CredentialsTable: db.Table})

	case config.DriverMySQL:
		conn, err := mysql.Open(db.DSN)
		if err != nil {
			return fmt.Errorf("failed to open mysql database: %w", err)
		}
		a.db = conn
		a.Store = mysql.NewWithConfig(conn, mysql.TableConfig{CredentialsTable: db.Table})

	default:
		return fmt.Errorf("unsupported database driver %q", db.Driver)
	}

	return nil
}

// table returns the configured credentials table name.
func (a *App) table() string {
	if a.Config.Database.Table != "" {
		return a.Config.Database.Table
	}
	return postgres.DefaultTableConfig().CredentialsTable
}

// Pipeline builds an orchestrator from the run and pool settings.
func (a *App) Pipeline() *pipeline.Orchestrator {
	cfg := a.Config
	metricsEnabled := cfg.Metrics.Enabled

	return pipeline.New(pipeline.Config{
		Store:  a.Store,
		Caller: a.Router,
		Workflow: pipeline.ContentWorkflow(pipeline.ContentOptions{
			Model:          cfg.Run.Model,
			FallbackModels: cfg.Run.FallbackModels,
			MaxTokens:      cfg.Run.MaxTokens,
		}),
		CooldownWindow:   cfg.Pool.CooldownWindow,
		MinActive:        cfg.Pool.MinActive,
		MaxAttempts:      cfg.Run.MaxAttempts,
		BatchSize:        cfg.Run.BatchSize,
		CallTimeout:      cfg.Run.CallTimeout,
		TransientRetries: cfg.Run.TransientRetries,
		DisableProbe:     cfg.Run.DisableProbe,
		ProbeModels:      cfg.Providers.ProbeModels,
		ProbeTimeout:     cfg.Run.ProbeTimeout,
		Logger:           a.Logger,
		MetricsEnabled:   &metricsEnabled,
	})
}

// StartMetrics serves /metrics when an address is configured.
func (a *App) StartMetrics(ctx context.Context) {
	if !a.Config.Metrics.Enabled || a.Config.Metrics.Addr == "" {
		return
	}

	a.metricsServer = metrics.NewServer(a.Config.Metrics.Addr)
	a.metricsServer.Start()
	a.Logger.Info(ctx, "metrics server started", "addr", a.metricsServer.Addr())
}

// Close stops the metrics server and closes the database.
func (a *App) Close(ctx context.Context) {
	if a.metricsServer != nil {
		if err := a.metricsServer.Err(); err != nil {
			a.Logger.Error(ctx, "metrics server failed", "error", err)
		}
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.Logger.Error(ctx, "failed to stop metrics server", "error", err)
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.Logger.Error(ctx, "failed to close database", "error", err)
		}
	}
}

// requireProvider rejects providers no upstream caller is registered for.
func (a *App) requireProvider(provider string) error {
	if !a.Router.Supports(provider) {
		return fmt.Errorf("unknown provider %q (supported: %s)", provider, strings.Join(a.Router.Providers(), ", "))
	}
	return nil
}
