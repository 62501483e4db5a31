// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/gamesjobs/pipeline/internal/aggregate"
	"github.com/gamesjobs/pipeline/internal/api"
	"github.com/gamesjobs/pipeline/internal/catalog"
	"github.com/gamesjobs/pipeline/internal/clock/system"
	"github.com/gamesjobs/pipeline/internal/config"
	"github.com/gamesjobs/pipeline/internal/extract"
	"github.com/gamesjobs/pipeline/internal/ingest"
	"github.com/gamesjobs/pipeline/internal/logging"
	"github.com/gamesjobs/pipeline/internal/normalize"
	"github.com/gamesjobs/pipeline/internal/pipeline"
	"github.com/gamesjobs/pipeline/internal/reconcile"
	"github.com/gamesjobs/pipeline/internal/runtracker"
	"github.com/gamesjobs/pipeline/internal/sched"
	"github.com/gamesjobs/pipeline/internal/source"
	"github.com/gamesjobs/pipeline/internal/store/memory"
	"github.com/gamesjobs/pipeline/internal/store/postgres"
)

// App holds all the shared, long-lived services for the application.
// It is initialized once at startup and passed to the commands that need it.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	pool       *pgxpool.Pool
	runs       pipeline.RunStore
	runner     *ingest.Runner
	tracker    *runtracker.Tracker
	aggregator *aggregate.Aggregator
	server     *api.Server
	scheduler  *sched.Scheduler
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger instance.
func (a *App) Logger() *zap.Logger { return a.logger }

// Runner returns the ingestion runner.
func (a *App) Runner() *ingest.Runner { return a.runner }

// Aggregator returns the summary aggregator.
func (a *App) Aggregator() *aggregate.Aggregator { return a.aggregator }

// Server returns the HTTP trigger server.
func (a *App) Server() *api.Server { return a.server }

// Scheduler returns the cron scheduler, or nil when scheduling is disabled.
func (a *App) Scheduler() *sched.Scheduler { return a.scheduler }

// NewApp creates and initializes a new App from the configuration at
// cfgPath. It is the central point for service initialization and fails fast
// when any critical service cannot be built.
func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger.Info("initializing application services",
		zap.String("db_provider", cfg.DB.Provider),
	)

	a := &App{cfg: cfg, logger: logger}

	var jobs pipeline.JobStore
	var summaries pipeline.SummaryStore
	switch cfg.DB.Provider {
	case "postgres":
		pool, err := postgres.NewPool(ctx, postgres.Config{
			DSN:             cfg.DB.DSN,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.pool = pool
		jobs = postgres.NewJobStore(pool)
		a.runs = postgres.NewRunStore(pool)
		summaries = postgres.NewSummaryStore(pool)
	case "memory":
		store := memory.New()
		jobs = store
		a.runs = store
		summaries = store
	default:
		return nil, fmt.Errorf("unknown db.provider %q", cfg.DB.Provider)
	}

	cat, err := catalog.Load(cfg.Catalog.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("load keyword catalog: %w", err)
	}

	aliases := normalize.DefaultAliases()
	if cfg.Aliases.Path != "" {
		loaded, err := normalize.LoadAliases(cfg.Aliases.Path)
		if err != nil {
			logger.Warn("alias file unreadable, locations pass through trimmed",
				zap.String("path", cfg.Aliases.Path),
				zap.Error(err),
			)
			aliases = nil
		} else {
			aliases = loaded
		}
	}

	clk := system.Clock{}
	a.tracker = runtracker.New(a.runs, clk, logger)
	a.aggregator = aggregate.New(summaries, logger)

	var sources []source.Source
	if cfg.Ingest.DocumentDir != "" {
		sources = append(sources, source.NewDir("document_dir", cfg.Ingest.DocumentDir, logger))
	}

	a.runner = ingest.New(
		sources,
		normalize.New(aliases),
		extract.New(cat),
		reconcile.New(jobs, clk, logger, cfg.Ingest.MaxReconcileAttempts),
		a.tracker,
		a.aggregator,
		clk,
		logger,
		ingest.Options{
			Concurrency:      cfg.Ingest.Concurrency,
			SourceLabel:      cfg.Ingest.SourceLabel,
			ChainAggregation: cfg.Ingest.ChainAggregation,
		},
	)

	a.server = api.NewServer(a.runner, a.runs, a.aggregator, logger)

	if cfg.Schedule.Enabled {
		scheduler, err := sched.New(
			cfg.Schedule.IngestSpec,
			cfg.Schedule.AggregateSpec,
			sched.Jobs{
				Ingest: func(ctx context.Context) error {
					_, err := a.runner.Run(ctx)
					return err
				},
				Aggregate: a.aggregator.Rebuild,
			},
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("init scheduler: %w", err)
		}
		a.scheduler = scheduler
	}

	logger.Info("application services initialized")
	return a, nil
}

// Close gracefully shuts down all services in the App container.
// It is called by a Cobra hook after the command finishes execution.
func (a *App) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	// Best effort: stderr sync fails on some platforms.
	_ = a.logger.Sync()
}
