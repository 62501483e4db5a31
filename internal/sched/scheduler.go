// Package sched runs the daily ingestion and aggregation cycles on cron
// schedules.
package sched

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/gamesjobs/pipeline/internal/aggregate"
	"github.com/gamesjobs/pipeline/internal/metrics"
)

// Scheduler owns the cron loop. Each entry skips its tick if the previous
// invocation is still running, so a slow scrape never stacks.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// Jobs are the callbacks the scheduler drives.
type Jobs struct {
	// Ingest runs one full ingestion cycle.
	Ingest func(ctx context.Context) error
	// Aggregate rebuilds the regional summaries.
	Aggregate func(ctx context.Context) (aggregate.Stats, error)
}

// New wires the configured cron specs to the ingestion and aggregation jobs.
// Either spec may be empty to disable that entry.
func New(ingestSpec, aggregateSpec string, jobs Jobs, logger *zap.Logger) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	metrics.Init()
	s := &Scheduler{cron: c, logger: logger}

	if ingestSpec != "" {
		if _, err := c.AddFunc(ingestSpec, s.wrapIngest(jobs.Ingest)); err != nil {
			return nil, fmt.Errorf("invalid ingest schedule %q: %w", ingestSpec, err)
		}
	}
	if aggregateSpec != "" {
		if _, err := c.AddFunc(aggregateSpec, s.wrapAggregate(jobs.Aggregate)); err != nil {
			return nil, fmt.Errorf("invalid aggregate schedule %q: %w", aggregateSpec, err)
		}
	}
	return s, nil
}

func (s *Scheduler) wrapIngest(run func(ctx context.Context) error) func() {
	return func() {
		s.logger.Info("scheduled ingestion starting")
		if err := run(context.Background()); err != nil {
			s.logger.Error("scheduled ingestion failed", zap.Error(err))
		}
	}
}

func (s *Scheduler) wrapAggregate(rebuild func(ctx context.Context) (aggregate.Stats, error)) func() {
	return func() {
		s.logger.Info("scheduled summary rebuild starting")
		stats, err := rebuild(context.Background())
		if err != nil {
			s.logger.Error("scheduled summary rebuild failed", zap.Error(err))
			return
		}
		metrics.ObserveSummaryGroups(stats.Upserted, stats.Skipped)
	}
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("entries", len(s.cron.Entries())))
}

// Stop halts scheduling and waits for running entries to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}
