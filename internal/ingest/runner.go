// Package ingest orchestrates one ingestion run end to end: source fan-out,
// normalization, duplicate filtering, extraction, and reconciliation.
package ingest

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/gamesjobs/pipeline/internal/aggregate"
	"github.com/gamesjobs/pipeline/internal/dedup"
	"github.com/gamesjobs/pipeline/internal/extract"
	"github.com/gamesjobs/pipeline/internal/fingerprint"
	"github.com/gamesjobs/pipeline/internal/metrics"
	"github.com/gamesjobs/pipeline/internal/normalize"
	"github.com/gamesjobs/pipeline/internal/pipeline"
	"github.com/gamesjobs/pipeline/internal/reconcile"
	"github.com/gamesjobs/pipeline/internal/runtracker"
	"github.com/gamesjobs/pipeline/internal/source"
)

// DefaultConcurrency bounds source adapters running at once when the
// configuration does not say otherwise.
const DefaultConcurrency = 4

// Options configures a Runner.
type Options struct {
	// Concurrency caps how many source adapters discover at the same time.
	Concurrency int
	// SourceLabel is recorded on every run this runner creates.
	SourceLabel string
	// ChainAggregation triggers a summary rebuild after each run that
	// stored at least one document.
	ChainAggregation bool
}

// Runner drives ingestion runs over a fixed set of source adapters.
type Runner struct {
	sources    []source.Source
	normalizer *normalize.Normalizer
	extractor  *extract.Extractor
	reconciler *reconcile.Reconciler
	tracker    *runtracker.Tracker
	aggregator *aggregate.Aggregator
	clock      pipeline.Clock
	logger     *zap.Logger
	opts       Options
}

// New constructs a Runner. aggregator may be nil when aggregation chaining
// is disabled.
func New(
	sources []source.Source,
	normalizer *normalize.Normalizer,
	extractor *extract.Extractor,
	reconciler *reconcile.Reconciler,
	tracker *runtracker.Tracker,
	aggregator *aggregate.Aggregator,
	clock pipeline.Clock,
	logger *zap.Logger,
	opts Options,
) *Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	metrics.Init()
	return &Runner{
		sources:    sources,
		normalizer: normalizer,
		extractor:  extractor,
		reconciler: reconciler,
		tracker:    tracker,
		aggregator: aggregator,
		clock:      clock,
		logger:     logger,
		opts:       opts,
	}
}

// Run executes one full ingestion run synchronously and returns the final
// run record. The run record exists even when Run returns an error, so
// callers can surface the run ID alongside the failure.
func (r *Runner) Run(ctx context.Context) (pipeline.RunRecord, error) {
	run, err := r.tracker.Create(ctx, r.opts.SourceLabel)
	if err != nil {
		return pipeline.RunRecord{}, fmt.Errorf("create run: %w", err)
	}
	execErr := r.execute(ctx, run.ID)
	if final, err := r.tracker.Get(ctx, run.ID); err == nil {
		run = final
	}
	return run, execErr
}

// Launch creates a run and executes it in the background, returning the run
// ID immediately. The run outlives the caller's context; canceling ctx after
// Launch returns does not cancel the run.
func (r *Runner) Launch(ctx context.Context) (string, error) {
	run, err := r.tracker.Create(ctx, r.opts.SourceLabel)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	go func() {
		bg := context.WithoutCancel(ctx)
		if err := r.execute(bg, run.ID); err != nil {
			r.logger.Error("background run failed",
				zap.String("run_id", run.ID),
				zap.Error(err),
			)
		}
	}()
	return run.ID, nil
}

func (r *Runner) execute(ctx context.Context, runID string) error {
	started := r.clock.Now()
	if err := r.tracker.Start(ctx, runID); err != nil {
		return fmt.Errorf("start run %s: %w", runID, err)
	}

	log := r.logger.With(zap.String("run_id", runID))
	log.Info("ingestion run started", zap.Int("sources", len(r.sources)))

	filter := dedup.NewFilter()
	sem := make(chan struct{}, r.opts.Concurrency)
	results := make([]error, len(r.sources))

	var wg sync.WaitGroup
	for i, src := range r.sources {
		wg.Add(1)
		go func(i int, src source.Source) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = r.runSource(ctx, runID, src, filter)
		}(i, src)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		if abortErr := r.tracker.Abort(context.WithoutCancel(ctx), runID); abortErr != nil {
			log.Error("failed to abort canceled run", zap.Error(abortErr))
		}
		return fmt.Errorf("run %s canceled: %w", runID, err)
	}

	var succeeded, failed int
	for i, err := range results {
		if err != nil {
			failed++
			log.Error("source failed",
				zap.String("source", r.sources[i].Name()),
				zap.Error(err),
			)
			continue
		}
		succeeded++
	}

	status, err := r.tracker.Finish(ctx, runID, succeeded, failed)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	metrics.ObserveRun(string(status), r.clock.Now().Sub(started))
	log.Info("ingestion run finished",
		zap.String("status", string(status)),
		zap.Int("sources_succeeded", succeeded),
		zap.Int("sources_failed", failed),
	)

	if r.opts.ChainAggregation && r.aggregator != nil && status != pipeline.RunFailed {
		stats, err := r.aggregator.Rebuild(ctx)
		if err != nil {
			log.Error("chained summary rebuild failed", zap.Error(err))
		} else {
			metrics.ObserveSummaryGroups(stats.Upserted, stats.Skipped)
		}
	}
	return nil
}

// runSource discovers one adapter's documents and feeds each through the
// processing chain. Per-document failures are counted against the run but do
// not fail the adapter; only discovery errors do.
func (r *Runner) runSource(ctx context.Context, runID string, src source.Source, filter *dedup.Filter) error {
	return src.Discover(ctx, func(raw pipeline.RawDocument) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		delta := r.processDocument(ctx, src.Name(), raw, filter)
		if err := r.tracker.AddCounters(ctx, runID, delta); err != nil {
			r.logger.Warn("failed to record run counters",
				zap.String("run_id", runID),
				zap.Error(err),
			)
		}
		return nil
	})
}

func (r *Runner) processDocument(ctx context.Context, sourceName string, raw pipeline.RawDocument, filter *dedup.Filter) pipeline.RunCounters {
	doc := r.normalizer.Normalize(raw)
	if doc.URL == "" {
		r.logger.Warn("dropping document without url",
			zap.String("source", sourceName),
			zap.String("title", doc.Title),
		)
		metrics.ObserveDocument(sourceName, metrics.OutcomeError)
		return pipeline.RunCounters{ErrorsCount: 1}
	}

	fp := fingerprint.Compute(doc)
	if filter.Check(doc.URL, fp).Duplicate() {
		metrics.ObserveDocument(sourceName, metrics.OutcomeDuplicate)
		return pipeline.RunCounters{DuplicatesFound: 1}
	}

	extraction := r.extractor.Extract(doc.Description)
	out, err := r.reconciler.Reconcile(ctx, doc, fp, extraction)
	if err != nil {
		r.logger.Error("document reconciliation failed",
			zap.String("source", sourceName),
			zap.String("url", doc.URL),
			zap.Error(err),
		)
		metrics.ObserveDocument(sourceName, metrics.OutcomeError)
		return pipeline.RunCounters{ErrorsCount: 1}
	}

	r.logger.Debug("document reconciled",
		zap.String("source", sourceName),
		zap.String("url", doc.URL),
		zap.Int64("job_id", out.JobID),
		zap.Bool("created", out.Created),
	)
	metrics.ObserveDocument(sourceName, metrics.OutcomeStored)
	return pipeline.RunCounters{JobsScraped: 1}
}
