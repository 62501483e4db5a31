// Package runtracker records the lifecycle of ingestion runs.
package runtracker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gamesjobs/pipeline/internal/pipeline"
)

// Tracker owns all writes to run records. Transitions follow the
// one-directional state machine queued -> running -> terminal; a failed run
// is never retried in place, a new run is created instead.
type Tracker struct {
	store  pipeline.RunStore
	clock  pipeline.Clock
	logger *zap.Logger
}

// New constructs a Tracker.
func New(store pipeline.RunStore, clock pipeline.Clock, logger *zap.Logger) *Tracker {
	return &Tracker{store: store, clock: clock, logger: logger}
}

// Create persists a new queued run and returns it.
func (t *Tracker) Create(ctx context.Context, sourceLabel string) (pipeline.RunRecord, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return pipeline.RunRecord{}, fmt.Errorf("generate run id: %w", err)
	}
	run := pipeline.RunRecord{
		ID:          id.String(),
		SourceLabel: sourceLabel,
		Status:      pipeline.RunQueued,
	}
	if err := t.store.CreateRun(ctx, run); err != nil {
		return pipeline.RunRecord{}, fmt.Errorf("create run: %w", err)
	}
	t.logger.Info("run created",
		zap.String("run_id", run.ID),
		zap.String("source_label", sourceLabel),
	)
	return run, nil
}

// Start moves a queued run to running and stamps its start time.
func (t *Tracker) Start(ctx context.Context, runID string) error {
	if err := t.store.TransitionRun(ctx, runID, pipeline.RunQueued, pipeline.RunRunning, t.clock.Now()); err != nil {
		return fmt.Errorf("start run %s: %w", runID, err)
	}
	return nil
}

// Finish moves a running run to the terminal status derived from per-adapter
// outcomes and stamps its end time.
func (t *Tracker) Finish(ctx context.Context, runID string, succeeded, failed int) (pipeline.RunStatus, error) {
	status := DeriveStatus(succeeded, failed)
	if err := t.store.TransitionRun(ctx, runID, pipeline.RunRunning, status, t.clock.Now()); err != nil {
		return "", fmt.Errorf("finish run %s: %w", runID, err)
	}
	t.logger.Info("run finished",
		zap.String("run_id", runID),
		zap.String("status", string(status)),
		zap.Int("adapters_succeeded", succeeded),
		zap.Int("adapters_failed", failed),
	)
	return status, nil
}

// Abort marks a run failed from either queued or running, for crashes before
// any adapter outcome exists.
func (t *Tracker) Abort(ctx context.Context, runID string) error {
	now := t.clock.Now()
	err := t.store.TransitionRun(ctx, runID, pipeline.RunRunning, pipeline.RunFailed, now)
	if err == nil {
		return nil
	}
	if err := t.store.TransitionRun(ctx, runID, pipeline.RunQueued, pipeline.RunFailed, now); err != nil {
		return fmt.Errorf("abort run %s: %w", runID, err)
	}
	return nil
}

// AddCounters adds the delta to the run's monotonic counters.
func (t *Tracker) AddCounters(ctx context.Context, runID string, delta pipeline.RunCounters) error {
	if delta == (pipeline.RunCounters{}) {
		return nil
	}
	if err := t.store.AddRunCounters(ctx, runID, delta); err != nil {
		return fmt.Errorf("add counters to run %s: %w", runID, err)
	}
	return nil
}

// Get fetches a run by ID.
func (t *Tracker) Get(ctx context.Context, runID string) (pipeline.RunRecord, error) {
	return t.store.GetRun(ctx, runID)
}

// Recent lists the most recently created runs.
func (t *Tracker) Recent(ctx context.Context, limit int) ([]pipeline.RunRecord, error) {
	return t.store.ListRuns(ctx, limit)
}

// DeriveStatus maps per-adapter outcomes to the run's terminal status:
// every adapter succeeded -> completed, some -> partial_success,
// none -> failed.
func DeriveStatus(succeeded, failed int) pipeline.RunStatus {
	switch {
	case succeeded > 0 && failed == 0:
		return pipeline.RunCompleted
	case succeeded > 0:
		return pipeline.RunPartialSuccess
	default:
		return pipeline.RunFailed
	}
}
