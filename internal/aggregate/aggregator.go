// Package aggregate rebuilds the denormalized regional summary table.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/gamesjobs/pipeline/internal/pipeline"
)

// ErrRebuildInProgress is returned when a rebuild is already running.
// Summaries are a cache, so the caller can simply wait for the next cycle.
var ErrRebuildInProgress = errors.New("summary rebuild already in progress")

// Stats reports what one rebuild did.
type Stats struct {
	Groups   int `json:"groups"`
	Upserted int `json:"upserted"`
	Skipped  int `json:"skipped"`
}

// Aggregator owns all writes to summary rows. It recomputes every
// (region, period, keyword) group from current occurrence data and
// overwrites the stored counts, so repeated rebuilds with unchanged source
// data are idempotent.
type Aggregator struct {
	store  pipeline.SummaryStore
	logger *zap.Logger
	mu     sync.Mutex
}

// New constructs an Aggregator.
func New(store pipeline.SummaryStore, logger *zap.Logger) *Aggregator {
	return &Aggregator{store: store, logger: logger}
}

// Rebuild recomputes and upserts all summary groups. Individual group
// failures are logged and skipped; the next scheduled rebuild corrects them.
// Rebuild never runs concurrently with itself.
func (a *Aggregator) Rebuild(ctx context.Context) (Stats, error) {
	if !a.mu.TryLock() {
		return Stats{}, ErrRebuildInProgress
	}
	defer a.mu.Unlock()

	groups, err := a.store.OccurrenceGroups(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("compute occurrence groups: %w", err)
	}

	stats := Stats{Groups: len(groups)}
	for _, row := range groups {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("rebuild canceled: %w", err)
		}
		if row.Region == "" || row.Period.IsZero() {
			stats.Skipped++
			a.logger.Warn("skipping malformed summary group",
				zap.String("region", row.Region),
				zap.Int64("keyword_id", row.KeywordID),
			)
			continue
		}
		if err := a.store.UpsertSummary(ctx, row); err != nil {
			stats.Skipped++
			a.logger.Warn("summary upsert failed, skipping group",
				zap.String("region", row.Region),
				zap.Time("period", row.Period),
				zap.Int64("keyword_id", row.KeywordID),
				zap.Error(err),
			)
			continue
		}
		stats.Upserted++
	}

	a.logger.Info("summary rebuild finished",
		zap.Int("groups", stats.Groups),
		zap.Int("upserted", stats.Upserted),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}
