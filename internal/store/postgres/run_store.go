package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/gamesjobs/pipeline/internal/pipeline"
)

// RunStore implements pipeline.RunStore over Postgres.
type RunStore struct {
	db DB
}

// NewRunStore constructs a RunStore over an existing pool or mock.
func NewRunStore(db DB) *RunStore {
	return &RunStore{db: db}
}

// CreateRun inserts a new run row.
func (s *RunStore) CreateRun(ctx context.Context, run pipeline.RunRecord) error {
	query := `
INSERT INTO runs (id, source_label, status, jobs_scraped, duplicates_found, errors_count)
VALUES ($1, $2, $3, 0, 0, 0)`

	if _, err := s.db.Exec(ctx, query, run.ID, run.SourceLabel, run.Status); err != nil {
		return fmt.Errorf("insert run: %w", mapError(err))
	}
	return nil
}

// TransitionRun performs a conditional status update: the row changes only
// when it is still in the from status, which makes transitions monotonic
// even under concurrent trackers.
func (s *RunStore) TransitionRun(ctx context.Context, runID string, from, to pipeline.RunStatus, at time.Time) error {
	var query string
	switch {
	case to == pipeline.RunRunning:
		query = `UPDATE runs SET status = $3, start_time = $4 WHERE id = $1 AND status = $2`
	case to.Terminal():
		query = `UPDATE runs SET status = $3, end_time = $4 WHERE id = $1 AND status = $2`
	default:
		return fmt.Errorf("transition to %q: %w", to, pipeline.ErrInvalidTransition)
	}

	tag, err := s.db.Exec(ctx, query, runID, from, to, at)
	if err != nil {
		return fmt.Errorf("transition run: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s is not %q: %w", runID, from, pipeline.ErrInvalidTransition)
	}
	return nil
}

// AddRunCounters atomically adds the delta to the run's counters.
func (s *RunStore) AddRunCounters(ctx context.Context, runID string, delta pipeline.RunCounters) error {
	query := `
UPDATE runs SET
	jobs_scraped = jobs_scraped + $2,
	duplicates_found = duplicates_found + $3,
	errors_count = errors_count + $4
WHERE id = $1`

	tag, err := s.db.Exec(ctx, query, runID, delta.JobsScraped, delta.DuplicatesFound, delta.ErrorsCount)
	if err != nil {
		return fmt.Errorf("add run counters: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", runID, pipeline.ErrNotFound)
	}
	return nil
}

const runColumns = `id, source_label, start_time, end_time, status, jobs_scraped, duplicates_found, errors_count`

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(ctx context.Context, runID string) (pipeline.RunRecord, error) {
	var run pipeline.RunRecord
	err := s.db.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, runID).Scan(
		&run.ID,
		&run.SourceLabel,
		&run.StartTime,
		&run.EndTime,
		&run.Status,
		&run.Counters.JobsScraped,
		&run.Counters.DuplicatesFound,
		&run.Counters.ErrorsCount,
	)
	if err != nil {
		return pipeline.RunRecord{}, fmt.Errorf("get run: %w", mapError(err))
	}
	return run, nil
}

// ListRuns returns the most recently created runs, newest first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]pipeline.RunRecord, error) {
	rows, err := s.db.Query(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", mapError(err))
	}
	defer rows.Close()

	var out []pipeline.RunRecord
	for rows.Next() {
		var run pipeline.RunRecord
		if err := rows.Scan(
			&run.ID,
			&run.SourceLabel,
			&run.StartTime,
			&run.EndTime,
			&run.Status,
			&run.Counters.JobsScraped,
			&run.Counters.DuplicatesFound,
			&run.Counters.ErrorsCount,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}
