package pipeline

import (
	"context"
	"time"
)

// JobTx exposes the per-document persistence operations that must commit or
// roll back together. Implementations back it with a database transaction.
type JobTx interface {
	// JobByURL returns the job owning the URL, or ErrNotFound.
	JobByURL(ctx context.Context, url string) (JobRecord, error)
	// JobByFingerprint returns the job owning the fingerprint, or ErrNotFound.
	JobByFingerprint(ctx context.Context, fingerprint string) (JobRecord, error)
	// InsertJob inserts a new job and returns its assigned ID. A lost race
	// on the url or fingerprint uniqueness constraint surfaces as ErrConflict.
	InsertJob(ctx context.Context, job JobRecord) (int64, error)
	// TouchJob refreshes last_seen_at without altering first-seen content.
	TouchJob(ctx context.Context, jobID int64, seenAt time.Time) error

	// KeywordByPhrase looks a keyword up case-insensitively, or ErrNotFound.
	KeywordByPhrase(ctx context.Context, phrase string) (KeywordRecord, error)
	// InsertKeyword inserts a new vocabulary entry and returns its ID.
	InsertKeyword(ctx context.Context, kw KeywordRecord) (int64, error)
	// UpsertOccurrence inserts the occurrence or overwrites its frequency.
	UpsertOccurrence(ctx context.Context, occ OccurrenceRecord) error
}

// JobStore owns jobs, keywords and occurrences. The reconciler is its only
// writer.
type JobStore interface {
	// InTx runs fn inside one transaction. An error from fn rolls the
	// transaction back and is returned unchanged.
	InTx(ctx context.Context, fn func(JobTx) error) error
}

// RunStore owns run lifecycle records. The run tracker is its only writer.
type RunStore interface {
	CreateRun(ctx context.Context, run RunRecord) error
	// TransitionRun moves a run from one status to another, setting the
	// start or end timestamp as appropriate. It returns ErrInvalidTransition
	// when the run is not currently in the from status.
	TransitionRun(ctx context.Context, runID string, from, to RunStatus, at time.Time) error
	// AddRunCounters atomically adds the delta to the run's counters.
	AddRunCounters(ctx context.Context, runID string, delta RunCounters) error
	GetRun(ctx context.Context, runID string) (RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// SummaryStore owns summary rows. The aggregator is its only writer.
type SummaryStore interface {
	// OccurrenceGroups computes the current (region, period, keyword) groups
	// from active jobs joined with their occurrences. Count is the number of
	// distinct jobs in the group. Jobs without a location or posting date
	// are excluded.
	OccurrenceGroups(ctx context.Context) ([]SummaryRecord, error)
	// UpsertSummary inserts the row or overwrites its count.
	UpsertSummary(ctx context.Context, row SummaryRecord) error
}
