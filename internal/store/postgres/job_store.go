package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gamesjobs/pipeline/internal/pipeline"
)

// JobStore implements pipeline.JobStore over Postgres. Uniqueness of jobs
// (url, content_fingerprint), keywords (lower(phrase)) and occurrences
// (job_id, keyword_id) is enforced by unique indexes, not application logic.
type JobStore struct {
	db DB
}

// NewJobStore constructs a JobStore over an existing pool or mock.
func NewJobStore(db DB) *JobStore {
	return &JobStore{db: db}
}

// InTx runs fn in one transaction; any error rolls the whole document back.
func (s *JobStore) InTx(ctx context.Context, fn func(pipeline.JobTx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", mapError(err))
	}
	if err := fn(&jobTx{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", mapError(err))
	}
	return nil
}

type jobTx struct {
	tx pgx.Tx
}

const jobColumns = `id, url, title, company, COALESCE(location, ''), COALESCE(description, ''),
	COALESCE(salary, ''), posting_date, first_seen_at, last_seen_at, content_fingerprint, source, is_active`

func (t *jobTx) scanJob(row pgx.Row) (pipeline.JobRecord, error) {
	var job pipeline.JobRecord
	err := row.Scan(
		&job.ID,
		&job.URL,
		&job.Title,
		&job.Company,
		&job.Location,
		&job.Description,
		&job.Salary,
		&job.PostingDate,
		&job.FirstSeenAt,
		&job.LastSeenAt,
		&job.Fingerprint,
		&job.Source,
		&job.IsActive,
	)
	if err != nil {
		return pipeline.JobRecord{}, mapError(err)
	}
	return job, nil
}

func (t *jobTx) JobByURL(ctx context.Context, url string) (pipeline.JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE url = $1`
	job, err := t.scanJob(t.tx.QueryRow(ctx, query, url))
	if err != nil {
		return pipeline.JobRecord{}, fmt.Errorf("job by url: %w", err)
	}
	return job, nil
}

func (t *jobTx) JobByFingerprint(ctx context.Context, fp string) (pipeline.JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE content_fingerprint = $1`
	job, err := t.scanJob(t.tx.QueryRow(ctx, query, fp))
	if err != nil {
		return pipeline.JobRecord{}, fmt.Errorf("job by fingerprint: %w", err)
	}
	return job, nil
}

func (t *jobTx) InsertJob(ctx context.Context, job pipeline.JobRecord) (int64, error) {
	query := `
INSERT INTO jobs (
	url, title, company, location, description, salary,
	posting_date, first_seen_at, last_seen_at, content_fingerprint, source, is_active
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id`

	var id int64
	err := t.tx.QueryRow(ctx, query,
		job.URL,
		job.Title,
		job.Company,
		nullIfEmpty(job.Location),
		job.Description,
		nullIfEmpty(job.Salary),
		job.PostingDate,
		job.FirstSeenAt,
		job.LastSeenAt,
		job.Fingerprint,
		job.Source,
		job.IsActive,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert job: %w", mapError(err))
	}
	return id, nil
}

func (t *jobTx) TouchJob(ctx context.Context, jobID int64, seenAt time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE jobs SET last_seen_at = $2 WHERE id = $1`, jobID, seenAt)
	if err != nil {
		return fmt.Errorf("touch job: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("touch job %d: %w", jobID, pipeline.ErrNotFound)
	}
	return nil
}

func (t *jobTx) KeywordByPhrase(ctx context.Context, phrase string) (pipeline.KeywordRecord, error) {
	var kw pipeline.KeywordRecord
	err := t.tx.QueryRow(ctx,
		`SELECT id, phrase, category FROM keywords WHERE lower(phrase) = lower($1)`,
		phrase,
	).Scan(&kw.ID, &kw.Phrase, &kw.Category)
	if err != nil {
		return pipeline.KeywordRecord{}, fmt.Errorf("keyword by phrase: %w", mapError(err))
	}
	return kw, nil
}

func (t *jobTx) InsertKeyword(ctx context.Context, kw pipeline.KeywordRecord) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO keywords (phrase, category) VALUES ($1, $2) RETURNING id`,
		kw.Phrase, kw.Category,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert keyword: %w", mapError(err))
	}
	return id, nil
}

func (t *jobTx) UpsertOccurrence(ctx context.Context, occ pipeline.OccurrenceRecord) error {
	query := `
INSERT INTO occurrences (job_id, keyword_id, frequency)
VALUES ($1, $2, $3)
ON CONFLICT (job_id, keyword_id) DO UPDATE SET frequency = EXCLUDED.frequency`

	if _, err := t.tx.Exec(ctx, query, occ.JobID, occ.KeywordID, occ.Frequency); err != nil {
		return fmt.Errorf("upsert occurrence: %w", mapError(err))
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
