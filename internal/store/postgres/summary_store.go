package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/gamesjobs/pipeline/internal/pipeline"
)

// SummaryStore implements pipeline.SummaryStore over Postgres.
type SummaryStore struct {
	db DB
	sb sq.StatementBuilderType
}

// NewSummaryStore constructs a SummaryStore over an existing pool or mock.
func NewSummaryStore(db DB) *SummaryStore {
	return &SummaryStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// OccurrenceGroups computes the (region, period, keyword) groups from active
// jobs joined with their occurrences. The occurrence table is unique per
// (job, keyword), so COUNT(*) per group equals the number of distinct jobs.
func (s *SummaryStore) OccurrenceGroups(ctx context.Context) ([]pipeline.SummaryRecord, error) {
	query, args, err := s.sb.
		Select(
			"j.location",
			"date_trunc('month', j.posting_date) AS period",
			"o.keyword_id",
			"COUNT(*)",
		).
		From("occurrences o").
		Join("jobs j ON j.id = o.job_id").
		Where(sq.Eq{"j.is_active": true}).
		Where("j.location IS NOT NULL").
		Where("j.posting_date IS NOT NULL").
		GroupBy("j.location", "period", "o.keyword_id").
		OrderBy("j.location", "period", "o.keyword_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build groups query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query occurrence groups: %w", mapError(err))
	}
	defer rows.Close()

	var out []pipeline.SummaryRecord
	for rows.Next() {
		var row pipeline.SummaryRecord
		if err := rows.Scan(&row.Region, &row.Period, &row.KeywordID, &row.Count); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		row.Period = row.Period.UTC()
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return out, nil
}

// UpsertSummary inserts the row or overwrites its count; counts are never
// incremented in place.
func (s *SummaryStore) UpsertSummary(ctx context.Context, row pipeline.SummaryRecord) error {
	query, args, err := s.sb.
		Insert("summaries").
		Columns("region", "period", "keyword_id", "count").
		Values(row.Region, row.Period, row.KeywordID, row.Count).
		Suffix("ON CONFLICT (region, period, keyword_id) DO UPDATE SET count = EXCLUDED.count").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert summary: %w", mapError(err))
	}
	return nil
}
