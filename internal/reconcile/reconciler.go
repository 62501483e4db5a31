// Package reconcile merges observed documents into canonical persisted state.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/gamesjobs/pipeline/internal/pipeline"
)

// DefaultMaxAttempts bounds transaction retries on store conflicts.
const DefaultMaxAttempts = 3

// Outcome reports what one reconciliation did.
type Outcome struct {
	JobID   int64
	Created bool
}

// Reconciler owns all writes to jobs, keywords and occurrences. Each
// document is merged inside one transaction: either the job row and all of
// its occurrence rows commit together or nothing does.
type Reconciler struct {
	store       pipeline.JobStore
	clock       pipeline.Clock
	logger      *zap.Logger
	maxAttempts int
}

// New constructs a Reconciler. maxAttempts <= 0 selects DefaultMaxAttempts.
func New(store pipeline.JobStore, clock pipeline.Clock, logger *zap.Logger, maxAttempts int) *Reconciler {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Reconciler{
		store:       store,
		clock:       clock,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

// Reconcile creates or refreshes the job identified by the document's URL or
// fingerprint, then overwrites its keyword occurrences from the extraction
// result. Conflicts with concurrent reconciliations of the same job are
// retried by re-running the whole transaction, so the loser of an insert
// race converts its insert into a refresh.
func (r *Reconciler) Reconcile(
	ctx context.Context,
	doc pipeline.NormalizedDocument,
	fp string,
	extraction pipeline.Extraction,
) (Outcome, error) {
	if doc.URL == "" {
		return Outcome{}, fmt.Errorf("document has no url")
	}
	if fp == "" {
		return Outcome{}, fmt.Errorf("document has no fingerprint")
	}

	var out Outcome
	var err error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		out, err = r.reconcileOnce(ctx, doc, fp, extraction)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, pipeline.ErrConflict) {
			return Outcome{}, err
		}
		r.logger.Debug("reconcile conflict, retrying",
			zap.String("url", doc.URL),
			zap.Int("attempt", attempt),
		)
	}
	return Outcome{}, fmt.Errorf("reconcile %s: retries exhausted: %w", doc.URL, err)
}

func (r *Reconciler) reconcileOnce(
	ctx context.Context,
	doc pipeline.NormalizedDocument,
	fp string,
	extraction pipeline.Extraction,
) (Outcome, error) {
	var out Outcome
	err := r.store.InTx(ctx, func(tx pipeline.JobTx) error {
		jobID, created, err := r.upsertJob(ctx, tx, doc, fp)
		if err != nil {
			return err
		}
		out = Outcome{JobID: jobID, Created: created}

		for _, cat := range pipeline.Categories() {
			byPhrase := extraction[cat]
			if len(byPhrase) == 0 {
				continue
			}
			phrases := make([]string, 0, len(byPhrase))
			for p := range byPhrase {
				phrases = append(phrases, p)
			}
			sort.Strings(phrases)

			for _, phrase := range phrases {
				kwID, err := r.ensureKeyword(ctx, tx, phrase, cat)
				if err != nil {
					return err
				}
				occ := pipeline.OccurrenceRecord{
					JobID:     jobID,
					KeywordID: kwID,
					Frequency: byPhrase[phrase],
				}
				if err := tx.UpsertOccurrence(ctx, occ); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// upsertJob looks an existing job up by URL first, then fingerprint. An
// existing job only has its liveness refreshed: the first-seen content is
// authoritative.
func (r *Reconciler) upsertJob(
	ctx context.Context,
	tx pipeline.JobTx,
	doc pipeline.NormalizedDocument,
	fp string,
) (int64, bool, error) {
	now := r.clock.Now()

	job, err := tx.JobByURL(ctx, doc.URL)
	if errors.Is(err, pipeline.ErrNotFound) {
		job, err = tx.JobByFingerprint(ctx, fp)
	}
	switch {
	case err == nil:
		if err := tx.TouchJob(ctx, job.ID, now); err != nil {
			return 0, false, err
		}
		return job.ID, false, nil
	case errors.Is(err, pipeline.ErrNotFound):
		id, err := tx.InsertJob(ctx, pipeline.JobRecord{
			URL:         doc.URL,
			Title:       doc.Title,
			Company:     doc.Company,
			Location:    doc.Location,
			Description: doc.Description,
			Salary:      doc.Salary,
			PostingDate: doc.PostingDate,
			FirstSeenAt: now,
			LastSeenAt:  now,
			Fingerprint: fp,
			Source:      doc.Source,
			IsActive:    true,
		})
		if err != nil {
			return 0, false, err
		}
		return id, true, nil
	default:
		return 0, false, err
	}
}

// ensureKeyword finds or creates the vocabulary entry for a phrase. The
// stored category wins over the requested one: a category change is a
// data-quality anomaly, logged and ignored.
func (r *Reconciler) ensureKeyword(
	ctx context.Context,
	tx pipeline.JobTx,
	phrase string,
	cat pipeline.Category,
) (int64, error) {
	kw, err := tx.KeywordByPhrase(ctx, phrase)
	switch {
	case err == nil:
		if kw.Category != cat {
			r.logger.Warn("keyword category mismatch, keeping stored category",
				zap.String("phrase", phrase),
				zap.String("stored", string(kw.Category)),
				zap.String("requested", string(cat)),
			)
		}
		return kw.ID, nil
	case errors.Is(err, pipeline.ErrNotFound):
		return tx.InsertKeyword(ctx, pipeline.KeywordRecord{Phrase: phrase, Category: cat})
	default:
		return 0, err
	}
}
