// Package memory provides an in-memory store for development and testing.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gamesjobs/pipeline/internal/pipeline"
)

type occKey struct {
	jobID     int64
	keywordID int64
}

type sumKey struct {
	region    string
	period    time.Time
	keywordID int64
}

// Store implements pipeline.JobStore, RunStore and SummaryStore with maps.
// Transactions are serialized under one mutex and staged against copies, so
// a failed transaction leaves nothing behind.
type Store struct {
	mu sync.Mutex
	st state

	runs     map[string]pipeline.RunRecord
	runOrder []string

	summaries map[sumKey]pipeline.SummaryRecord
}

// state is the job-side data covered by transactions.
type state struct {
	nextJobID     int64
	nextKeywordID int64

	jobs      map[int64]pipeline.JobRecord
	jobsByURL map[string]int64
	jobsByFP  map[string]int64

	keywords         map[int64]pipeline.KeywordRecord
	keywordsByPhrase map[string]int64 // keyed by lowercase phrase

	occurrences map[occKey]pipeline.OccurrenceRecord
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		st: state{
			nextJobID:        1,
			nextKeywordID:    1,
			jobs:             make(map[int64]pipeline.JobRecord),
			jobsByURL:        make(map[string]int64),
			jobsByFP:         make(map[string]int64),
			keywords:         make(map[int64]pipeline.KeywordRecord),
			keywordsByPhrase: make(map[string]int64),
			occurrences:      make(map[occKey]pipeline.OccurrenceRecord),
		},
		runs:      make(map[string]pipeline.RunRecord),
		summaries: make(map[sumKey]pipeline.SummaryRecord),
	}
}

func (s state) clone() state {
	c := state{
		nextJobID:        s.nextJobID,
		nextKeywordID:    s.nextKeywordID,
		jobs:             make(map[int64]pipeline.JobRecord, len(s.jobs)),
		jobsByURL:        make(map[string]int64, len(s.jobsByURL)),
		jobsByFP:         make(map[string]int64, len(s.jobsByFP)),
		keywords:         make(map[int64]pipeline.KeywordRecord, len(s.keywords)),
		keywordsByPhrase: make(map[string]int64, len(s.keywordsByPhrase)),
		occurrences:      make(map[occKey]pipeline.OccurrenceRecord, len(s.occurrences)),
	}
	for k, v := range s.jobs {
		c.jobs[k] = v
	}
	for k, v := range s.jobsByURL {
		c.jobsByURL[k] = v
	}
	for k, v := range s.jobsByFP {
		c.jobsByFP[k] = v
	}
	for k, v := range s.keywords {
		c.keywords[k] = v
	}
	for k, v := range s.keywordsByPhrase {
		c.keywordsByPhrase[k] = v
	}
	for k, v := range s.occurrences {
		c.occurrences[k] = v
	}
	return c
}

// InTx runs fn against a staged copy of the job-side state; the copy is
// published only when fn succeeds.
func (s *Store) InTx(_ context.Context, fn func(pipeline.JobTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.st.clone()
	if err := fn(&tx{st: &staged}); err != nil {
		return err
	}
	s.st = staged
	return nil
}

type tx struct {
	st *state
}

func (t *tx) JobByURL(_ context.Context, url string) (pipeline.JobRecord, error) {
	id, ok := t.st.jobsByURL[url]
	if !ok {
		return pipeline.JobRecord{}, pipeline.ErrNotFound
	}
	return t.st.jobs[id], nil
}

func (t *tx) JobByFingerprint(_ context.Context, fp string) (pipeline.JobRecord, error) {
	id, ok := t.st.jobsByFP[fp]
	if !ok {
		return pipeline.JobRecord{}, pipeline.ErrNotFound
	}
	return t.st.jobs[id], nil
}

func (t *tx) InsertJob(_ context.Context, job pipeline.JobRecord) (int64, error) {
	if _, exists := t.st.jobsByURL[job.URL]; exists {
		return 0, pipeline.ErrConflict
	}
	if _, exists := t.st.jobsByFP[job.Fingerprint]; exists {
		return 0, pipeline.ErrConflict
	}
	job.ID = t.st.nextJobID
	t.st.nextJobID++
	t.st.jobs[job.ID] = job
	t.st.jobsByURL[job.URL] = job.ID
	t.st.jobsByFP[job.Fingerprint] = job.ID
	return job.ID, nil
}

func (t *tx) TouchJob(_ context.Context, jobID int64, seenAt time.Time) error {
	job, ok := t.st.jobs[jobID]
	if !ok {
		return pipeline.ErrNotFound
	}
	job.LastSeenAt = seenAt
	t.st.jobs[jobID] = job
	return nil
}

func (t *tx) KeywordByPhrase(_ context.Context, phrase string) (pipeline.KeywordRecord, error) {
	id, ok := t.st.keywordsByPhrase[strings.ToLower(phrase)]
	if !ok {
		return pipeline.KeywordRecord{}, pipeline.ErrNotFound
	}
	return t.st.keywords[id], nil
}

func (t *tx) InsertKeyword(_ context.Context, kw pipeline.KeywordRecord) (int64, error) {
	key := strings.ToLower(kw.Phrase)
	if _, exists := t.st.keywordsByPhrase[key]; exists {
		return 0, pipeline.ErrConflict
	}
	kw.ID = t.st.nextKeywordID
	t.st.nextKeywordID++
	t.st.keywords[kw.ID] = kw
	t.st.keywordsByPhrase[key] = kw.ID
	return kw.ID, nil
}

func (t *tx) UpsertOccurrence(_ context.Context, occ pipeline.OccurrenceRecord) error {
	t.st.occurrences[occKey{occ.JobID, occ.KeywordID}] = occ
	return nil
}

// CreateRun stores a new run record.
func (s *Store) CreateRun(_ context.Context, run pipeline.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return pipeline.ErrConflict
	}
	s.runs[run.ID] = run
	s.runOrder = append(s.runOrder, run.ID)
	return nil
}

// TransitionRun applies a conditional status transition.
func (s *Store) TransitionRun(_ context.Context, runID string, from, to pipeline.RunStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return pipeline.ErrNotFound
	}
	if run.Status != from {
		return pipeline.ErrInvalidTransition
	}
	run.Status = to
	if to == pipeline.RunRunning {
		ts := at
		run.StartTime = &ts
	}
	if to.Terminal() {
		ts := at
		run.EndTime = &ts
	}
	s.runs[runID] = run
	return nil
}

// AddRunCounters adds the delta to the run's counters.
func (s *Store) AddRunCounters(_ context.Context, runID string, delta pipeline.RunCounters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return pipeline.ErrNotFound
	}
	run.Counters = run.Counters.Add(delta)
	s.runs[runID] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *Store) GetRun(_ context.Context, runID string) (pipeline.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return pipeline.RunRecord{}, pipeline.ErrNotFound
	}
	return run, nil
}

// ListRuns returns the most recently created runs, newest first.
func (s *Store) ListRuns(_ context.Context, limit int) ([]pipeline.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pipeline.RunRecord, 0, limit)
	for i := len(s.runOrder) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.runs[s.runOrder[i]])
	}
	return out, nil
}

// OccurrenceGroups computes current (region, period, keyword) groups from
// active jobs joined with occurrences.
func (s *Store) OccurrenceGroups(_ context.Context) ([]pipeline.SummaryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[sumKey]int)
	for key := range s.st.occurrences {
		job, ok := s.st.jobs[key.jobID]
		if !ok || !job.IsActive || job.Location == "" || job.PostingDate == nil {
			continue
		}
		k := sumKey{
			region:    job.Location,
			period:    pipeline.PeriodOf(*job.PostingDate),
			keywordID: key.keywordID,
		}
		counts[k]++
	}

	out := make([]pipeline.SummaryRecord, 0, len(counts))
	for k, n := range counts {
		out = append(out, pipeline.SummaryRecord{
			Region:    k.region,
			Period:    k.period,
			KeywordID: k.keywordID,
			Count:     n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Region != out[j].Region {
			return out[i].Region < out[j].Region
		}
		if !out[i].Period.Equal(out[j].Period) {
			return out[i].Period.Before(out[j].Period)
		}
		return out[i].KeywordID < out[j].KeywordID
	})
	return out, nil
}

// UpsertSummary inserts the row or overwrites its count.
func (s *Store) UpsertSummary(_ context.Context, row pipeline.SummaryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[sumKey{row.Region, row.Period, row.KeywordID}] = row
	return nil
}

// Snapshot helpers used by tests.

// JobCount returns how many jobs are stored.
func (s *Store) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.jobs)
}

// JobByURL returns the committed job owning the URL.
func (s *Store) JobByURL(url string) (pipeline.JobRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.st.jobsByURL[url]
	if !ok {
		return pipeline.JobRecord{}, false
	}
	return s.st.jobs[id], true
}

// Keyword returns the committed keyword for a phrase, case-insensitively.
func (s *Store) Keyword(phrase string) (pipeline.KeywordRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.st.keywordsByPhrase[strings.ToLower(phrase)]
	if !ok {
		return pipeline.KeywordRecord{}, false
	}
	return s.st.keywords[id], true
}

// Occurrence returns the committed occurrence row for a (job, keyword) pair.
func (s *Store) Occurrence(jobID, keywordID int64) (pipeline.OccurrenceRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	occ, ok := s.st.occurrences[occKey{jobID, keywordID}]
	return occ, ok
}

// OccurrenceCount returns how many occurrence rows exist.
func (s *Store) OccurrenceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.occurrences)
}

// Summaries returns all summary rows in deterministic order.
func (s *Store) Summaries() []pipeline.SummaryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pipeline.SummaryRecord, 0, len(s.summaries))
	for _, row := range s.summaries {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Region != out[j].Region {
			return out[i].Region < out[j].Region
		}
		if !out[i].Period.Equal(out[j].Period) {
			return out[i].Period.Before(out[j].Period)
		}
		return out[i].KeywordID < out[j].KeywordID
	})
	return out
}
