// Package pipeline defines core types shared across subsystems.
package pipeline

import (
	"fmt"
	"time"
)

// Category tags a keyword with the closed vocabulary group it belongs to.
type Category string

// Keyword categories persisted in the keyword store.
const (
	CategorySkill      Category = "skill"
	CategorySoftware   Category = "software"
	CategoryExperience Category = "experience"
)

// Categories returns all known categories in stable order.
func Categories() []Category {
	return []Category{CategorySkill, CategorySoftware, CategoryExperience}
}

// ParseCategory maps a configuration key to a Category.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategorySkill, CategorySoftware, CategoryExperience:
		return Category(s), nil
	}
	return "", fmt.Errorf("unknown keyword category %q", s)
}

// RawDocument is one scraped job posting as emitted by a source adapter.
// It is transient and never persisted as-is.
type RawDocument struct {
	URL         string     `json:"url" yaml:"url"`
	Title       string     `json:"title" yaml:"title"`
	Company     string     `json:"company" yaml:"company"`
	Location    string     `json:"location" yaml:"location"`
	Description string     `json:"description" yaml:"description"`
	Salary      string     `json:"salary" yaml:"salary"`
	PostingDate *time.Time `json:"posting_date" yaml:"posting_date"`
	Source      string     `json:"source" yaml:"source"`
}

// NormalizedDocument is a RawDocument after whitespace collapse and
// location canonicalization.
type NormalizedDocument struct {
	URL         string
	Title       string
	Company     string
	Location    string
	Description string
	Salary      string
	PostingDate *time.Time
	Source      string
}

// JobRecord is the canonical persisted job listing.
type JobRecord struct {
	ID          int64      `json:"id"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	Location    string     `json:"location"`
	Description string     `json:"description"`
	Salary      string     `json:"salary,omitempty"`
	PostingDate *time.Time `json:"posting_date,omitempty"`
	FirstSeenAt time.Time  `json:"first_seen_at"`
	LastSeenAt  time.Time  `json:"last_seen_at"`
	Fingerprint string     `json:"content_fingerprint"`
	Source      string     `json:"source"`
	IsActive    bool       `json:"is_active"`
}

// KeywordRecord is one canonical vocabulary entry. The phrase is unique
// case-insensitively and the category is fixed at creation.
type KeywordRecord struct {
	ID       int64    `json:"id"`
	Phrase   string   `json:"phrase"`
	Category Category `json:"category"`
}

// OccurrenceRecord links a job to a keyword with the match count from the
// latest extraction pass. Frequency is overwritten, never accumulated.
type OccurrenceRecord struct {
	JobID     int64 `json:"job_id"`
	KeywordID int64 `json:"keyword_id"`
	Frequency int   `json:"frequency"`
}

// Extraction maps category -> phrase -> occurrence count. Phrases with zero
// matches are absent.
type Extraction map[Category]map[string]int

// RunStatus represents the lifecycle state of an ingestion run.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunQueued         RunStatus = "queued"
	RunRunning        RunStatus = "running"
	RunCompleted      RunStatus = "completed"
	RunPartialSuccess RunStatus = "partial_success"
	RunFailed         RunStatus = "failed"
)

// Terminal reports whether the status ends a run's lifecycle.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunPartialSuccess, RunFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo enforces the one-directional run state machine.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	switch s {
	case RunQueued:
		return next == RunRunning || next == RunFailed
	case RunRunning:
		return next.Terminal()
	default:
		return false
	}
}

// RunCounters tracks per-run ingestion stats. Counters only ever grow.
type RunCounters struct {
	JobsScraped     int `json:"jobs_scraped"`
	DuplicatesFound int `json:"duplicates_found"`
	ErrorsCount     int `json:"errors_count"`
}

// Add returns the element-wise sum of two counter sets.
func (c RunCounters) Add(d RunCounters) RunCounters {
	return RunCounters{
		JobsScraped:     c.JobsScraped + d.JobsScraped,
		DuplicatesFound: c.DuplicatesFound + d.DuplicatesFound,
		ErrorsCount:     c.ErrorsCount + d.ErrorsCount,
	}
}

// RunRecord is the persisted lifecycle record for one ingestion run.
type RunRecord struct {
	ID          string      `json:"id"`
	SourceLabel string      `json:"source_label"`
	StartTime   *time.Time  `json:"start_time,omitempty"`
	EndTime     *time.Time  `json:"end_time,omitempty"`
	Status      RunStatus   `json:"status"`
	Counters    RunCounters `json:"counters"`
}

// SummaryRecord is one denormalized (region, period, keyword) aggregate row.
// The table is a cache, fully recomputable from jobs and occurrences.
type SummaryRecord struct {
	Region    string    `json:"region"`
	Period    time.Time `json:"period"`
	KeywordID int64     `json:"keyword_id"`
	Count     int       `json:"count"`
}

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}
