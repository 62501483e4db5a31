// Package dedup implements the run-scoped duplicate filter.
package dedup

import "sync"

// Result classifies one Check call.
type Result int

// Check outcomes.
const (
	Unique Result = iota
	DuplicateURL
	DuplicateFingerprint
)

// Duplicate reports whether the result marks a repeated document.
func (r Result) Duplicate() bool {
	return r != Unique
}

// Filter rejects documents repeating a URL or fingerprint already seen in
// the current run. It is a throughput optimization only: idempotence against
// prior runs is enforced by the store's uniqueness constraints, so skipping
// the filter entirely loses no correctness.
//
// One Filter is shared by all source adapters of a run and is safe for
// concurrent use. It is created at run start and discarded at run end.
type Filter struct {
	mu   sync.Mutex
	urls map[string]struct{}
	fps  map[string]struct{}
}

// NewFilter creates an empty Filter for one run.
func NewFilter() *Filter {
	return &Filter{
		urls: make(map[string]struct{}),
		fps:  make(map[string]struct{}),
	}
}

// Check returns a duplicate result if the URL or fingerprint was already
// seen in this run, without recording either key again. Otherwise it records
// both keys and returns Unique.
func (f *Filter) Check(url, fingerprint string) Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.urls[url]; ok {
		return DuplicateURL
	}
	if _, ok := f.fps[fingerprint]; ok {
		return DuplicateFingerprint
	}
	f.urls[url] = struct{}{}
	f.fps[fingerprint] = struct{}{}
	return Unique
}

// Len returns how many unique documents have been recorded.
func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}
