// Package source defines the adapter boundary between posting providers and
// the ingestion pipeline.
package source

import (
	"context"

	"github.com/gamesjobs/pipeline/internal/pipeline"
)

// EmitFunc receives one discovered document. A non-nil return tells the
// adapter to stop discovering and surface the error.
type EmitFunc func(pipeline.RawDocument) error

// Source is one provider of raw job postings. Discover pushes every document
// it can find through emit and returns the first error it cannot recover
// from. An adapter failure never aborts sibling adapters; the runner records
// it against the run instead.
type Source interface {
	// Name identifies the adapter in logs, counters, and run records.
	Name() string
	Discover(ctx context.Context, emit EmitFunc) error
}
