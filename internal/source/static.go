package source

import (
	"context"

	"github.com/gamesjobs/pipeline/internal/pipeline"
)

// Static is an in-memory Source holding a fixed document set. Used in tests
// and for replaying captured batches.
type Static struct {
	name string
	docs []pipeline.RawDocument
	// Err, when set, is returned after all documents are emitted. It lets
	// tests model an adapter that yields some documents and then fails.
	Err error
}

// NewStatic builds a Static source named name over docs.
func NewStatic(name string, docs []pipeline.RawDocument) *Static {
	return &Static{name: name, docs: docs}
}

// Name implements Source.
func (s *Static) Name() string { return s.name }

// Discover implements Source.
func (s *Static) Discover(ctx context.Context, emit EmitFunc) error {
	for _, doc := range s.docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if doc.Source == "" {
			doc.Source = s.name
		}
		if err := emit(doc); err != nil {
			return err
		}
	}
	return s.Err
}
