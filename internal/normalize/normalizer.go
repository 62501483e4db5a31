// Package normalize cleans raw scraped documents before reconciliation.
package normalize

import (
	"strings"

	"github.com/gamesjobs/pipeline/internal/pipeline"
)

// Normalizer is a pure transformation from RawDocument to NormalizedDocument.
type Normalizer struct {
	aliases *Aliases
}

// New builds a Normalizer. A nil alias table degrades to pass-through
// locations (trimmed originals).
func New(aliases *Aliases) *Normalizer {
	if aliases == nil {
		aliases = NewAliases(nil)
	}
	return &Normalizer{aliases: aliases}
}

// Normalize collapses repeated whitespace in identifying fields and
// canonicalizes the location. It has no side effects.
func (n *Normalizer) Normalize(raw pipeline.RawDocument) pipeline.NormalizedDocument {
	return pipeline.NormalizedDocument{
		URL:         strings.TrimSpace(raw.URL),
		Title:       collapseWhitespace(raw.Title),
		Company:     collapseWhitespace(raw.Company),
		Location:    n.aliases.Canonical(raw.Location),
		Description: strings.TrimSpace(raw.Description),
		Salary:      strings.TrimSpace(raw.Salary),
		PostingDate: raw.PostingDate,
		Source:      strings.TrimSpace(raw.Source),
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
