// Package catalog loads the keyword vocabulary used for phrase extraction.
package catalog

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/gamesjobs/pipeline/internal/pipeline"
)

// Entry is one configured phrase with its category.
type Entry struct {
	Category pipeline.Category
	Phrase   string
}

// Catalog is an immutable set of phrases grouped by category, loaded once
// per process (or per run) from configuration.
type Catalog struct {
	byCategory map[pipeline.Category][]string
	entries    []Entry
}

// New builds a Catalog from an in-memory category map. Phrase order within a
// category is preserved; empty phrases are dropped.
func New(phrases map[pipeline.Category][]string) *Catalog {
	c := &Catalog{byCategory: make(map[pipeline.Category][]string)}
	for _, cat := range pipeline.Categories() {
		for _, p := range phrases[cat] {
			if p == "" {
				continue
			}
			c.byCategory[cat] = append(c.byCategory[cat], p)
			c.entries = append(c.entries, Entry{Category: cat, Phrase: p})
		}
	}
	return c
}

// Load reads a YAML file mapping category names to phrase lists.
// A missing or unparsable file is an error: extraction without a vocabulary
// is meaningless, so the caller is expected to fail the run. Unknown
// category keys are logged and skipped.
func Load(path string, logger *zap.Logger) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyword catalog: %w", err)
	}

	var doc map[string][]string
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse keyword catalog: %w", err)
	}

	phrases := make(map[pipeline.Category][]string)
	for key, list := range doc {
		cat, err := pipeline.ParseCategory(key)
		if err != nil {
			logger.Warn("skipping unknown catalog category", zap.String("category", key))
			continue
		}
		phrases[cat] = list
	}

	c := New(phrases)
	if c.Len() == 0 {
		logger.Warn("keyword catalog is empty, extraction will find nothing",
			zap.String("path", path))
	}
	return c, nil
}

// Phrases returns the configured phrases for a category in file order.
func (c *Catalog) Phrases(cat pipeline.Category) []string {
	return c.byCategory[cat]
}

// Entries returns every (category, phrase) pair in stable order: categories
// in their declared order, phrases in file order.
func (c *Catalog) Entries() []Entry {
	return c.entries
}

// Len returns the total number of configured phrases.
func (c *Catalog) Len() int {
	return len(c.entries)
}
