package normalize

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type aliasEntry struct {
	match     string // lowercase substring to look for
	canonical string // stable display form
}

// Aliases canonicalizes free-form location strings against a curated list of
// UK city name variants. Matching is case-insensitive substring; entries are
// ordered longest-match-first so the tie-break is explicit and stable.
type Aliases struct {
	entries []aliasEntry
}

// DefaultAliases returns the built-in UK alias table.
func DefaultAliases() *Aliases {
	return NewAliases(map[string]string{
		"leicestershire":  "Leicester",
		"leicester":       "Leicester",
		"greater london":  "London",
		"london":          "London",
		"nottinghamshire": "Nottingham",
		"nottingham":      "Nottingham",
		"leamington spa":  "Leamington Spa",
		"leamington":      "Leamington Spa",
		"birmingham":      "Birmingham",
		"manchester":      "Manchester",
		"liverpool":       "Liverpool",
		"glasgow":         "Glasgow",
		"edinburgh":       "Edinburgh",
		"bristol":         "Bristol",
		"cambridge":       "Cambridge",
		"oxford":          "Oxford",
	})
}

// NewAliases builds an alias table from match-substring -> canonical pairs.
func NewAliases(m map[string]string) *Aliases {
	a := &Aliases{entries: make([]aliasEntry, 0, len(m))}
	for match, canonical := range m {
		match = strings.ToLower(strings.TrimSpace(match))
		if match == "" || canonical == "" {
			continue
		}
		a.entries = append(a.entries, aliasEntry{match: match, canonical: canonical})
	}
	// Longest match first; equal lengths fall back to lexicographic order
	// so iteration is deterministic.
	sort.Slice(a.entries, func(i, j int) bool {
		if len(a.entries[i].match) != len(a.entries[j].match) {
			return len(a.entries[i].match) > len(a.entries[j].match)
		}
		return a.entries[i].match < a.entries[j].match
	})
	return a
}

// LoadAliases reads a YAML file mapping lowercase substrings to canonical
// display strings.
func LoadAliases(path string) (*Aliases, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alias table: %w", err)
	}
	var m map[string]string
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse alias table: %w", err)
	}
	return NewAliases(m), nil
}

// Canonical resolves a location to its stable display form. When no alias
// matches, the trimmed original passes through.
func (a *Aliases) Canonical(location string) string {
	trimmed := collapseWhitespace(location)
	if trimmed == "" {
		return ""
	}
	lower := strings.ToLower(trimmed)
	for _, e := range a.entries {
		if strings.Contains(lower, e.match) {
			return e.canonical
		}
	}
	return trimmed
}
