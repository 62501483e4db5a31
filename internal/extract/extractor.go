// Package extract matches the keyword catalog against job text.
package extract

import (
	"strings"
	"unicode"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"github.com/gamesjobs/pipeline/internal/catalog"
	"github.com/gamesjobs/pipeline/internal/pipeline"
)

type entry struct {
	category pipeline.Category
	phrase   string   // display form from the catalog
	tokens   []string // lowercase token sequence
}

// Extractor counts case-insensitive, whole-phrase keyword occurrences.
// Every configured phrase is checked independently, so overlapping phrases
// are all reported; there is no longest-match suppression.
//
// An Aho-Corasick automaton over each phrase's longest token prescreens the
// text, so only phrases whose anchor token is present pay for the exact
// token-sequence count.
type Extractor struct {
	entries []entry
	matcher *ahocorasick.Matcher
	// anchors[i] lists the entries prescreened by automaton pattern i.
	anchors [][]int
}

// New builds an Extractor from the catalog. An empty catalog yields an
// extractor that finds nothing, never an error.
func New(c *catalog.Catalog) *Extractor {
	e := &Extractor{}

	patternIdx := make(map[string]int)
	var patterns []string

	for _, ce := range c.Entries() {
		tokens := tokenize(ce.Phrase)
		if len(tokens) == 0 {
			continue
		}
		idx := len(e.entries)
		e.entries = append(e.entries, entry{
			category: ce.Category,
			phrase:   ce.Phrase,
			tokens:   tokens,
		})

		anchor := longestToken(tokens)
		p, ok := patternIdx[anchor]
		if !ok {
			p = len(patterns)
			patternIdx[anchor] = p
			patterns = append(patterns, anchor)
			e.anchors = append(e.anchors, nil)
		}
		e.anchors[p] = append(e.anchors[p], idx)
	}

	if len(patterns) > 0 {
		e.matcher = ahocorasick.NewStringMatcher(patterns)
	}
	return e
}

// Extract returns category -> phrase -> non-overlapping occurrence count
// for every catalog phrase found in the text. Phrases with zero matches are
// omitted.
func (e *Extractor) Extract(text string) pipeline.Extraction {
	if e.matcher == nil || text == "" {
		return pipeline.Extraction{}
	}

	lower := strings.ToLower(text)
	hits := e.matcher.Match([]byte(lower))
	if len(hits) == 0 {
		return pipeline.Extraction{}
	}

	tokens := tokenize(lower)
	result := pipeline.Extraction{}
	seen := make(map[int]bool)

	for _, hit := range hits {
		if hit >= len(e.anchors) {
			continue
		}
		for _, idx := range e.anchors[hit] {
			if seen[idx] {
				continue
			}
			seen[idx] = true

			ent := e.entries[idx]
			count := countOccurrences(tokens, ent.tokens)
			if count == 0 {
				continue
			}
			byPhrase := result[ent.category]
			if byPhrase == nil {
				byPhrase = make(map[string]int)
				result[ent.category] = byPhrase
			}
			byPhrase[ent.phrase] = count
		}
	}
	return result
}

// countOccurrences counts non-overlapping appearances of the phrase token
// sequence inside the text token sequence.
func countOccurrences(text, phrase []string) int {
	count := 0
	for i := 0; i+len(phrase) <= len(text); {
		if tokensEqual(text[i:i+len(phrase)], phrase) {
			count++
			i += len(phrase)
			continue
		}
		i++
	}
	return count
}

func tokensEqual(a, b []string) bool {
	for i := range b {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// tokenize lowercases and splits text into tokens. A token is a maximal run
// of letters, digits, '#' or '+', so "C#", "C++" and "C" are distinct.
func tokenize(s string) []string {
	var tokens []string
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if isTokenRune(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '#' || r == '+'
}

func longestToken(tokens []string) string {
	longest := tokens[0]
	for _, t := range tokens[1:] {
		if len(t) > len(longest) {
			longest = t
		}
	}
	return longest
}
