package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gamesjobs/pipeline/internal/normalize"
	"github.com/gamesjobs/pipeline/internal/pipeline"
)

func TestComputeIsStableAcrossSpellingVariants(t *testing.T) {
	t.Parallel()

	n := normalize.New(normalize.DefaultAliases())

	a := n.Normalize(pipeline.RawDocument{
		Title:       "Gameplay  Programmer",
		Company:     "Studio   One",
		Location:    "london",
		Description: "Work on our engine.",
	})
	b := n.Normalize(pipeline.RawDocument{
		Title:       "Gameplay Programmer",
		Company:     "Studio One",
		Location:    "Greater London",
		Description: "Work on our engine.",
	})

	require.Equal(t, a.Location, b.Location)
	require.Equal(t, Compute(a), Compute(b))
}

func TestComputeDiffersOnIdentifyingFields(t *testing.T) {
	t.Parallel()

	base := pipeline.NormalizedDocument{Title: "Artist", Company: "A", Location: "Leeds"}
	other := base
	other.Company = "B"
	require.NotEqual(t, Compute(base), Compute(other))
}

func TestComputeToleratesEmptyDescription(t *testing.T) {
	t.Parallel()

	doc := pipeline.NormalizedDocument{Title: "QA Tester", Company: "C"}
	require.Len(t, Compute(doc), 64)
}

func TestComputeIgnoresDescriptionTail(t *testing.T) {
	t.Parallel()

	head := strings.Repeat("x", 200)
	a := pipeline.NormalizedDocument{Title: "T", Description: head + "original tail"}
	b := pipeline.NormalizedDocument{Title: "T", Description: head + "republished tail"}
	require.Equal(t, Compute(a), Compute(b))
}
