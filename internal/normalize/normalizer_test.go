package normalize

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gamesjobs/pipeline/internal/pipeline"
)

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	t.Parallel()

	n := New(DefaultAliases())
	doc := n.Normalize(pipeline.RawDocument{
		URL:     "  https://example.com/jobs/1 ",
		Title:   "  Senior   Gameplay\tProgrammer ",
		Company: "Awesome\n Games  Ltd",
	})

	require.Equal(t, "https://example.com/jobs/1", doc.URL)
	require.Equal(t, "Senior Gameplay Programmer", doc.Title)
	require.Equal(t, "Awesome Games Ltd", doc.Company)
}

func TestCanonicalLocation(t *testing.T) {
	t.Parallel()

	a := DefaultAliases()
	cases := []struct {
		in   string
		want string
	}{
		{"london", "London"},
		{"Greater London", "London"},
		{"Central London, UK", "London"},
		{"LEICESTERSHIRE", "Leicester"},
		{"Leamington Spa", "Leamington Spa"},
		{"Royal Leamington", "Leamington Spa"},
		{"  Dundee  ", "Dundee"},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, a.Canonical(tc.in), "location %q", tc.in)
	}
}

func TestAliasTieBreakIsLongestMatchFirst(t *testing.T) {
	t.Parallel()

	a := NewAliases(map[string]string{
		"york":     "York",
		"new york": "New York",
	})
	require.Equal(t, "New York", a.Canonical("New York, remote"))
	require.Equal(t, "York", a.Canonical("York city centre"))
}

func TestNilAliasTablePassesThrough(t *testing.T) {
	t.Parallel()

	n := New(nil)
	doc := n.Normalize(pipeline.RawDocument{Location: "  Milton   Keynes "})
	require.Equal(t, "Milton Keynes", doc.Location)
}
