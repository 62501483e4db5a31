package dedup

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckFlagsRepeatedURL(t *testing.T) {
	t.Parallel()

	f := NewFilter()
	require.Equal(t, Unique, f.Check("https://a", "fp1"))
	require.Equal(t, DuplicateURL, f.Check("https://a", "fp2"))
	require.Equal(t, 1, f.Len())
}

func TestCheckFlagsRepeatedFingerprint(t *testing.T) {
	t.Parallel()

	f := NewFilter()
	require.Equal(t, Unique, f.Check("https://a", "fp1"))
	require.Equal(t, DuplicateFingerprint, f.Check("https://b", "fp1"))
}

func TestCheckDoesNotRecordDuplicateKeys(t *testing.T) {
	t.Parallel()

	f := NewFilter()
	f.Check("https://a", "fp1")
	// The duplicate's own fingerprint must not be recorded.
	require.Equal(t, DuplicateURL, f.Check("https://a", "fp2"))
	require.Equal(t, Unique, f.Check("https://c", "fp2"))
}

func TestCheckIsSafeForConcurrentAdapters(t *testing.T) {
	t.Parallel()

	f := NewFilter()
	const workers = 8
	const docs = 50

	var wg sync.WaitGroup
	uniques := make([]int, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < docs; i++ {
				url := fmt.Sprintf("https://jobs/%d", i)
				fp := fmt.Sprintf("fp-%d", i)
				if f.Check(url, fp) == Unique {
					uniques[w]++
				}
			}
		}(w)
	}
	wg.Wait()

	total := 0
	for _, n := range uniques {
		total += n
	}
	require.Equal(t, docs, total)
	require.Equal(t, docs, f.Len())
}
