package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gamesjobs/pipeline/internal/fingerprint"
	"github.com/gamesjobs/pipeline/internal/pipeline"
	"github.com/gamesjobs/pipeline/internal/store/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testDoc() pipeline.NormalizedDocument {
	return pipeline.NormalizedDocument{
		URL:         "https://jobs.example/1",
		Title:       "Gameplay Programmer",
		Company:     "Studio One",
		Location:    "London",
		Description: "Unity and C++ role",
		Source:      "games_jobs_direct",
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	t.Parallel()

	store := memory.New()
	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	r := New(store, clock, zap.NewNop(), 0)
	ctx := context.Background()

	doc := testDoc()
	fp := fingerprint.Compute(doc)

	first, err := r.Reconcile(ctx, doc, fp, nil)
	require.NoError(t, err)
	require.True(t, first.Created)

	clock.Advance(time.Hour)

	second, err := r.Reconcile(ctx, doc, fp, nil)
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.JobID, second.JobID)
	require.Equal(t, 1, store.JobCount())

	job, ok := store.JobByURL(doc.URL)
	require.True(t, ok)
	require.Equal(t, clock.Now(), job.LastSeenAt)
	require.Equal(t, clock.Now().Add(-time.Hour), job.FirstSeenAt)
}

func TestReconcileMatchesByFingerprintWhenURLChanges(t *testing.T) {
	t.Parallel()

	store := memory.New()
	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	r := New(store, clock, zap.NewNop(), 0)
	ctx := context.Background()

	doc := testDoc()
	fp := fingerprint.Compute(doc)

	first, err := r.Reconcile(ctx, doc, fp, nil)
	require.NoError(t, err)

	reposted := doc
	reposted.URL = "https://jobs.example/1?utm=repost"

	second, err := r.Reconcile(ctx, reposted, fp, nil)
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.JobID, second.JobID)
	require.Equal(t, 1, store.JobCount())
}

func TestReconcileDoesNotOverwriteFirstSeenContent(t *testing.T) {
	t.Parallel()

	store := memory.New()
	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	r := New(store, clock, zap.NewNop(), 0)
	ctx := context.Background()

	doc := testDoc()
	fp := fingerprint.Compute(doc)
	_, err := r.Reconcile(ctx, doc, fp, nil)
	require.NoError(t, err)

	edited := doc
	edited.Title = "Senior Gameplay Programmer"
	_, err = r.Reconcile(ctx, edited, fp, nil)
	require.NoError(t, err)

	job, ok := store.JobByURL(doc.URL)
	require.True(t, ok)
	require.Equal(t, "Gameplay Programmer", job.Title)
}

func TestReconcileOverwritesOccurrenceFrequency(t *testing.T) {
	t.Parallel()

	store := memory.New()
	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	r := New(store, clock, zap.NewNop(), 0)
	ctx := context.Background()

	doc := testDoc()
	fp := fingerprint.Compute(doc)

	_, err := r.Reconcile(ctx, doc, fp, pipeline.Extraction{
		pipeline.CategorySkill: {"Python": 2},
	})
	require.NoError(t, err)

	out, err := r.Reconcile(ctx, doc, fp, pipeline.Extraction{
		pipeline.CategorySkill: {"Python": 5},
	})
	require.NoError(t, err)

	kw, ok := store.Keyword("python")
	require.True(t, ok)
	occ, ok := store.Occurrence(out.JobID, kw.ID)
	require.True(t, ok)
	require.Equal(t, 5, occ.Frequency)
	require.Equal(t, 1, store.OccurrenceCount())
}

func TestReconcileKeepsFirstKeywordCategory(t *testing.T) {
	t.Parallel()

	store := memory.New()
	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	r := New(store, clock, zap.NewNop(), 0)
	ctx := context.Background()

	doc := testDoc()
	fp := fingerprint.Compute(doc)

	_, err := r.Reconcile(ctx, doc, fp, pipeline.Extraction{
		pipeline.CategorySkill: {"Unity": 1},
	})
	require.NoError(t, err)

	_, err = r.Reconcile(ctx, doc, fp, pipeline.Extraction{
		pipeline.CategorySoftware: {"Unity": 1},
	})
	require.NoError(t, err)

	kw, ok := store.Keyword("Unity")
	require.True(t, ok)
	require.Equal(t, pipeline.CategorySkill, kw.Category)
}

func TestConcurrentReconcileOfSameFingerprint(t *testing.T) {
	t.Parallel()

	store := memory.New()
	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	r := New(store, clock, zap.NewNop(), 0)
	ctx := context.Background()

	doc := testDoc()
	crossPosted := doc
	crossPosted.URL = "https://other.example/same-job"
	fp := fingerprint.Compute(doc)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, d := range []pipeline.NormalizedDocument{doc, crossPosted} {
		wg.Add(1)
		go func(i int, d pipeline.NormalizedDocument) {
			defer wg.Done()
			_, errs[i] = r.Reconcile(ctx, d, fp, pipeline.Extraction{
				pipeline.CategorySoftware: {"Unity": 1},
			})
		}(i, d)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, 1, store.JobCount())
}

func TestReconcileRejectsMalformedDocuments(t *testing.T) {
	t.Parallel()

	store := memory.New()
	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	r := New(store, clock, zap.NewNop(), 0)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, pipeline.NormalizedDocument{}, "fp", nil)
	require.Error(t, err)

	_, err = r.Reconcile(ctx, testDoc(), "", nil)
	require.Error(t, err)
	require.Equal(t, 0, store.JobCount())
}

type conflictingStore struct {
	inner    pipeline.JobStore
	mu       sync.Mutex
	failures int
}

func (s *conflictingStore) InTx(ctx context.Context, fn func(pipeline.JobTx) error) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return pipeline.ErrConflict
	}
	s.mu.Unlock()
	return s.inner.InTx(ctx, fn)
}

func TestReconcileRetriesTransientConflicts(t *testing.T) {
	t.Parallel()

	inner := memory.New()
	store := &conflictingStore{inner: inner, failures: 2}
	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	r := New(store, clock, zap.NewNop(), 3)
	ctx := context.Background()

	doc := testDoc()
	out, err := r.Reconcile(ctx, doc, fingerprint.Compute(doc), nil)
	require.NoError(t, err)
	require.True(t, out.Created)
	require.Equal(t, 1, inner.JobCount())
}

func TestReconcileGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	store := &conflictingStore{inner: memory.New(), failures: 10}
	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	r := New(store, clock, zap.NewNop(), 3)
	ctx := context.Background()

	doc := testDoc()
	_, err := r.Reconcile(ctx, doc, fingerprint.Compute(doc), nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, pipeline.ErrConflict))
}
