package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gamesjobs/pipeline/internal/aggregate"
	"github.com/gamesjobs/pipeline/internal/catalog"
	"github.com/gamesjobs/pipeline/internal/extract"
	"github.com/gamesjobs/pipeline/internal/normalize"
	"github.com/gamesjobs/pipeline/internal/pipeline"
	"github.com/gamesjobs/pipeline/internal/reconcile"
	"github.com/gamesjobs/pipeline/internal/runtracker"
	"github.com/gamesjobs/pipeline/internal/source"
	"github.com/gamesjobs/pipeline/internal/store/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func testDoc(url, title, desc string) pipeline.RawDocument {
	posted := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	return pipeline.RawDocument{
		URL:         url,
		Title:       title,
		Company:     "Studio",
		Location:    "Central London",
		Description: desc,
		PostingDate: &posted,
	}
}

func newRunner(t *testing.T, store *memory.Store, sources []source.Source, opts Options) *Runner {
	t.Helper()
	clock := fixedClock{now: time.Unix(1700000000, 0).UTC()}
	logger := zap.NewNop()

	cat := catalog.New(map[pipeline.Category][]string{
		pipeline.CategorySkill:    {"c++"},
		pipeline.CategorySoftware: {"unity"},
	})
	return New(
		sources,
		normalize.New(normalize.DefaultAliases()),
		extract.New(cat),
		reconcile.New(store, clock, logger, reconcile.DefaultMaxAttempts),
		runtracker.New(store, clock, logger),
		aggregate.New(store, logger),
		clock,
		logger,
		opts,
	)
}

func TestRunAllSourcesSucceed(t *testing.T) {
	t.Parallel()

	store := memory.New()
	sources := []source.Source{
		source.NewStatic("board-a", []pipeline.RawDocument{
			testDoc("https://a/1", "Unity Developer", "We use Unity daily."),
			testDoc("https://a/2", "Engine Programmer", "Modern C++ required."),
		}),
		source.NewStatic("board-b", []pipeline.RawDocument{
			testDoc("https://b/1", "Tools Engineer", "Unity and C++."),
		}),
	}
	runner := newRunner(t, store, sources, Options{Concurrency: 2, SourceLabel: "test"})

	run, err := runner.Run(context.Background())
	require.NoError(t, err)

	final, err := runtrackerGet(store, run.ID)
	require.NoError(t, err)
	require.Equal(t, pipeline.RunCompleted, final.Status)
	require.Equal(t, 3, final.Counters.JobsScraped)
	require.Equal(t, 0, final.Counters.DuplicatesFound)
	require.Equal(t, 0, final.Counters.ErrorsCount)
	require.NotNil(t, final.StartTime)
	require.NotNil(t, final.EndTime)
	require.Equal(t, 3, store.JobCount())

	job, ok := store.JobByURL("https://a/1")
	require.True(t, ok)
	require.Equal(t, "London", job.Location)
}

func TestRunCountsDuplicatesAcrossSources(t *testing.T) {
	t.Parallel()

	store := memory.New()
	shared := testDoc("https://a/1", "Unity Developer", "We use Unity daily.")
	sources := []source.Source{
		source.NewStatic("board-a", []pipeline.RawDocument{shared}),
		source.NewStatic("board-b", []pipeline.RawDocument{shared}),
	}
	runner := newRunner(t, store, sources, Options{Concurrency: 1, SourceLabel: "test"})

	run, err := runner.Run(context.Background())
	require.NoError(t, err)

	final, err := runtrackerGet(store, run.ID)
	require.NoError(t, err)
	require.Equal(t, 1, final.Counters.JobsScraped)
	require.Equal(t, 1, final.Counters.DuplicatesFound)
	require.Equal(t, 1, store.JobCount())
}

func TestRunPartialSuccess(t *testing.T) {
	t.Parallel()

	store := memory.New()
	broken := source.NewStatic("board-b", nil)
	broken.Err = errors.New("connection refused")
	sources := []source.Source{
		source.NewStatic("board-a", []pipeline.RawDocument{
			testDoc("https://a/1", "Unity Developer", "Unity."),
		}),
		broken,
	}
	runner := newRunner(t, store, sources, Options{SourceLabel: "test"})

	run, err := runner.Run(context.Background())
	require.NoError(t, err)

	final, err := runtrackerGet(store, run.ID)
	require.NoError(t, err)
	require.Equal(t, pipeline.RunPartialSuccess, final.Status)
}

func TestRunAllSourcesFail(t *testing.T) {
	t.Parallel()

	store := memory.New()
	broken := source.NewStatic("board-a", nil)
	broken.Err = errors.New("connection refused")
	runner := newRunner(t, store, []source.Source{broken}, Options{SourceLabel: "test"})

	run, err := runner.Run(context.Background())
	require.NoError(t, err)

	final, err := runtrackerGet(store, run.ID)
	require.NoError(t, err)
	require.Equal(t, pipeline.RunFailed, final.Status)
}

func TestRunDocumentErrorDoesNotFailSource(t *testing.T) {
	t.Parallel()

	store := memory.New()
	sources := []source.Source{
		source.NewStatic("board-a", []pipeline.RawDocument{
			{Title: "No URL at all"},
			testDoc("https://a/1", "Unity Developer", "Unity."),
		}),
	}
	runner := newRunner(t, store, sources, Options{SourceLabel: "test"})

	run, err := runner.Run(context.Background())
	require.NoError(t, err)

	final, err := runtrackerGet(store, run.ID)
	require.NoError(t, err)
	require.Equal(t, pipeline.RunCompleted, final.Status)
	require.Equal(t, 1, final.Counters.JobsScraped)
	require.Equal(t, 1, final.Counters.ErrorsCount)
}

func TestRunChainsAggregation(t *testing.T) {
	t.Parallel()

	store := memory.New()
	sources := []source.Source{
		source.NewStatic("board-a", []pipeline.RawDocument{
			testDoc("https://a/1", "Unity Developer", "We use Unity daily."),
		}),
	}
	runner := newRunner(t, store, sources, Options{SourceLabel: "test", ChainAggregation: true})

	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	rows := store.Summaries()
	require.Len(t, rows, 1)
	require.Equal(t, "London", rows[0].Region)
	require.Equal(t, 1, rows[0].Count)
}

func TestRunCanceledContext(t *testing.T) {
	t.Parallel()

	store := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sources := []source.Source{
		source.NewStatic("board-a", []pipeline.RawDocument{
			testDoc("https://a/1", "Unity Developer", "Unity."),
		}),
	}
	runner := newRunner(t, store, sources, Options{SourceLabel: "test"})

	run, err := runner.Run(ctx)
	require.Error(t, err)

	final, getErr := runtrackerGet(store, run.ID)
	require.NoError(t, getErr)
	require.Equal(t, pipeline.RunFailed, final.Status)
}

func TestLaunchRunsInBackground(t *testing.T) {
	t.Parallel()

	store := memory.New()
	sources := []source.Source{
		source.NewStatic("board-a", []pipeline.RawDocument{
			testDoc("https://a/1", "Unity Developer", "Unity."),
		}),
	}
	runner := newRunner(t, store, sources, Options{SourceLabel: "test"})

	id, err := runner.Launch(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		run, err := runtrackerGet(store, id)
		return err == nil && run.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	final, err := runtrackerGet(store, id)
	require.NoError(t, err)
	require.Equal(t, pipeline.RunCompleted, final.Status)
}

func runtrackerGet(store *memory.Store, runID string) (pipeline.RunRecord, error) {
	return store.GetRun(context.Background(), runID)
}
