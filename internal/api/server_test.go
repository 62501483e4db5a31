package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gamesjobs/pipeline/internal/aggregate"
	"github.com/gamesjobs/pipeline/internal/pipeline"
	"github.com/gamesjobs/pipeline/internal/store/memory"
)

type fakeLauncher struct {
	runID string
	err   error
	calls int
}

func (f *fakeLauncher) Launch(context.Context) (string, error) {
	f.calls++
	return f.runID, f.err
}

func newTestServer(t *testing.T, launcher *fakeLauncher, store *memory.Store) *Server {
	t.Helper()
	if store == nil {
		store = memory.New()
	}
	return NewServer(launcher, store, aggregate.New(store, zap.NewNop()), zap.NewNop())
}

func seedRun(t *testing.T, store *memory.Store, id string, status pipeline.RunStatus) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateRun(ctx, pipeline.RunRecord{
		ID:          id,
		SourceLabel: "test",
		Status:      pipeline.RunQueued,
	}))
	now := time.Unix(1700000000, 0).UTC()
	if status == pipeline.RunQueued {
		return
	}
	require.NoError(t, store.TransitionRun(ctx, id, pipeline.RunQueued, pipeline.RunRunning, now))
	if status != pipeline.RunRunning {
		require.NoError(t, store.TransitionRun(ctx, id, pipeline.RunRunning, status, now))
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeLauncher{}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestTriggerRun(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{runID: "run-123"}
	srv := newTestServer(t, launcher, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"run_id":"run-123"}`, rec.Body.String())
	require.Equal(t, 1, launcher.calls)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestTriggerRunLaunchFailure(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeLauncher{err: errors.New("store unavailable")}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	store := memory.New()
	seedRun(t, store, "run-1", pipeline.RunCompleted)
	srv := newTestServer(t, &fakeLauncher{}, store)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/run-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Run pipeline.RunRecord `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "run-1", body.Run.ID)
	require.Equal(t, pipeline.RunCompleted, body.Run.Status)
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeLauncher{}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/absent", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	store := memory.New()
	seedRun(t, store, "run-1", pipeline.RunCompleted)
	seedRun(t, store, "run-2", pipeline.RunRunning)
	srv := newTestServer(t, &fakeLauncher{}, store)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs?limit=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs []pipeline.RunRecord `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	require.Equal(t, "run-2", body.Runs[0].ID)
}

func TestListRunsEmpty(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeLauncher{}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"runs":[]}`, rec.Body.String())
}

func TestListRunsInvalidLimit(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeLauncher{}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs?limit=zero", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerAggregate(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeLauncher{}, memory.New())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/aggregate", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var stats aggregate.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, 0, stats.Groups)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeLauncher{}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Body.String())
}
