package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/kgroute"
	"github.com/soundprediction/kgroute/pkg/archive"
	"github.com/soundprediction/kgroute/pkg/server/dto"
)

// fakeRuns serves runs built from cannedResult.
type fakeRuns struct {
	err   error
	limit int
}

func (f *fakeRuns) Run(_ context.Context, id string) (*archive.Run, error) {
	if f.err != nil {
		return nil, f.err
	}
	if id != "run-1" {
		return nil, archive.ErrNotFound
	}
	return archive.NewRun(cannedResult(), time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)), nil
}

func (f *fakeRuns) Runs(_ context.Context, limit int) ([]*archive.Run, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	run, _ := f.Run(context.Background(), "run-1")
	return []*archive.Run{run}, nil
}

func runsRouter(r kgroute.RunLookup) *gin.Engine {
	h := NewRunHandler(r)
	router := gin.New()
	router.GET("/api/v1/runs", h.List)
	router.GET("/api/v1/runs/:id", h.Run)
	return router
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRun(t *testing.T) {
	router := runsRouter(&fakeRuns{})

	w := get(router, "/api/v1/runs/run-1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var run archive.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, "Michael Mann", run.Answer)
	require.Len(t, run.Routes, 1)
	assert.Equal(t, []string{"Find Heat", "Find its director"}, run.Routes[0].SubObjectives)
	assert.Equal(t, int64(1500), run.Routes[0].DurationMS)

	w = get(router, "/api/v1/runs/other")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), dto.CodeNotFound)
}

func TestListRuns(t *testing.T) {
	runs := &fakeRuns{}
	router := runsRouter(runs)

	w := get(router, "/api/v1/runs?limit=5")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp dto.RunsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Runs, 1)
	assert.Equal(t, 5, runs.limit)

	w = get(router, "/api/v1/runs?limit=0")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, runs.limit)

	w = get(router, "/api/v1/runs?limit=9999")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunsErrors(t *testing.T) {
	w := get(runsRouter(nil), "/api/v1/runs/run-1")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = get(runsRouter(&fakeRuns{err: kgroute.ErrNoArchive}), "/api/v1/runs")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = get(runsRouter(&fakeRuns{err: errors.New("connection reset")}), "/api/v1/runs/run-1")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
