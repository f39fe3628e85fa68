//go:build !integration

package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/feedcurve/internal/model"
	"github.com/sells-group/feedcurve/internal/monitoring"
	"github.com/sells-group/feedcurve/internal/store"
)

func newTestServer(t *testing.T, rps float64) (*httptest.Server, store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	cfg = testConfig(dir)
	st := newTestStore(t)

	out, err := runCurate(context.Background(), st, testRequest(dir, writeRawCSV(t, dir, true)))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	reg.MustRegister(monitoring.NewPromCollector(monitoring.NewCollector(st), 24))

	srv := httptest.NewServer(newRouter(st, reg, rps))
	t.Cleanup(srv.Close)
	return srv, st, out.RunID
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec,noctx
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestServe_Health(t *testing.T) {
	srv, _, _ := newTestServer(t, 0)

	var body map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServe_Runs(t *testing.T) {
	srv, _, runID := newTestServer(t, 0)

	var runs []model.Run
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs", &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)

	var filtered []model.Run
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs?status=failed", &filtered))
	assert.Empty(t, filtered)

	var run model.Run
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs/"+runID, &run))
	assert.Equal(t, model.RunStatusComplete, run.Status)
}

func TestServe_RunsBadLimit(t *testing.T) {
	srv, _, _ := newTestServer(t, 0)

	var body map[string]string
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/runs?limit=abc", &body))
	assert.Equal(t, "invalid limit", body["error"])
}

func TestServe_RunNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t, 0)

	for _, path := range []string{"/runs/missing", "/runs/missing/stages", "/runs/missing/aggregates"} {
		var body map[string]string
		assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+path, &body), path)
		assert.Equal(t, "run not found", body["error"])
	}
}

func TestServe_StagesAndAggregates(t *testing.T) {
	srv, _, runID := newTestServer(t, 0)

	var stages []model.StageReport
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs/"+runID+"/stages", &stages))
	require.NotEmpty(t, stages)
	assert.Equal(t, "normalize", stages[0].Name)

	var aggs []aggregateView
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs/"+runID+"/aggregates", &aggs))
	require.Len(t, aggs, 1)
	assert.Equal(t, "1-1", aggs[0].LotKey)
	assert.InDelta(t, 2090.0, aggs[0].TotalConsumptionPerBird, 1e-6)
}

func TestServe_Metrics(t *testing.T) {
	srv, _, _ := newTestServer(t, 0)

	resp, err := http.Get(srv.URL + "/metrics") //nolint:gosec,noctx
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `feedcurve_runs{status="complete"} 1`)
	assert.Contains(t, string(body), "feedcurve_store_up 1")
}

func TestServe_RateLimit(t *testing.T) {
	srv, _, _ := newTestServer(t, 1)

	codes := make(map[int]int)
	for range 5 {
		codes[getJSON(t, srv.URL+"/health", nil)]++
	}
	assert.Positive(t, codes[http.StatusTooManyRequests])
}
