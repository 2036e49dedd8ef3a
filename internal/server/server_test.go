package server

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/chen-001/gallery-app-clean/internal/analysis"
	"github.com/chen-001/gallery-app-clean/internal/correlation"
	"github.com/chen-001/gallery-app-clean/internal/history"
	"github.com/chen-001/gallery-app-clean/internal/metrics"
)

func writeTable(t *testing.T, root, dataset, name, body string) {
	t.Helper()
	dir := filepath.Join(root, dataset)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".csv"), []byte(body), 0o644))
}

func newTestServer(t *testing.T) (*Server, *history.Store) {
	t.Helper()
	root := t.TempDir()
	writeTable(t, root, "v1", "alpha", "date,c1,c2,c3\n2024-01-01,1,2,3\n2024-01-02,3,1,2\n")
	writeTable(t, root, "v1", "beta", "date,c1,c2,c3\n2024-01-01,10,20,30\n2024-01-02,1,2,3\n")
	writeTable(t, root, "v2", "beta", "date,c1,c2,c3\n2024-01-01,10,20,30\n2024-01-02,1,2,3\n")
	writeTable(t, root, "v1", "later", "date,c1,c2,c3\n2025-01-01,1,2,3\n")

	loader := correlation.NewLoader(correlation.LoaderOptions{Root: root, Format: correlation.FormatCSV}, nil)
	store := history.NewStore(history.NewMemoryBackend(), 0, nil)
	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg))
	srv := New(Options{
		Engine:   correlation.NewEngine(loader, nil),
		Catalog:  loader,
		History:  store,
		Gatherer: reg,
	})
	return srv, store
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestCorrelationEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler(true)

	rec, out := do(t, h, http.MethodPost, "/api/correlation",
		`{"factor_version":"v1","factor_names":["alpha","beta","later","gamma_fold"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, out["success"])
	require.Equal(t, "v1", out["factor_version"])
	require.Equal(t, []any{"alpha", "beta", "later"}, out["factor_names"])
	require.Equal(t, []any{"gamma_fold"}, out["missing_factors"])

	matrix := out["correlation_matrix"].([]any)
	require.Len(t, matrix, 3)
	require.Equal(t, 1.0, matrix[0].([]any)[0])
	require.Nil(t, matrix[0].([]any)[2], "no shared dates travels as null")

	var res correlation.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.True(t, math.IsNaN(res.Matrix[2][0]))
}

func TestCorrelationEndpointRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler(true)

	rec, out := do(t, h, http.MethodPost, "/api/correlation", `{"factor_version":"v1","factor_names":["alpha"]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, false, out["success"])

	rec, _ = do(t, h, http.MethodPost, "/api/correlation", `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/correlation", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCorrelationEndpointNoData(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, out := do(t, srv.Handler(true), http.MethodPost, "/api/correlation",
		`{"factor_version":"v1","factor_names":["x","y"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, out["success"])
	require.Equal(t, correlation.MessageNoData, out["message"])
	require.Equal(t, []any{"x", "y"}, out["missing_factors"])
}

func TestCorrelationV2Endpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, out := do(t, srv.Handler(true), http.MethodPost, "/api/correlation/v2",
		`{"factor_list":[{"name":"alpha","version":"v1"},{"name":"beta","version":"v2"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, out["success"])
	require.Equal(t, "mixed(2)", out["factor_version"])
	require.Equal(t, []any{"alpha@v1", "beta@v2"}, out["factor_names"])
}

func TestHistoryEndpoints(t *testing.T) {
	srv, store := newTestServer(t)
	h := srv.Handler(true)

	body, err := json.Marshal(history.Record{
		Dataset: "v1",
		Tables:  []string{"alpha", "beta"},
		Matrix:  analysis.Matrix{{1, 0.5}, {0.5, 1}},
	})
	require.NoError(t, err)
	rec, out := do(t, h, http.MethodPost, "/api/correlation/history", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	id, _ := out["id"].(string)
	require.Len(t, id, 8)

	rec, out = do(t, h, http.MethodGet, "/api/correlation/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, out["history"], 1)

	rec, _ = do(t, h, http.MethodGet, "/api/correlation/history/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, out = do(t, h, http.MethodDelete, "/api/correlation/history/nope0000", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, false, out["success"])

	rec, out = do(t, h, http.MethodDelete, "/api/correlation/history/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, out["success"])

	records, err := store.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestFactorListing(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler(true)

	rec, out := do(t, h, http.MethodGet, "/api/factors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []any{"v1", "v2"}, out["datasets"])

	rec, out = do(t, h, http.MethodGet, "/api/factors/v1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []any{"alpha", "beta", "later"}, out["factors"])

	rec, _ = do(t, h, http.MethodGet, "/api/factors/v9", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler(true)
	rec, out := do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", out["status"])

	do(t, h, http.MethodPost, "/api/correlation", `{"factor_version":"v1","factor_names":["alpha","beta"]}`)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mrec := httptest.NewRecorder()
	h.ServeHTTP(mrec, req)
	require.Equal(t, http.StatusOK, mrec.Code)
	require.True(t, bytes.Contains(mrec.Body.Bytes(), []byte("gallery_correlations_total")))

	rec, _ = do(t, srv.Handler(false), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
