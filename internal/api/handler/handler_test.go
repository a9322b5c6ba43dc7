package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebcib/codescope/internal/analysis"
	"github.com/sebcib/codescope/internal/api"
	"github.com/sebcib/codescope/internal/api/handler"
	"github.com/sebcib/codescope/internal/config"
	"github.com/sebcib/codescope/internal/dedupe"
	"github.com/sebcib/codescope/internal/gateway"
	"github.com/sebcib/codescope/internal/lint"
	"github.com/sebcib/codescope/internal/record"
	"github.com/sebcib/codescope/internal/store"
	"github.com/sebcib/codescope/internal/suggest"
	"github.com/sebcib/codescope/internal/vault"
	"github.com/sebcib/codescope/pkg/models"
)

type testEnv struct {
	router http.Handler
	local  *store.MockStore
	remote *store.MockStore
	gw     *gateway.Gateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	remote, local := store.NewMockStore(), store.NewMockStore()
	gw := gateway.New(remote, local, nil, config.RemoteConfig{
		WriteTimeout: time.Second,
		ProbeTimeout: time.Second,
	}, 0)
	t.Cleanup(gw.Close)

	w := dedupe.New(10*time.Second, 64)
	t.Cleanup(w.Close)

	v := vault.New(local, []byte("test-secret"))
	svc := analysis.NewService(lint.New(), suggest.NewMockProvider(), record.NewBuilder(w), gw)

	router := api.NewRouter(api.Dependencies{
		HealthHandler:     handler.Health(gw, local),
		AnalyzeHandler:    handler.Analyze(svc),
		ListAnalyses:      handler.ListAnalyses(gw),
		GetAnalysis:       handler.GetAnalysis(gw),
		DeleteAnalysis:    handler.DeleteAnalysis(gw),
		StatisticsHandler: handler.Statistics(gw),
		ReconcileHandler:  handler.Reconcile(gw),
		StoreCredential:   handler.StoreCredential(v),
		CredentialStatus:  handler.CredentialStatus(v),
		ClearCredential:   handler.ClearCredential(v),
	})

	return &testEnv{router: router, local: local, remote: remote, gw: gw}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
	return envelope.Data
}

func TestAnalyzeEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/v1/analyze", map[string]string{
		"source": "x = ((1)\n",
		"path":   "main.py",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	data := decode[struct {
		Record *models.AnalysisRecord `json:"record"`
		Origin models.Origin          `json:"origin"`
	}](t, rr)
	require.NotNil(t, data.Record)
	assert.Equal(t, models.OriginRemote, data.Origin)
	assert.NotEmpty(t, data.Record.Diagnostics)
	assert.Equal(t, "main.py", data.Record.SourceRef)
}

func TestAnalyzeEndpoint_Validation(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/v1/analyze", map[string]string{"source": ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeEndpoint_Dedup(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]string{"source": "dup = 1"}

	first := env.do(t, http.MethodPost, "/api/v1/analyze", body)
	require.Equal(t, http.StatusCreated, first.Code)

	second := env.do(t, http.MethodPost, "/api/v1/analyze", body)
	require.Equal(t, http.StatusOK, second.Code, "duplicate returns the existing record")

	data := decode[struct {
		Deduplicated bool `json:"deduplicated"`
	}](t, second)
	assert.True(t, data.Deduplicated)
}

func TestGetAnalysisEndpoint(t *testing.T) {
	env := newTestEnv(t)

	created := env.do(t, http.MethodPost, "/api/v1/analyze", map[string]string{"source": "y = 1"})
	require.Equal(t, http.StatusCreated, created.Code)
	data := decode[struct {
		Record *models.AnalysisRecord `json:"record"`
	}](t, created)

	rr := env.do(t, http.MethodGet, "/api/v1/analyses/"+data.Record.ID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	missing := env.do(t, http.MethodGet, "/api/v1/analyses/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestListAnalysesEndpoint(t *testing.T) {
	env := newTestEnv(t)

	for _, src := range []string{"a = 1", "b = 2", "c = 3"} {
		rr := env.do(t, http.MethodPost, "/api/v1/analyze", map[string]string{"source": src})
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr := env.do(t, http.MethodGet, "/api/v1/analyses", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	summaries := decode[[]models.RecordSummary](t, rr)
	assert.Len(t, summaries, 3)

	limited := env.do(t, http.MethodGet, "/api/v1/analyses?limit=2", nil)
	require.Equal(t, http.StatusOK, limited.Code)
	assert.Len(t, decode[[]models.RecordSummary](t, limited), 2)

	badSince := env.do(t, http.MethodGet, "/api/v1/analyses?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, badSince.Code)

	// Negative paging values are ignored rather than forwarded to the store.
	negative := env.do(t, http.MethodGet, "/api/v1/analyses?limit=-5&offset=-3", nil)
	require.Equal(t, http.StatusOK, negative.Code, negative.Body.String())
	assert.Len(t, decode[[]models.RecordSummary](t, negative), 3)
}

func TestDeleteAnalysisEndpoint(t *testing.T) {
	env := newTestEnv(t)

	created := env.do(t, http.MethodPost, "/api/v1/analyze", map[string]string{"source": "gone = 1"})
	require.Equal(t, http.StatusCreated, created.Code)
	data := decode[struct {
		Record *models.AnalysisRecord `json:"record"`
	}](t, created)

	// Let the asynchronous local mirror write land before deleting.
	env.gw.Close()

	del := env.do(t, http.MethodDelete, "/api/v1/analyses/"+data.Record.ID, nil)
	require.Equal(t, http.StatusNoContent, del.Code, del.Body.String())

	missing := env.do(t, http.MethodGet, "/api/v1/analyses/"+data.Record.ID, nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)

	again := env.do(t, http.MethodDelete, "/api/v1/analyses/"+data.Record.ID, nil)
	assert.Equal(t, http.StatusNotFound, again.Code)
}

func TestReconcileEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	stranded := &models.AnalysisRecord{
		ID:           "stranded-1",
		CreatedAt:    time.Now().UTC(),
		SourceDigest: "digest-stranded",
		Origin:       models.OriginLocal,
	}
	require.NoError(t, env.local.Put(ctx, stranded))

	rr := env.do(t, http.MethodPost, "/api/v1/reconcile", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	report := decode[gateway.ReconciliationReport](t, rr)
	assert.Equal(t, 1, report.Pushed)
}

func TestReconcileEndpoint_RemoteDown(t *testing.T) {
	env := newTestEnv(t)
	env.remote.Fail(assert.AnError)

	rr := env.do(t, http.MethodPost, "/api/v1/reconcile", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestStatisticsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/v1/analyze", map[string]string{"source": "# TODO\n"})
	require.Equal(t, http.StatusCreated, rr.Code)

	stats := env.do(t, http.MethodGet, "/api/v1/statistics", nil)
	require.Equal(t, http.StatusOK, stats.Code)

	data := decode[models.Statistics](t, stats)
	assert.Equal(t, 1, data.TotalAnalyses)
	assert.Equal(t, 1, data.TotalDiagnostics)
}

func TestCredentialLifecycle(t *testing.T) {
	env := newTestEnv(t)

	status := env.do(t, http.MethodGet, "/api/v1/credential", nil)
	require.Equal(t, http.StatusOK, status.Code)
	assert.False(t, decode[struct {
		Configured bool `json:"configured"`
	}](t, status).Configured)

	put := env.do(t, http.MethodPut, "/api/v1/credential", map[string]string{"key": "sk-live-123"})
	require.Equal(t, http.StatusOK, put.Code)
	assert.NotContains(t, put.Body.String(), "sk-live-123")

	status = env.do(t, http.MethodGet, "/api/v1/credential", nil)
	require.Equal(t, http.StatusOK, status.Code)
	assert.True(t, decode[struct {
		Configured bool `json:"configured"`
	}](t, status).Configured)

	del := env.do(t, http.MethodDelete, "/api/v1/credential", nil)
	require.Equal(t, http.StatusNoContent, del.Code)

	status = env.do(t, http.MethodGet, "/api/v1/credential", nil)
	require.Equal(t, http.StatusOK, status.Code)
	assert.False(t, decode[struct {
		Configured bool `json:"configured"`
	}](t, status).Configured)
}

func TestCredentialValidation(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPut, "/api/v1/credential", map[string]string{"key": ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	data := decode[struct {
		Status string `json:"status"`
		Local  string `json:"local"`
	}](t, rr)
	assert.Equal(t, "ok", data.Status)
	assert.Equal(t, "ok", data.Local)
}
