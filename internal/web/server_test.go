package web_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/metascaler/internal/catalog"
	"github.com/JonMunkholm/metascaler/internal/config"
	"github.com/JonMunkholm/metascaler/internal/core"
	"github.com/JonMunkholm/metascaler/internal/store"
	"github.com/JonMunkholm/metascaler/internal/web"
)

const fixtureYAML = `
assets:
  - id: col-1
    name: customer_id
    type: Column
  - id: col-2
    name: order_id
    type: Column
  - id: tbl-1
    name: order_id
    type: Table
custom_metadata:
  Data Governance: [Business Owner]
`

const referenceCSV = "name,description,Data Governance::Business Owner,notes\n" +
	"customer_id,Customer key,Jane Smith,ignored\n" +
	"order_id,Order key,,\n" +
	"unknown_col,Nothing,,\n"

type testEnv struct {
	server  *web.Server
	catalog *catalog.Memory
	reports *store.Memory
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Catalog.AssetTypes = []string{"Column", "Table", "View"}
	cfg.Catalog.SearchTimeout = time.Second
	cfg.Catalog.MutateTimeout = time.Second
	cfg.Run.MaxFileSize = 64 << 10
	cfg.Run.MaxConcurrent = 2
	cfg.Run.MaxWaitTime = time.Second
	cfg.Run.Workers = 2
	cfg.Run.Timeout = time.Minute
	cfg.Run.Retention = time.Minute
	cfg.Server.RequestTimeout = 10 * time.Second
	return cfg
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	cat, err := catalog.ParseFixture([]byte(fixtureYAML))
	require.NoError(t, err)

	reports := store.NewMemory()
	srv := web.NewServer(core.NewService(cat, reports, cfg), cfg)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return &testEnv{server: srv, catalog: cat, reports: reports}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func multipartRequest(t *testing.T, path, fileName, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

// startRun submits a run and waits for its report.
func (e *testEnv) startRun(t *testing.T, req *http.Request) *core.BatchReport {
	t.Helper()
	rec := e.do(req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	accepted := decode[map[string]string](t, rec)
	runID := accepted["run_id"]
	require.NotEmpty(t, runID)
	assert.Equal(t, "/api/runs/"+runID, rec.Header().Get("Location"))

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"?wait=true", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[core.BatchReport](t, rec)
	return &report
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testConfig())
	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestFormat(t *testing.T) {
	env := newTestEnv(t, testConfig())
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/format", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	guide := decode[core.FormatGuide](t, rec)
	assert.Equal(t, "name", guide.IdentityColumn)
	assert.Equal(t, "::", guide.CustomSeparator)
	assert.Equal(t, []string{"description", "user_owners", "group_owners", "certificate"}, guide.StandardColumns)
	assert.Equal(t, []string{"Column", "Table", "View"}, guide.AssetTypes)
	assert.Contains(t, guide.FileExtensions, ".xlsx")
}

func TestStartRun_MultipartDefaultsToDryRun(t *testing.T) {
	env := newTestEnv(t, testConfig())

	report := env.startRun(t, multipartRequest(t, "/api/runs", "ref.csv", referenceCSV, nil))

	assert.True(t, report.DryRun)
	assert.Equal(t, 3, report.TotalRows)
	assert.Equal(t, 1, report.Counts.WouldApply)
	assert.Equal(t, 1, report.Counts.SkippedAmbiguous)
	assert.Equal(t, 1, report.Counts.SkippedNoMatch)
	assert.Empty(t, env.catalog.Applied(), "dry run must not mutate")

	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, []string{"col-2", "tbl-1"}, report.Outcomes[1].MatchedAssetIDs)
}

func TestStartRun_MultipartTypeFilterAndExecute(t *testing.T) {
	env := newTestEnv(t, testConfig())

	report := env.startRun(t, multipartRequest(t, "/api/runs", "ref.csv", referenceCSV, map[string]string{
		"dry_run":     "false",
		"asset_types": "column",
	}))

	assert.False(t, report.DryRun)
	assert.Equal(t, []string{"Column"}, report.AssetTypes)
	assert.Equal(t, 2, report.Counts.Applied)
	assert.Equal(t, 1, report.Counts.SkippedNoMatch)

	a, ok := env.catalog.Asset("col-1")
	require.True(t, ok)
	assert.Equal(t, "Customer key", a.Description)
	assert.Equal(t, "Jane Smith", a.Custom["Data Governance"]["Business Owner"])
}

func TestStartRun_JSON(t *testing.T) {
	env := newTestEnv(t, testConfig())

	report := env.startRun(t, jsonRequest(t, "/api/runs", map[string]any{
		"file_name":    "ref.csv",
		"file_content": base64.StdEncoding.EncodeToString([]byte(referenceCSV)),
		"asset_types":  []string{"Column"},
		"dry_run":      false,
	}))

	assert.Equal(t, 2, report.Counts.Applied)
	assert.Len(t, env.catalog.Applied(), 2)
	assert.Equal(t, 1, env.reports.Len())
}

func TestStartRun_Errors(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte(referenceCSV))

	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
		code   string
	}{
		{
			name: "schema violation",
			req: func(t *testing.T) *http.Request {
				return jsonRequest(t, "/api/runs", map[string]any{"file_name": "ref.csv", "file_content": encoded, "extra": 1})
			},
			status: http.StatusBadRequest,
			code:   "REQ001",
		},
		{
			name: "dry_run wrong type",
			req: func(t *testing.T) *http.Request {
				return jsonRequest(t, "/api/runs", map[string]any{"file_name": "ref.csv", "file_content": encoded, "dry_run": "no"})
			},
			status: http.StatusBadRequest,
			code:   "REQ001",
		},
		{
			name: "not base64",
			req: func(t *testing.T) *http.Request {
				return jsonRequest(t, "/api/runs", map[string]any{"file_name": "ref.csv", "file_content": "%%%"})
			},
			status: http.StatusBadRequest,
			code:   "REQ001",
		},
		{
			name: "unsupported content type",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(referenceCSV))
				req.Header.Set("Content-Type", "text/csv")
				return req
			},
			status: http.StatusBadRequest,
			code:   "REQ001",
		},
		{
			name: "bad dry_run field",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/runs", "ref.csv", referenceCSV, map[string]string{"dry_run": "maybe"})
			},
			status: http.StatusBadRequest,
			code:   "REQ001",
		},
		{
			name: "no file",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/runs", "", "", map[string]string{"dry_run": "true"})
			},
			status: http.StatusUnprocessableEntity,
			code:   "FILE004",
		},
		{
			name: "missing name column",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/runs", "ref.csv", "description\nx\n", nil)
			},
			status: http.StatusUnprocessableEntity,
			code:   "COL001",
		},
		{
			name: "unsupported extension",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/runs", "ref.pdf", referenceCSV, nil)
			},
			status: http.StatusUnprocessableEntity,
			code:   "FILE003",
		},
		{
			name: "unknown asset type",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/runs", "ref.csv", referenceCSV, map[string]string{"asset_types": "Column,Dashboard"})
			},
			status: http.StatusUnprocessableEntity,
			code:   "VAL003",
		},
		{
			name: "file too large",
			req: func(t *testing.T) *http.Request {
				big := "name\n" + strings.Repeat("x\n", 40<<10)
				return multipartRequest(t, "/api/runs", "ref.csv", big, nil)
			},
			status: http.StatusRequestEntityTooLarge,
			code:   "FILE001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, testConfig())
			rec := env.do(tt.req(t))

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decode[web.ErrorResponse](t, rec)
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Message)
			assert.Empty(t, env.catalog.Applied())
		})
	}
}

func TestGetRun_Unknown(t *testing.T) {
	env := newTestEnv(t, testConfig())

	for _, path := range []string{
		"/api/runs/nope",
		"/api/runs/nope/outcomes.csv",
		"/api/runs/nope/progress",
	} {
		rec := env.do(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "RUN003", decode[web.ErrorResponse](t, rec).Code, path)
	}

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/runs/nope/cancel", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRun_FromStoreAfterEviction(t *testing.T) {
	cfg := testConfig()
	cfg.Run.Retention = time.Millisecond
	env := newTestEnv(t, cfg)

	report := env.startRun(t, multipartRequest(t, "/api/runs", "ref.csv", referenceCSV, nil))

	// The run leaves memory after retention; the stored report remains.
	require.Eventually(t, func() bool {
		rec := env.do(httptest.NewRequest(http.MethodPost, "/api/runs/"+report.RunID+"/cancel", nil))
		return rec.Code == http.StatusNotFound
	}, time.Second, 5*time.Millisecond)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/runs/"+report.RunID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, report.Counts, decode[core.BatchReport](t, rec).Counts)
}

func TestListRuns(t *testing.T) {
	env := newTestEnv(t, testConfig())
	first := env.startRun(t, multipartRequest(t, "/api/runs", "first.csv", referenceCSV, nil))
	second := env.startRun(t, multipartRequest(t, "/api/runs", "second.csv", referenceCSV, nil))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Runs []core.RunSummary `json:"runs"`
	}](t, rec)
	require.Len(t, body.Runs, 2)
	assert.Equal(t, second.RunID, body.Runs[0].RunID)
	assert.Equal(t, first.RunID, body.Runs[1].RunID)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/runs?limit=1", nil))
	assert.Len(t, decode[struct {
		Runs []core.RunSummary `json:"runs"`
	}](t, rec).Runs, 1)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/runs?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportOutcomes(t *testing.T) {
	env := newTestEnv(t, testConfig())
	report := env.startRun(t, multipartRequest(t, "/api/runs", "ref.csv", referenceCSV, nil))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/runs/"+report.RunID+"/outcomes.csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"row_index", "identity_value", "status", "matched_asset_ids", "error_code", "error_detail"}, records[0])
	assert.Equal(t, []string{"2", "order_id", "skipped_ambiguous", "col-2;tbl-1", "", ""}, records[2])

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/runs/"+report.RunID+"/outcomes.csv?status=skipped_no_match", nil))
	records, err = csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "unknown_col", records[1][1])
}

func TestRunProgress_FinishedRun(t *testing.T) {
	env := newTestEnv(t, testConfig())
	report := env.startRun(t, multipartRequest(t, "/api/runs", "ref.csv", referenceCSV, nil))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/runs/"+report.RunID+"/progress", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "id: 3\nevent: progress\n")
	assert.Contains(t, body, "event: complete\n")
	assert.Contains(t, body, `"phase":"complete"`)
}

func TestPlan(t *testing.T) {
	env := newTestEnv(t, testConfig())
	rec := env.do(multipartRequest(t, "/api/plan", "ref.csv", referenceCSV, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var plan struct {
		Rows    int           `json:"rows"`
		Columns []core.Column `json:"columns"`
		Updates bool          `json:"has_updates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plan))
	assert.Equal(t, 3, plan.Rows)
	assert.True(t, plan.Updates)
	require.Len(t, plan.Columns, 4)
	assert.Equal(t, "identity", plan.Columns[0].KindName)
	assert.Equal(t, "unrecognized", plan.Columns[3].Reason)
	assert.Empty(t, env.catalog.Applied())
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"secret"}
	env := newTestEnv(t, cfg)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/format", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/format", nil)
	req.Header.Set("Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, env.do(req).Code)

	// Health checks stay open
	assert.Equal(t, http.StatusOK, env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate.Enabled = true
	cfg.Rate.RequestsPerMinute = 2
	env := newTestEnv(t, cfg)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
	}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE001", decode[web.ErrorResponse](t, rec).Code)
}
