package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gmv-tracker/internal/insight"
	"github.com/sells-group/gmv-tracker/internal/model"
	"github.com/sells-group/gmv-tracker/internal/notionsync"
	"github.com/sells-group/gmv-tracker/internal/reconcile"
	"github.com/sells-group/gmv-tracker/internal/report"
	"github.com/sells-group/gmv-tracker/internal/store"
	"github.com/sells-group/gmv-tracker/pkg/notion/mocks"
)

const adsCSV = `Product Name,SKU,Spend,Impressions,Clicks,Orders,GMV
Mug,X1,100,5000,200,10,"1,000"
`

const fulfillmentCSV = `product_name,sku,orders,qty,revenue,cogs
Mug,X1,10,12,1000,400
`

var testFees = model.FeeSchedule{CommissionRate: 0.02, TransactionRate: 0.01, PaymentRate: 0.02, TargetMargin: 0.1}

type fixedProvider struct{ text string }

func (p fixedProvider) Name() string { return "fixed" }

func (p fixedProvider) Analyze(_ context.Context, _ insight.Prompt) (string, error) {
	return p.text, nil
}

type testEnv struct {
	srv   *httptest.Server
	store store.Store
	dir   string
}

func newTestEnv(t *testing.T, analyzer bool) *testEnv {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewSQLite(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	var a *insight.Analyzer
	if analyzer {
		a = insight.NewAnalyzer(st, []insight.Provider{fixedProvider{text: "1. Raise budget\ngmv=1200\nroas=11"}}, insight.AnalyzerOptions{})
	}

	s := New(st, report.NewService(st, report.NewBuilder(0)), a, nil, Options{
		Fees:      testFees,
		Policy:    reconcile.PolicyFirstWins,
		SlidesDir: filepath.Join(dir, "slides"),
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: st, dir: dir}
}

func (e *testEnv) upload(t *testing.T, fields map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, body := range map[string]string{"ads": adsCSV, "fulfillment": fulfillmentCSV} {
		fw, err := mw.CreateFormFile(name, name+".csv")
		require.NoError(t, err)
		_, err = fw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(e.srv.URL+"/v1/imports", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() }) //nolint:errcheck
	return resp
}

func (e *testEnv) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() }) //nolint:errcheck
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Error errorBody `json:"error"`
	}
	decode(t, resp, &body)
	return body.Error.Code
}

func (e *testEnv) importWeek(t *testing.T, week string) string {
	t.Helper()
	resp := e.upload(t, map[string]string{"year": "2025", "week": week})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var res report.ImportResult
	decode(t, resp, &res)
	return res.Report.ID
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false)
	resp := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestImport_CreatesReport(t *testing.T) {
	env := newTestEnv(t, false)

	resp := env.upload(t, map[string]string{"year": "2025", "week": "7", "notes": "launch week"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var res report.ImportResult
	decode(t, resp, &res)
	require.NotNil(t, res.Report)
	assert.Equal(t, "2025-W07", res.Report.Week.Label())
	assert.Equal(t, "launch week", res.Report.Notes)
	assert.InDelta(t, 439.5, res.Report.Metrics.NetProfit, 1e-9)
	assert.Len(t, res.TopProducts, 1)
}

func TestImport_DuplicateWeekConflicts(t *testing.T) {
	env := newTestEnv(t, false)
	env.importWeek(t, "7")

	resp := env.upload(t, map[string]string{"year": "2025", "week": "7"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "WEEK_EXISTS", errorCode(t, resp))

	resp = env.upload(t, map[string]string{"year": "2025", "week": "7", "replace": "true"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestImport_BadInput(t *testing.T) {
	env := newTestEnv(t, false)

	tests := []struct {
		name   string
		fields map[string]string
		status int
		code   string
	}{
		{"missing week", map[string]string{"year": "2025"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"bad rate", map[string]string{"year": "2025", "week": "7", "payment_rate": "abc"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"bad policy", map[string]string{"year": "2025", "week": "7", "policy": "newest"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"week out of range", map[string]string{"year": "2025", "week": "60"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"margin out of range", map[string]string{"year": "2025", "week": "7", "target_margin": "1.5"}, http.StatusUnprocessableEntity, "INVALID_MARGIN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.upload(t, tt.fields)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, errorCode(t, resp))
		})
	}
}

func TestImport_NotMultipart(t *testing.T) {
	env := newTestEnv(t, false)
	resp := env.do(t, http.MethodPost, "/v1/imports", `{"year":2025}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReports_ListGetPatchDelete(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.importWeek(t, "7")
	env.importWeek(t, "8")

	resp := env.do(t, http.MethodGet, "/v1/reports?year=2025&limit=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Reports []model.WeeklyReport `json:"reports"`
	}
	decode(t, resp, &list)
	require.Len(t, list.Reports, 1)
	assert.Equal(t, 8, list.Reports[0].Week.Number)

	resp = env.do(t, http.MethodGet, "/v1/reports/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detail report.Detail
	decode(t, resp, &detail)
	assert.Equal(t, id, detail.Report.ID)
	assert.Len(t, detail.TopProducts, 1)

	resp = env.do(t, http.MethodPatch, "/v1/reports/"+id, `{"notes":"promo"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var patched model.WeeklyReport
	decode(t, resp, &patched)
	assert.Equal(t, "promo", patched.Notes)

	resp = env.do(t, http.MethodGet, "/v1/reports/"+id+"/imports", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var imports struct {
		Imports []model.ImportRecord `json:"imports"`
	}
	decode(t, resp, &imports)
	assert.Len(t, imports.Imports, 2)

	resp = env.do(t, http.MethodDelete, "/v1/reports/"+id, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/v1/reports/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(t, resp))
}

func TestReports_BadQuery(t *testing.T) {
	env := newTestEnv(t, false)
	resp := env.do(t, http.MethodGet, "/v1/reports?limit=ten", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReports_PatchRequiresNotes(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.importWeek(t, "7")
	resp := env.do(t, http.MethodPatch, "/v1/reports/"+id, `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTrendAndCompare(t *testing.T) {
	env := newTestEnv(t, false)
	prev := env.importWeek(t, "6")
	cur := env.importWeek(t, "7")

	resp := env.do(t, http.MethodGet, "/v1/reports/trend?weeks=4", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var trend struct {
		Reports []model.WeeklyReport `json:"reports"`
	}
	decode(t, resp, &trend)
	require.Len(t, trend.Reports, 2)
	assert.Equal(t, prev, trend.Reports[0].ID)

	for _, path := range []string{"/compare", "/compare/" + prev} {
		resp = env.do(t, http.MethodGet, "/v1/reports/"+cur+path, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var cmp report.Comparison
		decode(t, resp, &cmp)
		assert.Equal(t, prev, cmp.Previous.ID)
		assert.InDelta(t, 0, cmp.Deltas["gmv"], 1e-9)
	}

	resp = env.do(t, http.MethodGet, "/v1/reports/"+prev+"/compare", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCalculate(t *testing.T) {
	env := newTestEnv(t, false)

	body := `{"gmv":1000,"orders":10,"costs":400,"ad_spend":100,"clicks":200,"impressions":5000,
		"commission_rate":0.02,"transaction_rate":0.01,"payment_rate":0.02}`
	resp := env.do(t, http.MethodPost, "/v1/metrics", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		ROAS      float64 `json:"roas"`
		CTR       float64 `json:"ctr"`
		NetProfit float64 `json:"net_profit"`
	}
	decode(t, resp, &out)
	assert.InDelta(t, 10, out.ROAS, 1e-9)
	assert.InDelta(t, 4, out.CTR, 1e-9)
	assert.InDelta(t, 439.5, out.NetProfit, 1e-9)
}

func TestCalculate_DivisionByZero(t *testing.T) {
	env := newTestEnv(t, false)

	body := `{"gmv":1000,"orders":10,"costs":400,"ad_spend":100,"clicks":0,"impressions":5000}`
	resp := env.do(t, http.MethodPost, "/v1/metrics", body)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var errResp struct {
		Error errorBody `json:"error"`
	}
	decode(t, resp, &errResp)
	assert.Equal(t, "DIVISION_BY_ZERO", errResp.Error.Code)
	assert.Equal(t, "clicks", errResp.Error.Details["divisor"])
}

func TestCalculate_Partial(t *testing.T) {
	env := newTestEnv(t, false)

	body := `{"gmv":1000,"orders":10,"costs":400,"ad_spend":100,"clicks":0,"impressions":5000,"partial":true}`
	resp := env.do(t, http.MethodPost, "/v1/metrics", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p struct {
		Undefined []string `json:"undefined"`
	}
	decode(t, resp, &p)
	assert.Contains(t, p.Undefined, "cpc")
}

func TestCalculate_InvalidMargin(t *testing.T) {
	env := newTestEnv(t, false)
	resp := env.do(t, http.MethodPost, "/v1/metrics", `{"gmv":1,"orders":1,"ad_spend":1,"clicks":1,"impressions":1,"target_margin":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "INVALID_MARGIN", errorCode(t, resp))
}

func TestInsights(t *testing.T) {
	env := newTestEnv(t, true)
	id := env.importWeek(t, "7")

	resp := env.do(t, http.MethodPost, "/v1/reports/"+id+"/insights", `{"types":["prediction"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Recommendations []model.Recommendation `json:"recommendations"`
	}
	decode(t, resp, &out)
	require.Len(t, out.Recommendations, 2)

	resp = env.do(t, http.MethodGet, "/v1/reports/"+id+"/insights", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &out)
	assert.Len(t, out.Recommendations, 2)

	resp = env.do(t, http.MethodPost, "/v1/reports/"+id+"/insights", `{"types":["horoscope"]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInsights_NotConfigured(t *testing.T) {
	env := newTestEnv(t, false)
	resp := env.do(t, http.MethodPost, "/v1/reports/r1/insights", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/v1/reports/r1/notion", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestSlides(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.importWeek(t, "7")

	resp := env.do(t, http.MethodPost, "/v1/reports/"+id+"/slides", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]string
	decode(t, resp, &out)
	assert.Contains(t, out["content"], "2025-W07")

	data, err := os.ReadFile(out["path"])
	require.NoError(t, err)
	assert.Equal(t, out["content"], string(data))
}

func TestSlides_UnknownReport(t *testing.T) {
	env := newTestEnv(t, false)
	resp := env.do(t, http.MethodPost, "/v1/reports/missing/slides", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNotion_SyncAndStatus(t *testing.T) {
	dir := t.TempDir()
	st, err := store.NewSQLite(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	mc := mocks.NewMockClient(t)
	mc.On("QueryDatabase", mock.Anything, "db-1", mock.Anything).Return(&notionapi.DatabaseQueryResponse{}, nil).Once()
	mc.On("CreatePage", mock.Anything, mock.Anything).Return(&notionapi.Page{ID: "page-1"}, nil).Once()

	syncer := notionsync.New(mc, st, notionsync.Config{DatabaseID: "db-1"})
	srv := httptest.NewServer(New(st, report.NewService(st, nil), nil, syncer, Options{Fees: testFees}).Handler())
	t.Cleanup(srv.Close)
	env := &testEnv{srv: srv, store: st, dir: dir}
	id := env.importWeek(t, "7")

	resp := env.do(t, http.MethodGet, "/v1/reports/"+id+"/notion", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status struct {
		Synced bool   `json:"synced"`
		Status string `json:"status"`
	}
	decode(t, resp, &status)
	assert.False(t, status.Synced)
	assert.Equal(t, "never synced", status.Status)

	resp = env.do(t, http.MethodPost, "/v1/reports/"+id+"/notion", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entry model.SyncLog
	decode(t, resp, &entry)
	assert.Equal(t, "page-1", entry.NotionPageID)
	assert.Equal(t, model.SyncTypeCreate, entry.SyncType)

	resp = env.do(t, http.MethodGet, "/v1/reports/"+id+"/notion", "")
	decode(t, resp, &status)
	assert.True(t, status.Synced)
}
