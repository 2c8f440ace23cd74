package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-analytics/basket"
	"retail-analytics/database"
	"retail-analytics/export"
	"retail-analytics/forecast"
	"retail-analytics/jobs"
	"retail-analytics/models"
	"retail-analytics/realtime"
	"retail-analytics/rfm"
	"retail-analytics/service"
	"retail-analytics/transactions"
)

type fakeAnalytics struct {
	table       *models.TransactionTable
	rows        []models.CustomerRFM
	lastParams  basket.Params
	lastFilter  transactions.Criteria
	forecastErr error
	jobs        map[string]jobs.Status
}

func newFakeAnalytics() *fakeAnalytics {
	return &fakeAnalytics{
		table: &models.TransactionTable{Source: "test.csv", Fingerprint: "fp1", Records: make([]models.TransactionRecord, 3)},
		rows: []models.CustomerRFM{
			{CustomerID: "1", Recency: 5, Frequency: 9, Monetary: 900, Segment: models.Champions},
			{CustomerID: "2", Recency: 200, Frequency: 1, Monetary: 20, Segment: models.Lost},
			{CustomerID: "3", Recency: 10, Frequency: 4, Monetary: 300, Segment: models.Champions},
		},
		jobs: map[string]jobs.Status{},
	}
}

func (f *fakeAnalytics) Table() *models.TransactionTable { return f.table }
func (f *fakeAnalytics) Countries() []string             { return []string{"United Kingdom"} }

func (f *fakeAnalytics) Reload(ctx context.Context) (*models.TransactionTable, error) {
	return f.table, nil
}

func (f *fakeAnalytics) Overview(ctx context.Context, c transactions.Criteria) (transactions.Overview, error) {
	f.lastFilter = c
	return transactions.Overview{TotalOrders: 3, TotalRevenue: 42.5}, nil
}

func (f *fakeAnalytics) RFM(ctx context.Context, q service.RFMQuery) ([]models.CustomerRFM, error) {
	f.lastFilter = q.Criteria
	return f.rows, nil
}

func (f *fakeAnalytics) Segments(ctx context.Context, q service.RFMQuery) ([]rfm.SegmentStats, error) {
	return rfm.SegmentSummary(f.rows), nil
}

func (f *fakeAnalytics) TopCustomers(ctx context.Context, q service.RFMQuery, n int) ([]models.CustomerRFM, error) {
	return rfm.TopCustomers(f.rows, n), nil
}

func (f *fakeAnalytics) Customer(ctx context.Context, q service.RFMQuery, id string) (*service.CustomerProfile, error) {
	row, ok := rfm.Find(f.rows, id)
	if !ok {
		return nil, database.NewNotFoundErrorWithID("customer", id)
	}
	return &service.CustomerProfile{RFM: row, Recommendation: models.RecommendationFor(row.Segment)}, nil
}

func (f *fakeAnalytics) Rules(ctx context.Context, c transactions.Criteria, p basket.Params) (*basket.Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	f.lastParams = p
	return &basket.Result{
		Items: []models.ItemFrequency{{Item: "MUG", Count: 2, Support: 0.5}},
		Rules: []models.AssociationRule{
			{ItemA: "JAR", ItemB: "MUG", Count: 2, Support: 0.5, LiftAToB: 2},
			{ItemA: "CANDLE", ItemB: "LANTERN", Count: 1, Support: 0.25, LiftAToB: 1.5},
		},
		Baskets: 4,
	}, nil
}

func (f *fakeAnalytics) Recommend(ctx context.Context, c transactions.Criteria, p basket.Params, anchor string, n int) ([]basket.CrossSell, error) {
	result, err := f.Rules(ctx, c, p)
	if err != nil {
		return nil, err
	}
	return basket.Recommend(result.Rules, anchor, n), nil
}

func (f *fakeAnalytics) Forecast(ctx context.Context, c transactions.Criteria, periods int) (*forecast.Result, error) {
	if f.forecastErr != nil {
		return nil, f.forecastErr
	}
	return &forecast.Result{Points: make([]models.ForecastPoint, periods)}, nil
}

func (f *fakeAnalytics) TrainAsync(ctx context.Context, c transactions.Criteria) (string, error) {
	f.jobs["job-1"] = jobs.Status{ID: "job-1", Kind: "clv.train", State: jobs.StateCompleted, Result: map[string]int{"customers": 3}}
	return "job-1", nil
}

func (f *fakeAnalytics) Job(id string) (jobs.Status, bool) {
	s, ok := f.jobs[id]
	return s, ok
}

func (f *fakeAnalytics) DiscardJob(id string) bool {
	_, ok := f.jobs[id]
	delete(f.jobs, id)
	return ok
}

func (f *fakeAnalytics) Predictions(ctx context.Context, c transactions.Criteria) (*service.ModelReport, error) {
	return nil, database.NewNotFoundErrorWithID("model", "fp1")
}

func (f *fakeAnalytics) LatestRun(ctx context.Context, engine string, c transactions.Criteria) (*database.AnalysisRun, error) {
	if engine != service.EngineRFM {
		return nil, models.NewInvalidParameterError("engine", "unknown engine", engine)
	}
	return &database.AnalysisRun{ID: "run-1", Engine: engine, Fingerprint: f.table.Fingerprint, Rows: len(f.rows)}, nil
}

func (f *fakeAnalytics) Export(ctx context.Context, name string, c transactions.Criteria) (export.Table, error) {
	if name != export.TableRFM {
		return export.Table{}, models.NewInvalidParameterError("table", "unknown export table", name)
	}
	return export.RFMTable(f.rows), nil
}

type fakeWebhooks struct {
	saved []database.Webhook
}

func (f *fakeWebhooks) GetWebhooks(ctx context.Context) ([]database.Webhook, error) {
	return f.saved, nil
}

func (f *fakeWebhooks) GetWebhookByID(ctx context.Context, id int) (*database.Webhook, error) {
	if id < 1 || id > len(f.saved) {
		return nil, database.NewNotFoundErrorWithID("webhook", id)
	}
	w := f.saved[id-1]
	return &w, nil
}

func (f *fakeWebhooks) SaveWebhook(ctx context.Context, webhook *database.Webhook) error {
	if err := webhook.Validate(); err != nil {
		return err
	}
	if webhook.ID > 0 {
		f.saved[webhook.ID-1] = *webhook
		return nil
	}
	webhook.ID = len(f.saved) + 1
	f.saved = append(f.saved, *webhook)
	return nil
}

func (f *fakeWebhooks) DeleteWebhook(ctx context.Context, id int) error {
	if id > len(f.saved) {
		return database.NewNotFoundErrorWithID("webhook", id)
	}
	return nil
}

type refreshCounter struct{ calls int }

func (r *refreshCounter) RefreshCache(ctx context.Context) { r.calls++ }

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestStatusCodes(t *testing.T) {
	fake := newFakeAnalytics()
	fake.forecastErr = models.NewInsufficientDataError("forecast", 2, 1)
	h := NewServer(fake, nil, nil, nil, nil, basket.Params{MinSupport: 0.01, MinLift: 1}).Handler()

	tests := []struct {
		name   string
		method string
		target string
		want   int
	}{
		{"health", "GET", "/health", http.StatusOK},
		{"overview", "GET", "/api/overview?country=United+Kingdom", http.StatusOK},
		{"bad date", "GET", "/api/overview?from=2011-13-01", http.StatusBadRequest},
		{"bad reference date", "GET", "/api/customers/rfm?reference_date=yesterday", http.StatusBadRequest},
		{"unknown segment", "GET", "/api/customers/rfm?segment=Whales", http.StatusBadRequest},
		{"customer", "GET", "/api/customers/1", http.StatusOK},
		{"missing customer", "GET", "/api/customers/404", http.StatusNotFound},
		{"support out of range", "GET", "/api/basket/rules?min_support=1.5", http.StatusBadRequest},
		{"recommend without item", "GET", "/api/basket/recommendations", http.StatusBadRequest},
		{"forecast insufficient", "GET", "/api/forecast", http.StatusUnprocessableEntity},
		{"forecast horizon", "GET", "/api/forecast?periods=500", http.StatusBadRequest},
		{"no model", "GET", "/api/models/predictions", http.StatusNotFound},
		{"unknown job", "GET", "/api/jobs/missing", http.StatusNotFound},
		{"unknown export", "GET", "/api/export/nope", http.StatusBadRequest},
		{"webhooks disabled", "GET", "/api/config/webhooks", http.StatusServiceUnavailable},
		{"preflight", "OPTIONS", "/api/overview", http.StatusOK},
		{"metrics", "GET", "/metrics", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.target, "")
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestFiltersReachService(t *testing.T) {
	fake := newFakeAnalytics()
	h := NewServer(fake, nil, nil, nil, nil, basket.Params{}).Handler()

	rec := do(t, h, "GET", "/api/overview?country=France,Germany&country=EIRE&from=2011-01-01&to=2011-01-31", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"France", "Germany", "EIRE"}, fake.lastFilter.Countries)
	assert.Equal(t, time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC), fake.lastFilter.From)
	assert.Equal(t, 31, fake.lastFilter.To.Day())
	assert.Equal(t, 23, fake.lastFilter.To.Hour())
}

func TestRFMSegmentFilterAndLimit(t *testing.T) {
	h := NewServer(newFakeAnalytics(), nil, nil, nil, nil, basket.Params{}).Handler()

	rec := do(t, h, "GET", "/api/customers/rfm?segment=Champions&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, float64(2), body["count"])
	assert.Len(t, body["customers"], 1)
}

func TestBasketDefaultsAndOverrides(t *testing.T) {
	fake := newFakeAnalytics()
	h := NewServer(fake, nil, nil, nil, nil, basket.Params{MinSupport: 0.02, MinLift: 1, MaxBasketItems: 50}).Handler()

	rec := do(t, h, "GET", "/api/basket/rules?min_lift=1.2&item=MUG", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, basket.Params{MinSupport: 0.02, MinLift: 1.2, MaxBasketItems: 50}, fake.lastParams)

	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"])

	rec = do(t, h, "GET", "/api/basket/rules?max_basket_items=0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, fake.lastParams.MaxBasketItems)

	rec = do(t, h, "GET", "/api/basket/recommendations?item=JAR&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	recs := decode(t, rec)["recommendations"].([]interface{})
	require.Len(t, recs, 1)
	assert.Equal(t, "MUG", recs[0].(map[string]interface{})["suggest"])
}

func TestTrainJobLifecycle(t *testing.T) {
	h := NewServer(newFakeAnalytics(), nil, nil, nil, nil, basket.Params{}).Handler()

	rec := do(t, h, "POST", "/api/models/train", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "/api/jobs/job-1", rec.Header().Get("Location"))

	rec = do(t, h, "GET", "/api/jobs/job-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "completed", body["job"].(map[string]interface{})["state"])
	assert.Equal(t, float64(3), body["result"].(map[string]interface{})["customers"])

	assert.Equal(t, http.StatusNoContent, do(t, h, "DELETE", "/api/jobs/job-1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, "DELETE", "/api/jobs/job-1", "").Code)
}

func TestExportCSV(t *testing.T) {
	h := NewServer(newFakeAnalytics(), nil, nil, nil, nil, basket.Params{}).Handler()

	rec := do(t, h, "GET", "/api/export/rfm", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="rfm.csv"`)

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "CustomerID,"))
}

func TestWebhookRoutes(t *testing.T) {
	store := &fakeWebhooks{}
	refresh := &refreshCounter{}
	h := NewServer(newFakeAnalytics(), store, refresh, nil, nil, basket.Params{}).Handler()

	rec := do(t, h, "POST", "/api/config/webhooks", `{"name":"ops","url":"https://hooks.example.com/x","events":"churn.alert"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1), decode(t, rec)["id"])

	rec = do(t, h, "POST", "/api/config/webhooks", `{"name":"bad","url":"not a url"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, "POST", "/api/config/webhooks", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	store.saved[0].TotalSent = 7
	rec = do(t, h, "PUT", "/api/config/webhooks/1", `{"name":"ops-renamed","url":"https://hooks.example.com/y"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ops-renamed", store.saved[0].Name)
	assert.Equal(t, 7, store.saved[0].TotalSent)
	assert.Equal(t, http.StatusNotFound, do(t, h, "PUT", "/api/config/webhooks/9", `{"name":"x","url":"https://hooks.example.com/z"}`).Code)

	rec = do(t, h, "GET", "/api/config/webhooks", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNoContent, do(t, h, "DELETE", "/api/config/webhooks/1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, "DELETE", "/api/config/webhooks/9", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "DELETE", "/api/config/webhooks/abc", "").Code)

	assert.Equal(t, 3, refresh.calls)
}

func TestLatestRunRoute(t *testing.T) {
	h := NewServer(newFakeAnalytics(), nil, nil, nil, nil, basket.Params{}).Handler()

	rec := do(t, h, "GET", "/api/runs/rfm", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "rfm", body["engine"])
	assert.Equal(t, "fp1", body["fingerprint"])
	assert.Equal(t, float64(3), body["rows"])

	assert.Equal(t, http.StatusBadRequest, do(t, h, "GET", "/api/runs/bogus", "").Code)
}

func TestLiveRoutesStreamThroughMiddleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := realtime.NewBroker()
	go broker.Run(ctx)
	hub := realtime.NewHub(ctx)

	srv := httptest.NewServer(NewServer(newFakeAnalytics(), nil, nil, broker, hub, basket.Params{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for broker.Clients() < 1 || hub.Clients() < 1 {
		require.True(t, time.Now().Before(deadline), "clients did not connect")
		time.Sleep(10 * time.Millisecond)
	}

	publisher := realtime.Multi{broker, hub}
	publisher.Broadcast(realtime.EventJobCompleted, map[string]string{"job_id": "job-1"})

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, realtime.EventJobCompleted)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg realtime.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, realtime.EventJobCompleted, msg.Event)
}
