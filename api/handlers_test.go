package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hostsentry/config"
	"hostsentry/core"
	"hostsentry/storage"
)

type fakeAlertStore struct {
	alerts map[string]*core.Alert
}

func (f *fakeAlertStore) GetAlerts(ctx context.Context, severity string, limit, offset int) ([]core.Alert, error) {
	out := []core.Alert{}
	for _, a := range f.alerts {
		if severity == "" || string(a.Severity) == severity {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeAlertStore) GetAlert(ctx context.Context, id string) (*core.Alert, error) {
	a, ok := f.alerts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return a, nil
}

func (f *fakeAlertStore) CountAlerts(ctx context.Context) (int64, error) {
	return int64(len(f.alerts)), nil
}

type fakeEventStore struct {
	events []core.Event
}

func (f *fakeEventStore) GetRecentEvents(ctx context.Context, limit int) ([]core.Event, error) {
	if limit > 0 && limit < len(f.events) {
		return f.events[:limit], nil
	}
	return f.events, nil
}

type fakeMetricsStore struct {
	risk []storage.RiskPoint
}

func (f *fakeMetricsStore) GetMetricsHistory(ctx context.Context, since time.Time, limit int) ([]core.SystemMetrics, error) {
	return []core.SystemMetrics{}, nil
}

func (f *fakeMetricsStore) GetRiskHistory(ctx context.Context, since time.Time, limit int) ([]storage.RiskPoint, error) {
	return f.risk, nil
}

type fakeAcknowledger struct {
	acked []string
	err   error
}

func (f *fakeAcknowledger) Acknowledge(ctx context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.acked = append(f.acked, id)
	return nil
}

type fakeEngine struct {
	rules []core.Rule
}

func (f *fakeEngine) Rules() []core.Rule { return f.rules }

type fakeScorer struct {
	score float64
	count int
}

func (f *fakeScorer) Current() float64       { return f.score }
func (f *fakeScorer) ContributionCount() int { return f.count }

type apiFixture struct {
	api    *API
	alerts *fakeAlertStore
	ack    *fakeAcknowledger
	hub    *Hub
}

func newTestAPI(t *testing.T) *apiFixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.API.AllowedOrigins = []string{"http://localhost:5173"}
	cfg.API.RateLimit.RequestsPerSecond = 1000
	cfg.API.RateLimit.Burst = 1000

	logger := zap.NewNop().Sugar()
	hub := NewHub(context.Background(), logger)
	go hub.Start()
	t.Cleanup(hub.Stop)

	alerts := &fakeAlertStore{alerts: map[string]*core.Alert{}}
	ack := &fakeAcknowledger{}
	a := NewAPI(
		alerts,
		&fakeEventStore{},
		&fakeMetricsStore{risk: []storage.RiskPoint{{Score: 42, Timestamp: time.Now()}}},
		ack,
		&fakeEngine{rules: []core.Rule{{ID: "r1"}}},
		&fakeScorer{score: 17.5, count: 2},
		core.NewEventBus(10, logger),
		hub,
		cfg,
		logger,
	)
	t.Cleanup(func() { a.Stop(context.Background()) })
	return &apiFixture{api: a, alerts: alerts, ack: ack, hub: hub}
}

func doRequest(t *testing.T, a *API, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGetAlerts(t *testing.T) {
	f := newTestAPI(t)
	f.alerts.alerts["a1"] = &core.Alert{ID: "a1", Severity: core.SeverityHigh}

	rec := doRequest(t, f.api, http.MethodGet, "/api/alerts")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decodeBody(t, rec)
	assert.Equal(t, 1.0, body["count"])
}

func TestGetAlertsSeverityFilterIsCaseInsensitive(t *testing.T) {
	f := newTestAPI(t)
	f.alerts.alerts["a1"] = &core.Alert{ID: "a1", Severity: core.SeverityHigh}
	f.alerts.alerts["a2"] = &core.Alert{ID: "a2", Severity: core.SeverityLow}

	// Stored severities are uppercase; the filter must be normalized
	// before it reaches the store.
	for _, q := range []string{"HIGH", "high", "High"} {
		rec := doRequest(t, f.api, http.MethodGet, "/api/alerts?severity="+q)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1.0, decodeBody(t, rec)["count"], "severity=%s", q)
	}
}

func TestGetAlertsRejectsUnknownSeverity(t *testing.T) {
	f := newTestAPI(t)

	rec := doRequest(t, f.api, http.MethodGet, "/api/alerts?severity=URGENT")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "severity")
}

func TestGetAlertNotFound(t *testing.T) {
	f := newTestAPI(t)

	rec := doRequest(t, f.api, http.MethodGet, "/api/alerts/missing")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "alert not found", decodeBody(t, rec)["error"])
}

func TestGetAlertByID(t *testing.T) {
	f := newTestAPI(t)
	f.alerts.alerts["a1"] = &core.Alert{ID: "a1", RuleID: "r1", Severity: core.SeverityLow}

	rec := doRequest(t, f.api, http.MethodGet, "/api/alerts/a1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a1", decodeBody(t, rec)["id"])
}

func TestAcknowledgeAlert(t *testing.T) {
	f := newTestAPI(t)

	rec := doRequest(t, f.api, http.MethodPost, "/api/alerts/a1/acknowledge")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a1"}, f.ack.acked)
	assert.Equal(t, "acknowledged", decodeBody(t, rec)["status"])
}

func TestAcknowledgeAlertNotFound(t *testing.T) {
	f := newTestAPI(t)
	f.ack.err = storage.ErrNotFound

	rec := doRequest(t, f.api, http.MethodPost, "/api/alerts/missing/acknowledge")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRisk(t *testing.T) {
	f := newTestAPI(t)

	rec := doRequest(t, f.api, http.MethodGet, "/api/risk")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, 17.5, body["score"])
	assert.Equal(t, 2.0, body["contributions"])
}

func TestGetRiskHistory(t *testing.T) {
	f := newTestAPI(t)

	rec := doRequest(t, f.api, http.MethodGet, "/api/risk/history?hours=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, decodeBody(t, rec)["count"])
}

func TestGetRules(t *testing.T) {
	f := newTestAPI(t)

	rec := doRequest(t, f.api, http.MethodGet, "/api/rules")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, decodeBody(t, rec)["count"])
}

func TestGetStatus(t *testing.T) {
	f := newTestAPI(t)

	rec := doRequest(t, f.api, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, 17.5, body["risk_score"])
	assert.Equal(t, 1.0, body["rule_count"])
	assert.NotNil(t, body["bus"])
}

func TestHealthCheck(t *testing.T) {
	f := newTestAPI(t)

	rec := doRequest(t, f.api, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestCORSPreflight(t *testing.T) {
	f := newTestAPI(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/alerts", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	f.api.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	cfg := &config.Config{}
	cfg.API.RateLimit.RequestsPerSecond = 1
	cfg.API.RateLimit.Burst = 2

	logger := zap.NewNop().Sugar()
	hub := NewHub(context.Background(), logger)
	go hub.Start()
	t.Cleanup(hub.Stop)

	a := NewAPI(&fakeAlertStore{alerts: map[string]*core.Alert{}}, &fakeEventStore{},
		&fakeMetricsStore{}, &fakeAcknowledger{}, &fakeEngine{}, &fakeScorer{},
		core.NewEventBus(10, logger), hub, cfg, logger)
	t.Cleanup(func() { a.Stop(context.Background()) })

	codes := []int{}
	for i := 0; i < 4; i++ {
		rec := doRequest(t, a, http.MethodGet, "/health")
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
	assert.Equal(t, http.StatusTooManyRequests, codes[3])
}
