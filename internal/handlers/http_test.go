package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tension-monitor/internal/config"
	"tension-monitor/internal/models"
	"tension-monitor/internal/monitor"
)

type fakeMirror struct {
	err       error
	alerts    []models.Alert
	anomalies map[string][]models.Anomaly
	lastLimit int
}

func (f *fakeMirror) Ping() error { return f.err }

func (f *fakeMirror) GetStats() map[string]interface{} {
	return map[string]interface{}{"total_conns": 1}
}

func (f *fakeMirror) GetRecentAlerts(limit int) ([]models.Alert, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.alerts[:min(limit, len(f.alerts))], nil
}

func (f *fakeMirror) GetRecentAnomalies(metric string, limit int) ([]models.Anomaly, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	list := f.anomalies[metric]
	return list[:min(limit, len(list))], nil
}

func newTestServer(t *testing.T, mirror Mirror) (*monitor.Monitor, http.Handler) {
	t.Helper()
	m, err := monitor.New(config.DefaultTelemetry(), zap.NewNop())
	require.NoError(t, err)
	return m, NewHandler(m, mirror, zap.NewNop()).Routes()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSubmitMetric(t *testing.T) {
	m, h := newTestServer(t, nil)

	rec := do(t, h, http.MethodPost, "/metrics", `{"name":"cpu","value":95}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status    string         `json:"status"`
		NewAlerts []models.Alert `json:"new_alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp.Status)
	require.Len(t, resp.NewAlerts, 1)
	assert.Equal(t, "cpu", resp.NewAlerts[0].Metric)

	assert.Contains(t, m.Snapshot().Metrics, "cpu")
}

func TestSubmitMetricRejectsBadInput(t *testing.T) {
	_, h := newTestServer(t, nil)

	for _, body := range []string{`not json`, `{"name":"cpu"}`, `{"value":1}`} {
		rec := do(t, h, http.MethodPost, "/metrics", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Contains(t, rec.Body.String(), "error")
	}

	rec := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBatchSubmitMetrics(t *testing.T) {
	m, h := newTestServer(t, nil)

	rec := do(t, h, http.MethodPost, "/metrics/batch",
		`[{"name":"cpu","value":10},{"name":"","value":1},{"name":"memory"},{"name":"latency","value":20}]`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4.0, resp["total"])
	assert.Equal(t, 2.0, resp["accepted"])
	assert.Len(t, m.Snapshot().Metrics, 2)
}

func TestTensionRoutes(t *testing.T) {
	_, h := newTestServer(t, nil)

	rec := do(t, h, http.MethodPost, "/tension", `{"component_id":"svcA","value":1.5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var ev models.TensionEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	assert.Equal(t, 1.0, ev.Stored)
	assert.Equal(t, 1.5, ev.Raw)

	rec = do(t, h, http.MethodGet, "/tension/svcA", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ct models.ComponentTension
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ct))
	assert.Equal(t, models.BandCritical, ct.Band)

	rec = do(t, h, http.MethodGet, "/tension/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/tension/svcA/decay", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res models.ForceDecayResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 1.0, res.Before)
	assert.Less(t, res.After, 1.0)

	rec = do(t, h, http.MethodPost, "/tension/svcA/decay", `{"factor":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/tension", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.ComponentTension
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestDecayRoutes(t *testing.T) {
	m, h := newTestServer(t, nil)

	rec := do(t, h, http.MethodPut, "/decay/rate", `{"rate":1.5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0.02, m.Config().DecayRate)

	rec = do(t, h, http.MethodPut, "/decay/rate", `{"rate":0.1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.1, m.DecayStats().DecayRate)

	rec = do(t, h, http.MethodGet, "/decay/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health models.SystemHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, models.StatusUnknown, health.Status)

	rec = do(t, h, http.MethodGet, "/decay/analytics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodGet, "/decay/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSnapshotRoute(t *testing.T) {
	m, h := newTestServer(t, nil)
	_, err := m.PushMetricSample("cpu", 50, time.Time{})
	require.NoError(t, err)

	rec := do(t, h, http.MethodGet, "/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 50.0, snap.Metrics["cpu"].Latest)
}

func TestHealthCheck(t *testing.T) {
	_, h := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "redis")

	_, h = newTestServer(t, &fakeMirror{})
	rec = do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":true`)

	_, h = newTestServer(t, &fakeMirror{err: errors.New("down")})
	rec = do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}

func TestGetStats(t *testing.T) {
	_, h := newTestServer(t, &fakeMirror{})
	rec := do(t, h, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp, "monitor")
	assert.Contains(t, resp, "redis")
}

func TestDecayHistoryRoute(t *testing.T) {
	m, h := newTestServer(t, nil)
	_, err := m.PushTensionEvent("svcA", 0.9)
	require.NoError(t, err)
	m.DecayTick()
	m.DecayTick()

	rec := do(t, h, http.MethodGet, "/tension/svcA/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []models.DecayEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 2)
	assert.Equal(t, 0.9, history[0].Before)
	assert.Greater(t, history[0].Delta, 0.0)

	rec = do(t, h, http.MethodGet, "/tension/svcA/history?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Less(t, history[0].Before, 0.9)

	rec = do(t, h, http.MethodGet, "/tension/svcA/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/tension/missing/history", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err = m.PushTensionEvent("fresh", 0.5)
	require.NoError(t, err)
	rec = do(t, h, http.MethodGet, "/tension/fresh/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestRecentAlertsRoute(t *testing.T) {
	_, h := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/alerts/recent", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	mirror := &fakeMirror{alerts: []models.Alert{
		{ID: "2", Metric: "cpu", Severity: models.SeverityCritical},
		{ID: "1", Metric: "memory", Severity: models.SeverityWarning},
	}}
	_, h = newTestServer(t, mirror)

	rec = do(t, h, http.MethodGet, "/alerts/recent?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Count  int            `json:"count"`
		Alerts []models.Alert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, mirror.lastLimit)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "2", resp.Alerts[0].ID)

	do(t, h, http.MethodGet, "/alerts/recent", "")
	assert.Equal(t, defaultRecentLimit, mirror.lastLimit)

	rec = do(t, h, http.MethodGet, "/alerts/recent?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, h = newTestServer(t, &fakeMirror{err: errors.New("down")})
	rec = do(t, h, http.MethodGet, "/alerts/recent", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRecentAnomaliesRoute(t *testing.T) {
	_, h := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/anomalies/latency/recent", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	mirror := &fakeMirror{anomalies: map[string][]models.Anomaly{
		"latency": {{ID: "a1", Metric: "latency", Value: 1000, ZScore: 5}},
	}}
	_, h = newTestServer(t, mirror)

	rec = do(t, h, http.MethodGet, "/anomalies/latency/recent", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Metric    string           `json:"metric"`
		Count     int              `json:"anomaly_count"`
		Anomalies []models.Anomaly `json:"anomalies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "latency", resp.Metric)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "a1", resp.Anomalies[0].ID)

	rec = do(t, h, http.MethodGet, "/anomalies/cpu/recent", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
}
