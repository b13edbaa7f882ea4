package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"tension-monitor/internal/apperr"
	"tension-monitor/internal/metrics"
	"tension-monitor/internal/models"
	"tension-monitor/internal/monitor"
)

// Mirror внешнее хранилище событий (Redis)
type Mirror interface {
	Ping() error
	GetStats() map[string]interface{}
	GetRecentAlerts(limit int) ([]models.Alert, error)
	GetRecentAnomalies(metric string, limit int) ([]models.Anomaly, error)
}

const (
	defaultHistoryLimit = 100
	defaultRecentLimit  = 10
)

// Handler обработчик HTTP запросов
type Handler struct {
	monitor *monitor.Monitor
	mirror  Mirror
	logger  *zap.Logger
}

// NewHandler создает новый обработчик. mirror может быть nil.
func NewHandler(m *monitor.Monitor, mirror Mirror, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		monitor: m,
		mirror:  mirror,
		logger:  logger,
	}
}

// Routes собирает роутер
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(instrument)

	r.Post("/metrics", h.SubmitMetric)
	r.Post("/metrics/batch", h.BatchSubmitMetrics)
	r.Get("/snapshot", h.GetSnapshot)

	r.Post("/tension", h.SubmitTension)
	r.Get("/tension", h.ListTension)
	r.Get("/tension/{componentID}", h.GetTension)
	r.Post("/tension/{componentID}/decay", h.ForceDecay)
	r.Get("/tension/{componentID}/history", h.GetDecayHistory)

	r.Get("/alerts/recent", h.GetRecentAlerts)
	r.Get("/anomalies/{metric}/recent", h.GetRecentAnomalies)

	r.Route("/decay", func(r chi.Router) {
		r.Get("/analytics", h.GetDecayAnalytics)
		r.Get("/health", h.GetDecayHealth)
		r.Get("/stats", h.GetDecayStats)
		r.Put("/rate", h.SetDecayRate)
	})

	r.Get("/health", h.HealthCheck)
	r.Get("/stats", h.GetStats)
	return r
}

// instrument пишет RequestsTotal и RequestDuration по шаблону маршрута
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		metrics.RequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// SubmitMetric обрабатывает POST /metrics
func (h *Handler) SubmitMetric(w http.ResponseWriter, r *http.Request) {
	var req models.MetricRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.Invalid("invalid JSON: %v", err))
		return
	}
	if req.Value == nil {
		h.writeError(w, apperr.Invalid("value is required"))
		return
	}

	eval, err := h.monitor.PushMetricSample(req.Name, *req.Value, req.Timestamp)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "accepted",
		"metric":        req.Name,
		"new_alerts":    eval.NewAlerts,
		"new_anomalies": eval.NewAnomalies,
	})
}

// BatchSubmitMetrics обрабатывает POST /metrics/batch; некорректные элементы пропускаются
func (h *Handler) BatchSubmitMetrics(w http.ResponseWriter, r *http.Request) {
	var batch []models.MetricRequest
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.writeError(w, apperr.Invalid("invalid JSON: %v", err))
		return
	}

	accepted, alerts, anomalies := 0, 0, 0
	for _, req := range batch {
		if req.Value == nil {
			continue
		}
		eval, err := h.monitor.PushMetricSample(req.Name, *req.Value, req.Timestamp)
		if err != nil {
			continue
		}
		accepted++
		alerts += len(eval.NewAlerts)
		anomalies += len(eval.NewAnomalies)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "accepted",
		"total":         len(batch),
		"accepted":      accepted,
		"new_alerts":    alerts,
		"new_anomalies": anomalies,
	})
}

// GetSnapshot обрабатывает GET /snapshot
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Snapshot())
}

// SubmitTension обрабатывает POST /tension
func (h *Handler) SubmitTension(w http.ResponseWriter, r *http.Request) {
	var req models.TensionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.Invalid("invalid JSON: %v", err))
		return
	}
	if req.Value == nil {
		h.writeError(w, apperr.Invalid("value is required"))
		return
	}

	ev, err := h.monitor.PushTensionEvent(req.ComponentID, *req.Value)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// ListTension обрабатывает GET /tension
func (h *Handler) ListTension(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Components())
}

// GetTension обрабатывает GET /tension/{componentID}
func (h *Handler) GetTension(w http.ResponseWriter, r *http.Request) {
	ct, err := h.monitor.Tension(chi.URLParam(r, "componentID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ct)
}

// ForceDecay обрабатывает POST /tension/{componentID}/decay; без тела factor = 1
func (h *Handler) ForceDecay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Factor *float64 `json:"factor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, apperr.Invalid("invalid JSON: %v", err))
		return
	}
	factor := 1.0
	if req.Factor != nil {
		factor = *req.Factor
	}

	res, err := h.monitor.ForceDecay(chi.URLParam(r, "componentID"), factor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// queryLimit читает ?limit=; отсутствие дает def
func queryLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, apperr.Invalid("limit must be a positive integer, got %q", raw)
	}
	return limit, nil
}

// GetDecayHistory обрабатывает GET /tension/{componentID}/history
func (h *Handler) GetDecayHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultHistoryLimit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	history, err := h.monitor.DecayHistory(chi.URLParam(r, "componentID"), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if history == nil {
		history = []models.DecayEvent{}
	}
	writeJSON(w, http.StatusOK, history)
}

// GetRecentAlerts обрабатывает GET /alerts/recent из Redis
func (h *Handler) GetRecentAlerts(w http.ResponseWriter, r *http.Request) {
	if h.mirror == nil {
		h.writeError(w, apperr.NotFound("mirror", "redis"))
		return
	}
	limit, err := queryLimit(r, defaultRecentLimit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	alerts, err := h.mirror.GetRecentAlerts(limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

// GetRecentAnomalies обрабатывает GET /anomalies/{metric}/recent из Redis
func (h *Handler) GetRecentAnomalies(w http.ResponseWriter, r *http.Request) {
	if h.mirror == nil {
		h.writeError(w, apperr.NotFound("mirror", "redis"))
		return
	}
	limit, err := queryLimit(r, defaultRecentLimit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	metric := chi.URLParam(r, "metric")
	anomalies, err := h.mirror.GetRecentAnomalies(metric, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"metric":        metric,
		"anomaly_count": len(anomalies),
		"anomalies":     anomalies,
	})
}

// GetDecayAnalytics обрабатывает GET /decay/analytics
func (h *Handler) GetDecayAnalytics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.DecayAnalytics())
}

// GetDecayHealth обрабатывает GET /decay/health
func (h *Handler) GetDecayHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.SystemHealth())
}

// GetDecayStats обрабатывает GET /decay/stats
func (h *Handler) GetDecayStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.DecayStats())
}

// SetDecayRate обрабатывает PUT /decay/rate
func (h *Handler) SetDecayRate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rate *float64 `json:"rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.Invalid("invalid JSON: %v", err))
		return
	}
	if req.Rate == nil {
		h.writeError(w, apperr.Invalid("rate is required"))
		return
	}

	if err := h.monitor.SetDecayRate(*req.Rate); err != nil {
		h.writeError(w, err)
		return
	}
	h.logger.Info("decay rate updated", zap.Float64("rate", *req.Rate))
	writeJSON(w, http.StatusOK, map[string]float64{"decay_rate": *req.Rate})
}

// HealthCheck обрабатывает GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := h.monitor.Health()

	status := "healthy"
	httpStatus := http.StatusOK

	// Проверяем Redis, если он подключен
	resp := map[string]interface{}{
		"score":     health.Score,
		"timestamp": time.Now(),
	}
	if h.mirror != nil {
		redisOK := h.mirror.Ping() == nil
		resp["redis"] = redisOK
		if !redisOK {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}
	}
	resp["status"] = status

	writeJSON(w, httpStatus, resp)
}

// GetStats обрабатывает GET /stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"monitor":   h.monitor.GetStats(),
		"timestamp": time.Now(),
	}
	if h.mirror != nil {
		resp["redis"] = h.mirror.GetStats()
	}
	writeJSON(w, http.StatusOK, resp)
}
