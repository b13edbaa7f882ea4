// Package monitor связывает хранилище метрик, детектор аномалий, алерты,
// оценку здоровья и движок затухания напряжения в один объект.
// Внешние слои (HTTP, Prometheus, Redis) работают только через Monitor и Sink.
package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"tension-monitor/internal/analytics"
	"tension-monitor/internal/apperr"
	"tension-monitor/internal/config"
	"tension-monitor/internal/metrics"
	"tension-monitor/internal/models"
	"tension-monitor/internal/stats"
	"tension-monitor/internal/tension"
)

// Sink получает новые алерты и аномалии. Вызывается вне блокировок ядра.
type Sink interface {
	OnAlert(alert models.Alert)
	OnAnomaly(anomaly models.Anomaly)
}

// Option настройка Monitor
type Option func(*Monitor)

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithSink добавляет получателя событий
func WithSink(s Sink) Option {
	return func(m *Monitor) {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
}

// Evaluation результат оценки метрик
type Evaluation struct {
	Anomalies    []models.Anomaly
	NewAnomalies []models.Anomaly
	NewAlerts    []models.Alert
}

// Monitor ядро телеметрии и затухания
type Monitor struct {
	logger *zap.Logger
	now    func() time.Time

	cfgMu sync.RWMutex
	cfg   config.TelemetryConfig

	store    *analytics.MetricStore
	detector *analytics.AnomalyDetector
	alerts   *analytics.AlertManager
	state    *tension.State
	engine   *tension.Engine

	sinks []Sink

	runMu  sync.Mutex
	runCtx context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New создает Monitor. Фоновые задачи запускаются только через Start.
func New(cfg config.TelemetryConfig, logger *zap.Logger, opts ...Option) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Monitor{
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.store = analytics.NewMetricStore(cfg.SeriesCapacity)
	m.detector = analytics.NewAnomalyDetector(cfg.AnomalyZScoreThreshold, cfg.AnomalyDedup())
	m.alerts = analytics.NewAlertManager(cfg.AlertDedup())
	m.state = tension.NewState(cfg.PropagationLogLimit, m.now)
	m.engine = tension.NewEngine(m.state, logger.Named("decay"), m.now)

	if err := m.Configure(cfg); err != nil {
		return nil, err
	}
	return m, nil
}

// Configure проверяет и применяет настройки целиком.
// При ошибке текущие настройки не меняются.
func (m *Monitor) Configure(cfg config.TelemetryConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.Clone()

	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()

	if err := m.engine.SetDecayRate(cfg.DecayRate); err != nil {
		return err
	}
	if err := m.engine.SetInterval(cfg.TickInterval()); err != nil {
		return err
	}
	m.store.SetCapacity(cfg.SeriesCapacity)
	m.detector.Configure(cfg.AnomalyZScoreThreshold, cfg.AnomalyDedup())
	m.alerts.SetDedup(cfg.AlertDedup())
	m.state.SetLogLimit(cfg.PropagationLogLimit)
	m.cfg = cfg

	m.logger.Info("telemetry configured",
		zap.Float64("decay_rate", cfg.DecayRate),
		zap.Duration("tick_interval", cfg.TickInterval()),
		zap.Float64("zscore_threshold", cfg.AnomalyZScoreThreshold),
		zap.Int("thresholds", len(cfg.Thresholds)),
	)
	return nil
}

// Config копия текущих настроек
func (m *Monitor) Config() config.TelemetryConfig {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.cfg.Clone()
}

func (m *Monitor) thresholds() map[string]float64 {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.cfg.Clone().Thresholds
}

// PushMetricSample принимает измерение и сразу оценивает метрики.
// Нулевой ts заменяется текущим временем.
func (m *Monitor) PushMetricSample(name string, value float64, ts time.Time) (Evaluation, error) {
	if name == "" {
		return Evaluation{}, apperr.Invalid("metric name is required")
	}
	if !stats.IsFinite(value) {
		return Evaluation{}, apperr.Invalid("metric %s value must be finite, got %v", name, value)
	}
	if ts.IsZero() {
		ts = m.now()
	}

	m.store.AddSample(name, value, ts)
	metrics.SamplesReceived.Inc()
	return m.Evaluate(ts), nil
}

// Evaluate запускает поиск аномалий и проверку порогов на момент at
func (m *Monitor) Evaluate(at time.Time) Evaluation {
	start := time.Now()
	defer func() {
		metrics.EvaluationLatency.Observe(time.Since(start).Seconds())
	}()

	recent, created := m.detector.Detect(m.store, at)
	newAlerts := m.alerts.CheckThresholds(m.store.LatestValues(), m.thresholds(), at)

	for _, a := range created {
		metrics.AnomaliesDetected.WithLabelValues(a.Metric).Inc()
		m.logger.Warn("anomaly detected",
			zap.String("metric", a.Metric),
			zap.Float64("value", a.Value),
			zap.Float64("mean", a.Mean),
			zap.Float64("z_score", a.ZScore),
		)
	}
	for _, a := range newAlerts {
		metrics.AlertsRaised.WithLabelValues(a.Metric, string(a.Severity)).Inc()
		m.logger.Warn("threshold alert",
			zap.String("metric", a.Metric),
			zap.String("severity", string(a.Severity)),
			zap.Float64("value", a.Value),
			zap.Float64("threshold", a.Threshold),
		)
	}
	m.notify(created, newAlerts)

	return Evaluation{Anomalies: recent, NewAnomalies: created, NewAlerts: newAlerts}
}

func (m *Monitor) notify(anomalies []models.Anomaly, alerts []models.Alert) {
	for _, s := range m.sinks {
		for _, a := range anomalies {
			s.OnAnomaly(a)
		}
		for _, a := range alerts {
			s.OnAlert(a)
		}
	}
}

// PushTensionEvent записывает напряжение компонента, обрезанное до [0,1]
func (m *Monitor) PushTensionEvent(componentID string, value float64) (models.TensionEvent, error) {
	if componentID == "" {
		return models.TensionEvent{}, apperr.Invalid("component id is required")
	}
	ev := m.state.Set(componentID, value)
	metrics.TensionEventsReceived.Inc()
	metrics.ComponentTension.WithLabelValues(componentID).Set(ev.Stored)
	return ev, nil
}

// Health композитная оценка здоровья; пересчитывается при каждом вызове
func (m *Monitor) Health() models.HealthReport {
	now := m.now()
	return analytics.ScoreHealth(analytics.HealthInputs{
		Latest:       m.store.LatestValues(),
		Thresholds:   m.thresholds(),
		RecentAlerts: m.alerts.CountSince(now.Add(-analytics.AlertWindow)),
	})
}

// Snapshot метрики, алерты, аномалии и здоровье
func (m *Monitor) Snapshot() models.Snapshot {
	return models.Snapshot{
		Metrics:   m.store.Summaries(),
		Alerts:    m.alerts.Alerts(),
		Anomalies: m.detector.Recent(analytics.RecentAnomalies),
		Health:    m.Health(),
	}
}

// Tension напряжение компонента или NotFoundError
func (m *Monitor) Tension(componentID string) (models.ComponentTension, error) {
	v, err := m.state.Get(componentID)
	if err != nil {
		return models.ComponentTension{}, err
	}
	return models.ComponentTension{ID: componentID, Value: v, Band: tension.Band(v)}, nil
}

// Components все компоненты
func (m *Monitor) Components() []models.ComponentTension {
	return m.state.Components()
}

// ForceDecay разовое затухание компонента
func (m *Monitor) ForceDecay(componentID string, factor float64) (models.ForceDecayResult, error) {
	return m.engine.ForceDecay(componentID, factor)
}

// SetDecayRate меняет скорость затухания со следующего тика
func (m *Monitor) SetDecayRate(rate float64) error {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()

	if err := m.engine.SetDecayRate(rate); err != nil {
		return err
	}
	m.cfg.DecayRate = rate
	return nil
}

// DecayTick один логический тик затухания вне таймера
func (m *Monitor) DecayTick() int {
	return m.engine.Tick()
}

// DecayAnalytics аналитика затухания по компонентам
func (m *Monitor) DecayAnalytics() map[string]models.ComponentAnalytics {
	return m.engine.Analytics()
}

// SystemHealth здоровье подсистемы затухания
func (m *Monitor) SystemHealth() models.SystemHealth {
	return m.engine.SystemHealth()
}

// DecayStats счетчики движка затухания
func (m *Monitor) DecayStats() models.DecayStats {
	return m.engine.Stats()
}

// DecayHistory последние k событий затухания компонента
func (m *Monitor) DecayHistory(componentID string, k int) ([]models.DecayEvent, error) {
	if _, err := m.state.Get(componentID); err != nil {
		return nil, err
	}
	return m.engine.History(componentID, k), nil
}

// GetStats возвращает статистику ядра
func (m *Monitor) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"metrics_tracked": len(m.store.Names()),
		"components":      m.state.Len(),
		"alerts_held":     len(m.alerts.Alerts()),
		"detector":        m.detector.GetStats(),
		"decay":           m.engine.Stats(),
	}
}
