package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal общее количество запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration продолжительность запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// SamplesReceived принятые измерения метрик
	SamplesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telemetry_samples_received_total",
			Help: "Total number of metric samples ingested",
		},
	)

	// TensionEventsReceived принятые события напряжения
	TensionEventsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tension_events_received_total",
			Help: "Total number of tension events ingested",
		},
	)

	// AnomaliesDetected обнаруженные аномалии
	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomalies_detected_total",
			Help: "Total number of anomalies detected",
		},
		[]string{"metric"},
	)

	// AlertsRaised созданные алерты
	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_raised_total",
			Help: "Total number of threshold alerts raised",
		},
		[]string{"metric", "severity"},
	)

	// EvaluationLatency задержка оценки аномалий и порогов
	EvaluationLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evaluation_latency_seconds",
			Help:    "Anomaly and threshold evaluation latency in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		},
	)

	// HealthScore композитная оценка здоровья
	HealthScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "health_score",
			Help: "Composite health score (0-100)",
		},
	)

	// DecayHealthScore оценка здоровья подсистемы затухания
	DecayHealthScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "decay_system_health_score",
			Help: "Decay subsystem health score (0-100)",
		},
	)

	// ComponentTension текущее напряжение компонента
	ComponentTension = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "component_tension",
			Help: "Current tension value per component",
		},
		[]string{"component"},
	)

	// TrackedMetrics количество отслеживаемых метрик
	TrackedMetrics = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracked_metrics",
			Help: "Number of metric series currently held",
		},
	)

	// DecayTickDuration длительность тика затухания
	DecayTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "decay_tick_duration_seconds",
			Help:    "Decay tick duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025},
		},
	)

	// SlowDecayTicks тики дольше мягкого дедлайна
	SlowDecayTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "decay_slow_ticks_total",
			Help: "Decay ticks that exceeded the soft deadline",
		},
	)

	// DecayComponentErrors пропущенные из-за ошибки компоненты
	DecayComponentErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decay_component_errors_total",
			Help: "Components skipped during a decay tick because of an error",
		},
		[]string{"component"},
	)

	// RedisOperations операции с Redis
	RedisOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total number of Redis operations",
		},
		[]string{"operation", "status"},
	)
)
