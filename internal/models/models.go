package models

import "time"

// MetricSample одно измерение метрики
type MetricSample struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// MetricSummary сводка по метрике для snapshot
type MetricSummary struct {
	Latest    float64   `json:"latest"`
	Timestamp time.Time `json:"timestamp"`
	Samples   int       `json:"samples"`
}

// Severity уровень алерта
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert превышение порога метрикой
type Alert struct {
	ID        string    `json:"id"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// Anomaly отклонение значения от скользящего среднего
type Anomaly struct {
	ID        string    `json:"id"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Mean      float64   `json:"mean"`
	StdDev    float64   `json:"stddev"`
	ZScore    float64   `json:"z_score"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthStatus полоса композитной оценки
type HealthStatus string

const (
	StatusExcellent HealthStatus = "excellent"
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusWarning   HealthStatus = "warning"
	StatusCritical  HealthStatus = "critical"
	StatusUnknown   HealthStatus = "unknown"
)

// HealthReport композитная оценка здоровья 0-100
type HealthReport struct {
	Score   float64            `json:"score"`
	Status  HealthStatus       `json:"status"`
	Factors map[string]float64 `json:"factors"`
}

// Snapshot состояние телеметрии для внешних потребителей
type Snapshot struct {
	Metrics   map[string]MetricSummary `json:"metrics"`
	Alerts    []Alert                  `json:"alerts"`
	Anomalies []Anomaly                `json:"anomalies"`
	Health    HealthReport             `json:"health"`
}

// TensionEvent сырое событие напряжения компонента
type TensionEvent struct {
	ComponentID string    `json:"component_id"`
	Raw         float64   `json:"raw"`
	Stored      float64   `json:"stored"`
	Timestamp   time.Time `json:"timestamp"`
}

// TensionBand качественная полоса напряжения, вычисляется при чтении
type TensionBand string

const (
	BandLow      TensionBand = "low"
	BandMedium   TensionBand = "medium"
	BandHigh     TensionBand = "high"
	BandCritical TensionBand = "critical"
)

// ComponentTension текущее напряжение компонента
type ComponentTension struct {
	ID    string      `json:"id"`
	Value float64     `json:"value"`
	Band  TensionBand `json:"band"`
}

// DecayEvent один шаг затухания; Delta = Before - After
type DecayEvent struct {
	ComponentID string    `json:"component_id"`
	Timestamp   time.Time `json:"timestamp"`
	Before      float64   `json:"before"`
	After       float64   `json:"after"`
	Delta       float64   `json:"delta"`
}

// ForceDecayResult результат ручного затухания
type ForceDecayResult struct {
	Before    float64 `json:"before"`
	After     float64 `json:"after"`
	Reduction float64 `json:"reduction"`
}

// Trend направление изменения напряжения
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// ComponentAnalytics аналитика затухания компонента
type ComponentAnalytics struct {
	AverageDecay   float64 `json:"average_decay"`
	Volatility     float64 `json:"volatility"`
	Trend          Trend   `json:"trend"`
	CurrentTension float64 `json:"current_tension"`
}

// SystemHealth агрегированное здоровье подсистемы затухания
type SystemHealth struct {
	Status        HealthStatus `json:"status"`
	Score         float64      `json:"score"`
	Issues        []string     `json:"issues"`
	AvgTension    float64      `json:"avg_tension"`
	AvgVolatility float64      `json:"avg_volatility"`
	Components    int          `json:"components"`
}

// DecayStats счетчики движка затухания
type DecayStats struct {
	Ticks           int64         `json:"ticks"`
	AvgTickDuration time.Duration `json:"avg_tick_duration"`
	PeakTension     float64       `json:"peak_tension"`
	SlowTicks       int64         `json:"slow_ticks"`
	DecayRate       float64       `json:"decay_rate"`
	Components      int           `json:"components"`
	Running         bool          `json:"running"`
}

// MetricRequest тело POST /metrics
type MetricRequest struct {
	Name      string    `json:"name"`
	Value     *float64  `json:"value"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// TensionRequest тело POST /tension
type TensionRequest struct {
	ComponentID string   `json:"component_id"`
	Value       *float64 `json:"value"`
}
