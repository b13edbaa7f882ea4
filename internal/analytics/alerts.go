package analytics

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tension-monitor/internal/config"
	"tension-monitor/internal/models"
)

const (
	// AlertCapacity размер журнала алертов
	AlertCapacity = 50
	// CriticalFactor значение выше threshold*CriticalFactor дает critical
	CriticalFactor = 1.2

	DefaultAlertDedup = 30 * time.Second
)

// Имена метрик, которые читает HealthScorer
const (
	MetricCPU       = "cpu"
	MetricMemory    = "memory"
	MetricLatency   = "latency"
	MetricErrorRate = "errorRate"
)

var thresholdMetrics = map[string]string{
	config.ThresholdCPU:       MetricCPU,
	config.ThresholdMemory:    MetricMemory,
	config.ThresholdLatency:   MetricLatency,
	config.ThresholdErrorRate: MetricErrorRate,
}

// MetricForThreshold возвращает имя метрики для ключа порога.
// Неизвестный ключ считается именем метрики.
func MetricForThreshold(key string) string {
	if metric, ok := thresholdMetrics[key]; ok {
		return metric
	}
	return key
}

// AlertManager создает алерты при превышении порогов
type AlertManager struct {
	alerts    []models.Alert
	lastAlert map[string]time.Time
	mu        sync.RWMutex
	dedup     time.Duration
}

// NewAlertManager создает менеджер алертов
func NewAlertManager(dedup time.Duration) *AlertManager {
	return &AlertManager{
		alerts:    make([]models.Alert, 0, AlertCapacity),
		lastAlert: make(map[string]time.Time),
		dedup:     dedup,
	}
}

// SetDedup меняет окно подавления
func (m *AlertManager) SetDedup(dedup time.Duration) {
	m.mu.Lock()
	m.dedup = dedup
	m.mu.Unlock()
}

// CheckThresholds сравнивает последние значения с порогами и возвращает созданные алерты
func (m *AlertManager) CheckThresholds(latest, thresholds map[string]float64, now time.Time) []models.Alert {
	keys := make([]string, 0, len(thresholds))
	for k := range thresholds {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	m.mu.Lock()
	defer m.mu.Unlock()

	var created []models.Alert
	// cpu и cpuPercent указывают на одну метрику; за вызов не больше одного алерта
	fired := make(map[string]bool)
	for _, key := range keys {
		threshold := thresholds[key]
		metric := MetricForThreshold(key)
		value, ok := latest[metric]
		if !ok || value <= threshold || fired[metric] {
			continue
		}
		if last, seen := m.lastAlert[metric]; seen && now.Sub(last) < m.dedup {
			continue
		}

		severity := models.SeverityWarning
		if value > threshold*CriticalFactor {
			severity = models.SeverityCritical
		}
		alert := models.Alert{
			ID:        uuid.NewString(),
			Metric:    metric,
			Value:     value,
			Threshold: threshold,
			Severity:  severity,
			Timestamp: now,
		}
		m.lastAlert[metric] = now
		fired[metric] = true
		m.alerts = append(m.alerts, alert)
		created = append(created, alert)
	}

	if over := len(m.alerts) - AlertCapacity; over > 0 {
		m.alerts = m.alerts[over:]
	}
	return created
}

// CountSince количество алертов с отметкой времени не раньше since
func (m *AlertManager) CountSince(since time.Time) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, a := range m.alerts {
		if !a.Timestamp.Before(since) {
			count++
		}
	}
	return count
}

// Alerts возвращает копию журнала алертов
func (m *AlertManager) Alerts() []models.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}
