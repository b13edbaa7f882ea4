package analytics

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"tension-monitor/internal/models"
	"tension-monitor/internal/stats"
)

const (
	// AnomalyWindow количество последних значений для rolling статистики
	AnomalyWindow = 30
	// MinSamples метрики с меньшим числом измерений пропускаются
	MinSamples = 10
	// AnomalyCapacity размер журнала аномалий
	AnomalyCapacity = 30
	// RecentAnomalies сколько аномалий возвращает Detect
	RecentAnomalies = 5

	DefaultZScoreThreshold = 2.5
	DefaultAnomalyDedup    = 60 * time.Second
)

// AnomalyDetector детектор аномалий по rolling average и z-score
type AnomalyDetector struct {
	anomalies []models.Anomaly
	lastSeen  map[string]time.Time
	mu        sync.RWMutex
	threshold float64
	dedup     time.Duration
	evaluated int64
}

// NewAnomalyDetector создает новый детектор
func NewAnomalyDetector(threshold float64, dedup time.Duration) *AnomalyDetector {
	if threshold <= 0 {
		threshold = DefaultZScoreThreshold
	}
	return &AnomalyDetector{
		anomalies: make([]models.Anomaly, 0, AnomalyCapacity),
		lastSeen:  make(map[string]time.Time),
		threshold: threshold,
		dedup:     dedup,
	}
}

// Configure меняет порог и окно подавления
func (d *AnomalyDetector) Configure(threshold float64, dedup time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.threshold = threshold
	d.dedup = dedup
}

// Detect проверяет все метрики хранилища на момент now.
// Возвращает последние RecentAnomalies аномалий и созданные этим вызовом.
func (d *AnomalyDetector) Detect(store *MetricStore, now time.Time) (recent, created []models.Anomaly) {
	for _, name := range store.Names() {
		if a, ok := d.evaluate(store, name, now); ok {
			created = append(created, a)
		}
	}
	return d.Recent(RecentAnomalies), created
}

// evaluate проверяет одну метрику
func (d *AnomalyDetector) evaluate(store *MetricStore, name string, now time.Time) (models.Anomaly, bool) {
	if store.Len(name) < MinSamples {
		return models.Anomaly{}, false
	}

	values := store.Window(name, AnomalyWindow)
	if len(values) < MinSamples {
		return models.Anomaly{}, false
	}
	latest := values[len(values)-1]

	// Вычисляем rolling average и стандартное отклонение
	mean := stats.Mean(values)
	stdDev := stats.StdDev(values, mean)
	zScore := stats.ZScore(latest, mean, stdDev)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.evaluated++
	if zScore <= d.threshold {
		return models.Anomaly{}, false
	}
	if last, ok := d.lastSeen[name]; ok && now.Sub(last) < d.dedup {
		return models.Anomaly{}, false
	}

	anomaly := models.Anomaly{
		ID:        uuid.NewString(),
		Metric:    name,
		Value:     latest,
		Mean:      mean,
		StdDev:    stdDev,
		ZScore:    zScore,
		Timestamp: now,
	}
	d.lastSeen[name] = now
	d.anomalies = append(d.anomalies, anomaly)
	if over := len(d.anomalies) - AnomalyCapacity; over > 0 {
		d.anomalies = d.anomalies[over:]
	}
	return anomaly, true
}

// Recent возвращает последние n аномалий, от старых к новым
func (d *AnomalyDetector) Recent(n int) []models.Anomaly {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if n > len(d.anomalies) {
		n = len(d.anomalies)
	}
	out := make([]models.Anomaly, n)
	copy(out, d.anomalies[len(d.anomalies)-n:])
	return out
}

// All возвращает весь журнал аномалий
func (d *AnomalyDetector) All() []models.Anomaly {
	return d.Recent(AnomalyCapacity)
}

// GetStats возвращает статистику детектора
func (d *AnomalyDetector) GetStats() map[string]interface{} {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return map[string]interface{}{
		"anomalies_held": len(d.anomalies),
		"evaluations":    d.evaluated,
		"threshold":      d.threshold,
		"window_size":    AnomalyWindow,
		"dedup_seconds":  d.dedup.Seconds(),
	}
}
