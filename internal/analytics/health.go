package analytics

import (
	"math"
	"time"

	"tension-monitor/internal/config"
	"tension-monitor/internal/models"
	"tension-monitor/internal/stats"
)

// AlertWindow алерты за это время снижают оценку здоровья
const AlertWindow = 60 * time.Second

// HealthInputs входные данные HealthScorer
type HealthInputs struct {
	Latest       map[string]float64
	Thresholds   map[string]float64
	RecentAlerts int
}

// ScoreHealth вычисляет композитную оценку здоровья.
// Отсутствующая метрика или порог дают нулевой вклад.
func ScoreHealth(in HealthInputs) models.HealthReport {
	cpu := impact(in, MetricCPU, config.ThresholdCPU, 20, 30)
	mem := impact(in, MetricMemory, config.ThresholdMemory, 25, 35)
	lat := impact(in, MetricLatency, config.ThresholdLatency, 15, 20)

	errImpact := 0.0
	if rate := in.Latest[MetricErrorRate]; rate > 0 {
		errImpact = math.Min(rate*3, 15)
	}
	alertImpact := float64(in.RecentAlerts) * 2

	score := stats.Clamp(100-(cpu+mem+lat+errImpact+alertImpact), 0, 100)
	return models.HealthReport{
		Score:  score,
		Status: StatusForScore(score),
		Factors: map[string]float64{
			"cpu":     cpu,
			"memory":  mem,
			"latency": lat,
			"errors":  errImpact,
			"alerts":  alertImpact,
		},
	}
}

func impact(in HealthInputs, metric, thresholdKey string, weight, ceiling float64) float64 {
	value, ok := in.Latest[metric]
	if !ok || !stats.IsFinite(value) || value <= 0 {
		return 0
	}
	threshold, ok := in.Thresholds[thresholdKey]
	if !ok || threshold <= 0 {
		return 0
	}
	return math.Min(value/threshold*weight, ceiling)
}

// StatusForScore полоса статуса для оценки
func StatusForScore(score float64) models.HealthStatus {
	switch {
	case score >= 90:
		return models.StatusExcellent
	case score >= 75:
		return models.StatusHealthy
	case score >= 50:
		return models.StatusDegraded
	case score >= 25:
		return models.StatusWarning
	default:
		return models.StatusCritical
	}
}
