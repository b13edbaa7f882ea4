package tension

import (
	"fmt"

	"tension-monitor/internal/models"
	"tension-monitor/internal/stats"
)

const (
	// AnalyticsWindow сколько последних событий учитывается в аналитике
	AnalyticsWindow = 100
	// TrendTolerance минимальная разница средних для смены тренда
	TrendTolerance = 0.01
)

// Analytics аналитика затухания по компонентам с минимум двумя событиями
func (e *Engine) Analytics() map[string]models.ComponentAnalytics {
	values := e.state.Values()

	e.histMu.RLock()
	windows := make(map[string][]models.DecayEvent, len(e.history))
	for id, ring := range e.history {
		if ring.Len() < 2 {
			continue
		}
		windows[id] = ring.Slice(AnalyticsWindow)
	}
	e.histMu.RUnlock()

	out := make(map[string]models.ComponentAnalytics, len(windows))
	for id, events := range windows {
		deltas := make([]float64, len(events))
		afters := make([]float64, len(events))
		for i, ev := range events {
			deltas[i] = ev.Delta
			afters[i] = ev.After
		}

		avg := stats.Mean(deltas)
		out[id] = models.ComponentAnalytics{
			AverageDecay:   avg,
			Volatility:     stats.StdDev(deltas, avg),
			Trend:          trend(afters),
			CurrentTension: values[id],
		}
	}
	return out
}

// trend сравнивает среднее After второй половины окна с первой
func trend(afters []float64) models.Trend {
	half := len(afters) / 2
	if half == 0 {
		return models.TrendStable
	}
	first := stats.Mean(afters[:half])
	second := stats.Mean(afters[half:])

	switch {
	case second-first > TrendTolerance:
		return models.TrendIncreasing
	case first-second > TrendTolerance:
		return models.TrendDecreasing
	default:
		return models.TrendStable
	}
}

// SystemHealth агрегированная оценка подсистемы затухания.
// Компоненты без истории учитываются по текущему значению с нулевой волатильностью.
func (e *Engine) SystemHealth() models.SystemHealth {
	values := e.state.Values()
	if len(values) == 0 {
		return models.SystemHealth{
			Status: models.StatusUnknown,
			Score:  0,
			Issues: []string{"No components found"},
		}
	}

	analytics := e.Analytics()

	var tensionSum, volatilitySum float64
	increasing := 0
	for id, v := range values {
		tensionSum += v
		if a, ok := analytics[id]; ok {
			volatilitySum += a.Volatility
			if a.Trend == models.TrendIncreasing {
				increasing++
			}
		}
	}
	n := float64(len(values))
	avgTension := tensionSum / n
	avgVolatility := volatilitySum / n

	status := models.StatusHealthy
	score := 100.0
	issues := []string{}

	if avgTension > 0.7 {
		status = models.StatusCritical
		score -= 40
		issues = append(issues, fmt.Sprintf("Critical average tension: %.2f", avgTension))
	} else if avgTension > 0.5 {
		status = models.StatusWarning
		score -= 20
		issues = append(issues, fmt.Sprintf("Elevated average tension: %.2f", avgTension))
	}

	if avgVolatility > 0.1 {
		switch status {
		case models.StatusWarning:
			status = models.StatusCritical
		case models.StatusHealthy:
			status = models.StatusWarning
		}
		score -= 15
		issues = append(issues, fmt.Sprintf("High decay volatility: %.3f", avgVolatility))
	}

	if float64(increasing) > n/2 {
		status = models.StatusCritical
		score -= 25
		issues = append(issues, fmt.Sprintf("%d of %d components trending upward", increasing, len(values)))
	}

	if score < 0 {
		score = 0
	}
	return models.SystemHealth{
		Status:        status,
		Score:         score,
		Issues:        issues,
		AvgTension:    avgTension,
		AvgVolatility: avgVolatility,
		Components:    len(values),
	}
}
