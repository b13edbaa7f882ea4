package stats

import "math"

// Mean вычисляет среднее значение
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev вычисляет стандартное отклонение генеральной совокупности
func StdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))

	return math.Sqrt(variance)
}

// ZScore возвращает |value - mean| / stddev; при нулевом stddev результат 0
func ZScore(value, mean, stddev float64) float64 {
	if stddev <= 0 || math.IsNaN(stddev) {
		return 0
	}
	return math.Abs(value-mean) / stddev
}

// Clamp ограничивает значение диапазоном [lo, hi]. NaN сводится к lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampDuration ограничивает длительность диапазоном [lo, hi]
func ClampDuration[T ~int64](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// IsFinite проверяет, что значение не NaN и не бесконечность
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
