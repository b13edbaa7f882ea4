package analytics

import (
	"sort"
	"sync"
	"time"

	"tension-monitor/internal/models"
)

// DefaultSeriesCapacity размер окна метрики по умолчанию
const DefaultSeriesCapacity = 60

// MetricSeries хранит скользящее окно измерений одной метрики
type MetricSeries struct {
	samples []models.MetricSample
	mu      sync.RWMutex
	maxSize int
}

func newMetricSeries(maxSize int) *MetricSeries {
	return &MetricSeries{
		samples: make([]models.MetricSample, 0, maxSize),
		maxSize: maxSize,
	}
}

func (s *MetricSeries) add(sample models.MetricSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, sample)
	s.trimLocked()
}

func (s *MetricSeries) resize(maxSize int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maxSize = maxSize
	s.trimLocked()
}

// trimLocked удаляет самые старые измерения сверх емкости
func (s *MetricSeries) trimLocked() {
	if over := len(s.samples) - s.maxSize; over > 0 {
		s.samples = s.samples[over:]
	}
}

func (s *MetricSeries) latest() (models.MetricSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.samples) == 0 {
		return models.MetricSample{}, false
	}
	return s.samples[len(s.samples)-1], true
}

func (s *MetricSeries) window(n int) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n > len(s.samples) {
		n = len(s.samples)
	}
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	for i, sample := range s.samples[len(s.samples)-n:] {
		out[i] = sample.Value
	}
	return out
}

func (s *MetricSeries) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// MetricStore набор окон по имени метрики
type MetricStore struct {
	series   map[string]*MetricSeries
	mu       sync.RWMutex
	capacity int
}

// NewMetricStore создает хранилище с заданной емкостью окна
func NewMetricStore(capacity int) *MetricStore {
	if capacity <= 0 {
		capacity = DefaultSeriesCapacity
	}
	return &MetricStore{
		series:   make(map[string]*MetricSeries),
		capacity: capacity,
	}
}

// SetCapacity меняет емкость окна, в том числе для существующих метрик
func (m *MetricStore) SetCapacity(capacity int) {
	if capacity <= 0 {
		return
	}
	m.mu.Lock()
	m.capacity = capacity
	all := make([]*MetricSeries, 0, len(m.series))
	for _, s := range m.series {
		all = append(all, s)
	}
	m.mu.Unlock()

	for _, s := range all {
		s.resize(capacity)
	}
}

// AddSample добавляет измерение; нулевой timestamp заменяется текущим временем
func (m *MetricStore) AddSample(name string, value float64, ts time.Time) {
	if ts.IsZero() {
		ts = time.Now()
	}

	m.mu.Lock()
	s, ok := m.series[name]
	if !ok {
		s = newMetricSeries(m.capacity)
		m.series[name] = s
	}
	m.mu.Unlock()

	s.add(models.MetricSample{Value: value, Timestamp: ts})
}

func (m *MetricStore) get(name string) (*MetricSeries, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.series[name]
	return s, ok
}

// Latest возвращает последнее измерение метрики
func (m *MetricStore) Latest(name string) (models.MetricSample, bool) {
	s, ok := m.get(name)
	if !ok {
		return models.MetricSample{}, false
	}
	return s.latest()
}

// Window возвращает последние n значений, от старых к новым
func (m *MetricStore) Window(name string, n int) []float64 {
	s, ok := m.get(name)
	if !ok {
		return nil
	}
	return s.window(n)
}

// Len количество измерений метрики
func (m *MetricStore) Len(name string) int {
	s, ok := m.get(name)
	if !ok {
		return 0
	}
	return s.size()
}

// Names имена метрик в алфавитном порядке
func (m *MetricStore) Names() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.series))
	for name := range m.series {
		names = append(names, name)
	}
	m.mu.RUnlock()

	sort.Strings(names)
	return names
}

// LatestValues последние значения всех метрик
func (m *MetricStore) LatestValues() map[string]float64 {
	out := make(map[string]float64)
	for _, name := range m.Names() {
		if sample, ok := m.Latest(name); ok {
			out[name] = sample.Value
		}
	}
	return out
}

// Summaries сводка по всем метрикам
func (m *MetricStore) Summaries() map[string]models.MetricSummary {
	out := make(map[string]models.MetricSummary)
	for _, name := range m.Names() {
		s, ok := m.get(name)
		if !ok {
			continue
		}
		sample, ok := s.latest()
		if !ok {
			continue
		}
		out[name] = models.MetricSummary{
			Latest:    sample.Value,
			Timestamp: sample.Timestamp,
			Samples:   s.size(),
		}
	}
	return out
}
