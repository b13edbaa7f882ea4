package tension

import (
	"sort"
	"sync"
	"time"

	"tension-monitor/internal/apperr"
	"tension-monitor/internal/models"
	"tension-monitor/internal/stats"
)

// DefaultPropagationLogLimit ограничение журнала сырых событий
const DefaultPropagationLogLimit = 10000

// State хранит напряжение компонентов в диапазоне [0,1].
// Компонент создается при первом Set и живет до конца процесса.
type State struct {
	values   map[string]float64
	log      []models.TensionEvent
	logLimit int
	now      func() time.Time
	mu       sync.RWMutex
}

// NewState создает хранилище; now может быть nil
func NewState(logLimit int, now func() time.Time) *State {
	if logLimit <= 0 {
		logLimit = DefaultPropagationLogLimit
	}
	if now == nil {
		now = time.Now
	}
	return &State{
		values:   make(map[string]float64),
		logLimit: logLimit,
		now:      now,
	}
}

// SetLogLimit меняет ограничение журнала событий
func (s *State) SetLogLimit(limit int) {
	if limit <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logLimit = limit
	s.trimLogLocked()
}

// Set записывает значение, обрезанное до [0,1], и добавляет событие в журнал
func (s *State) Set(id string, value float64) models.TensionEvent {
	stored := stats.Clamp(value, 0, 1)
	ev := models.TensionEvent{
		ComponentID: id,
		Raw:         value,
		Stored:      stored,
		Timestamp:   s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[id] = stored
	s.log = append(s.log, ev)
	s.trimLogLocked()
	return ev
}

func (s *State) trimLogLocked() {
	if over := len(s.log) - s.logLimit; over > 0 {
		s.log = s.log[over:]
	}
}

// Get возвращает напряжение компонента или NotFoundError
func (s *State) Get(id string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[id]
	if !ok {
		return 0, apperr.NotFound("component", id)
	}
	return v, nil
}

// UpdateFunc вычисляет новое значение по текущему; changed=false оставляет значение как есть
type UpdateFunc func(current float64) (next float64, changed bool, err error)

// Apply атомарно применяет fn к значению компонента
func (s *State) Apply(id string, fn UpdateFunc) (before, after float64, changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, ok := s.values[id]
	if !ok {
		return 0, 0, false, apperr.NotFound("component", id)
	}
	next, changed, err := fn(before)
	if err != nil || !changed {
		return before, before, false, err
	}
	after = stats.Clamp(next, 0, 1)
	s.values[id] = after
	return before, after, true, nil
}

// IDs идентификаторы компонентов в алфавитном порядке
func (s *State) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.values))
	for id := range s.values {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Values копия значений всех компонентов
func (s *State) Values() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]float64, len(s.values))
	for id, v := range s.values {
		out[id] = v
	}
	return out
}

// Components значения с вычисленной полосой
func (s *State) Components() []models.ComponentTension {
	values := s.Values()
	out := make([]models.ComponentTension, 0, len(values))
	for _, id := range s.IDs() {
		v, ok := values[id]
		if !ok {
			continue
		}
		out = append(out, models.ComponentTension{ID: id, Value: v, Band: Band(v)})
	}
	return out
}

// Len количество компонентов
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Log копия журнала событий
func (s *State) Log() []models.TensionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.TensionEvent, len(s.log))
	copy(out, s.log)
	return out
}

// Band полоса напряжения; хранится только число, полоса вычисляется при чтении
func Band(v float64) models.TensionBand {
	switch {
	case v >= 0.85:
		return models.BandCritical
	case v >= 0.6:
		return models.BandHigh
	case v >= 0.3:
		return models.BandMedium
	default:
		return models.BandLow
	}
}
