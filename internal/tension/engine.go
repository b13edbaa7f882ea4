package tension

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tension-monitor/internal/apperr"
	"tension-monitor/internal/config"
	"tension-monitor/internal/metrics"
	"tension-monitor/internal/models"
	"tension-monitor/internal/stats"
)

const (
	DefaultDecayRate    = 0.02
	DefaultTickInterval = 100 * time.Millisecond

	// NoiseFloor компоненты с напряжением не выше порога не затухают
	NoiseFloor = 0.01
	// ActivityWindow окно подсчета недавних событий для damping
	ActivityWindow = 5 * time.Second

	DampingStep = 0.1
	MinDamping  = 0.5
	MaxDamping  = 2.0

	ComponentHistory = 1024
	GlobalHistory    = 10000

	// SlowTick мягкий дедлайн тика
	SlowTick = 5 * time.Millisecond
	// MaxCatchUp верхняя граница прошедшего времени в интервалах тика
	MaxCatchUp = 4
)

// Damping множитель скорости затухания по числу недавних событий.
// Чем больше активность, тем ближе к MinDamping и медленнее затухание.
func Damping(eventCount int) float64 {
	return stats.Clamp(1-float64(eventCount)*DampingStep, MinDamping, MaxDamping)
}

// decayValue новое напряжение; никогда не меньше 0 и не больше t
func decayValue(t, rate, damping, factor float64) float64 {
	return math.Max(0, t*(1-rate*damping*factor))
}

// tickFactor доля интервала, прошедшая между тиками, после обрезки до [1ms, MaxCatchUp*interval]
func tickFactor(elapsed, interval time.Duration) float64 {
	if interval <= 0 {
		return 1
	}
	elapsed = stats.ClampDuration(elapsed, time.Millisecond, MaxCatchUp*interval)
	return float64(elapsed) / float64(interval)
}

// DecayFunc вычисляет новое напряжение компонента за тик
type DecayFunc func(id string, t, rate, damping, factor float64) float64

func defaultDecay(_ string, t, rate, damping, factor float64) float64 {
	return decayValue(t, rate, damping, factor)
}

// Engine периодически снижает напряжение компонентов
type Engine struct {
	state  *State
	logger *zap.Logger
	now    func() time.Time
	since  func(time.Time) time.Duration
	decay  DecayFunc

	rateBits atomic.Uint64
	interval atomic.Int64

	histMu  sync.RWMutex
	history map[string]*Ring[models.DecayEvent]
	global  *Ring[models.DecayEvent]

	statsMu     sync.Mutex
	ticks       int64
	avgTick     time.Duration
	peakTension float64
	slowTicks   int64

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine создает движок. Таймер не запускается до Start.
func NewEngine(state *State, logger *zap.Logger, now func() time.Time) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	e := &Engine{
		state:   state,
		logger:  logger,
		now:     now,
		since:   time.Since,
		decay:   defaultDecay,
		history: make(map[string]*Ring[models.DecayEvent]),
		global:  NewRing[models.DecayEvent](GlobalHistory),
	}
	e.rateBits.Store(math.Float64bits(DefaultDecayRate))
	e.interval.Store(int64(DefaultTickInterval))
	return e
}

// SetDecayRate меняет базовую скорость; действует со следующего тика
func (e *Engine) SetDecayRate(rate float64) error {
	if err := config.ValidateDecayRate(rate); err != nil {
		return err
	}
	e.rateBits.Store(math.Float64bits(rate))
	return nil
}

// DecayRate текущая базовая скорость
func (e *Engine) DecayRate() float64 {
	return math.Float64frombits(e.rateBits.Load())
}

// SetInterval меняет период тика
func (e *Engine) SetInterval(d time.Duration) error {
	if d <= 0 {
		return apperr.Config("tick_interval_ms", "must be positive, got %s", d)
	}
	e.interval.Store(int64(d))
	return nil
}

// Interval текущий период тика
func (e *Engine) Interval() time.Duration {
	return time.Duration(e.interval.Load())
}

// Start запускает таймер затухания; повторный вызов ничего не делает
func (e *Engine) Start(ctx context.Context) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.done != nil {
		select {
		case <-e.done:
			// цикл завершился по родительскому контексту, перезапускаем
			e.cancel()
		default:
			return
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.loop(ctx, e.done)

	e.logger.Info("decay engine started",
		zap.Duration("interval", e.Interval()),
		zap.Float64("decay_rate", e.DecayRate()),
	)
}

// Stop останавливает таймер и ждет завершения текущего тика
func (e *Engine) Stop() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.cancel == nil {
		return
	}

	e.cancel()
	<-e.done
	e.cancel = nil
	e.done = nil
	e.logger.Info("decay engine stopped")
}

// Running запущен ли таймер; false и после отмены родительского контекста
func (e *Engine) Running() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.done == nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(e.Interval())
	defer timer.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-timer.C:
			factor := tickFactor(now.Sub(last), e.Interval())
			last = now

			e.tick(factor)
			timer.Reset(e.Interval())
		}
	}
}

// Tick выполняет один логический тик длиной ровно в один интервал
func (e *Engine) Tick() int {
	return e.tick(1)
}

// tick затухание всех компонентов; factor масштабирует шаг по прошедшему времени.
// Ошибка одного компонента логируется и не прерывает тик.
func (e *Engine) tick(factor float64) int {
	start := time.Now()
	ts := e.now()
	rate := e.DecayRate()

	decayed := 0
	peak := 0.0
	for _, id := range e.state.IDs() {
		ev, ok, err := e.decayComponent(id, rate, factor, ts)
		if err != nil {
			e.logger.Error("decay component failed", zap.String("component", id), zap.Error(err))
			metrics.DecayComponentErrors.WithLabelValues(id).Inc()
			continue
		}
		if !ok {
			continue
		}
		decayed++
		peak = math.Max(peak, ev.Before)
		metrics.ComponentTension.WithLabelValues(id).Set(ev.After)
	}

	elapsed := e.since(start)
	slow := elapsed > SlowTick
	e.recordTick(elapsed, peak, slow)

	metrics.DecayTickDuration.Observe(elapsed.Seconds())
	if slow {
		metrics.SlowDecayTicks.Inc()
		e.logger.Warn("decay tick exceeded soft deadline",
			zap.Duration("elapsed", elapsed),
			zap.Duration("deadline", SlowTick),
			zap.Int("components", decayed),
		)
	}
	return decayed
}

func (e *Engine) decayComponent(id string, rate, factor float64, ts time.Time) (ev models.DecayEvent, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while decaying: %v", r)
		}
	}()

	damping := Damping(e.recentEvents(id, ts))
	before, after, changed, err := e.state.Apply(id, func(t float64) (float64, bool, error) {
		if !stats.IsFinite(t) {
			return t, false, fmt.Errorf("non-finite tension %v", t)
		}
		if t <= NoiseFloor {
			return t, false, nil
		}
		return e.decay(id, t, rate, damping, factor), true, nil
	})
	if err != nil || !changed {
		return models.DecayEvent{}, false, err
	}

	ev = e.record(id, before, after, ts)
	return ev, true, nil
}

// ForceDecay разовое затухание вне таймера с множителем factor вместо 1
func (e *Engine) ForceDecay(id string, factor float64) (models.ForceDecayResult, error) {
	if !stats.IsFinite(factor) || factor < 0 {
		return models.ForceDecayResult{}, apperr.Config("factor", "must be a non-negative number, got %v", factor)
	}

	ts := e.now()
	rate := e.DecayRate()
	damping := Damping(e.recentEvents(id, ts))

	before, after, _, err := e.state.Apply(id, func(t float64) (float64, bool, error) {
		if !stats.IsFinite(t) {
			return t, false, fmt.Errorf("non-finite tension %v", t)
		}
		return decayValue(t, rate, damping, factor), true, nil
	})
	if err != nil {
		return models.ForceDecayResult{}, err
	}

	e.record(id, before, after, ts)
	e.statsMu.Lock()
	e.peakTension = math.Max(e.peakTension, before)
	e.statsMu.Unlock()
	metrics.ComponentTension.WithLabelValues(id).Set(after)

	e.logger.Debug("forced decay",
		zap.String("component", id),
		zap.Float64("factor", factor),
		zap.Float64("before", before),
		zap.Float64("after", after),
	)
	return models.ForceDecayResult{Before: before, After: after, Reduction: before - after}, nil
}

// recentEvents число событий затухания компонента за ActivityWindow до now
func (e *Engine) recentEvents(id string, now time.Time) int {
	e.histMu.RLock()
	defer e.histMu.RUnlock()

	ring, ok := e.history[id]
	if !ok {
		return 0
	}
	cutoff := now.Add(-ActivityWindow)
	count := 0
	for ev := range ring.Backward() {
		if ev.Timestamp.Before(cutoff) {
			break
		}
		count++
	}
	return count
}

func (e *Engine) record(id string, before, after float64, ts time.Time) models.DecayEvent {
	ev := models.DecayEvent{
		ComponentID: id,
		Timestamp:   ts,
		Before:      before,
		After:       after,
		Delta:       before - after,
	}

	e.histMu.Lock()
	defer e.histMu.Unlock()

	ring, ok := e.history[id]
	if !ok {
		ring = NewRing[models.DecayEvent](ComponentHistory)
		e.history[id] = ring
	}
	ring.Push(ev)
	e.global.Push(ev)
	return ev
}

func (e *Engine) recordTick(elapsed time.Duration, peak float64, slow bool) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	e.ticks++
	e.avgTick += (elapsed - e.avgTick) / time.Duration(e.ticks)
	e.peakTension = math.Max(e.peakTension, peak)
	if slow {
		e.slowTicks++
	}
}

// History последние k событий компонента, от старых к новым
func (e *Engine) History(id string, k int) []models.DecayEvent {
	e.histMu.RLock()
	defer e.histMu.RUnlock()

	ring, ok := e.history[id]
	if !ok {
		return nil
	}
	return ring.Slice(k)
}

// GlobalHistory последние k событий всех компонентов
func (e *Engine) GlobalHistory(k int) []models.DecayEvent {
	e.histMu.RLock()
	defer e.histMu.RUnlock()
	return e.global.Slice(k)
}

// Stats счетчики движка
func (e *Engine) Stats() models.DecayStats {
	e.statsMu.Lock()
	st := models.DecayStats{
		Ticks:           e.ticks,
		AvgTickDuration: e.avgTick,
		PeakTension:     e.peakTension,
		SlowTicks:       e.slowTicks,
	}
	e.statsMu.Unlock()

	st.DecayRate = e.DecayRate()
	st.Components = e.state.Len()
	st.Running = e.Running()
	return st
}
