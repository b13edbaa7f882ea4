package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tension-monitor/internal/metrics"
)

// Start запускает таймер затухания и периодическую выгрузку в Prometheus.
// Повторный вызов ничего не делает.
func (m *Monitor) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.done != nil {
		if m.runCtx.Err() == nil {
			return
		}
		// родительский контекст отменен: дожидаемся старых задач и перезапускаем
		m.cancel()
		<-m.done
		m.engine.Stop()
	}

	ctx, cancel := context.WithCancel(ctx)
	m.runCtx = ctx
	m.cancel = cancel
	m.done = make(chan struct{})

	m.engine.Start(ctx)
	go m.exportLoop(ctx, m.done)
}

// Stop останавливает фоновые задачи; повторный вызов безопасен
func (m *Monitor) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel == nil {
		return
	}

	m.cancel()
	<-m.done
	m.engine.Stop()
	m.cancel = nil
	m.done = nil
	m.runCtx = nil
}

// exportLoop периодически обновляет gauge метрики
func (m *Monitor) exportLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.Config().ExportInterval())
	defer ticker.Stop()

	m.Export()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Export()
		}
	}
}

// Export записывает текущее состояние в Prometheus
func (m *Monitor) Export() {
	health := m.Health()
	system := m.SystemHealth()

	metrics.HealthScore.Set(health.Score)
	metrics.DecayHealthScore.Set(system.Score)
	metrics.TrackedMetrics.Set(float64(len(m.store.Names())))
	for _, c := range m.state.Components() {
		metrics.ComponentTension.WithLabelValues(c.ID).Set(c.Value)
	}

	m.logger.Debug("telemetry exported",
		zap.Float64("health_score", health.Score),
		zap.String("health_status", string(health.Status)),
		zap.Float64("decay_health_score", system.Score),
	)
}
