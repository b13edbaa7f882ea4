package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tension-monitor/internal/metrics"
	"tension-monitor/internal/models"
)

const opTimeout = 2 * time.Second

// RedisCache зеркалирует алерты, аномалии и оценки здоровья в Redis
type RedisCache struct {
	client *redis.Client
	ctx    context.Context
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache создает новый Redis кэш
func NewRedisCache(addr, password string, db int, ttl time.Duration, logger *zap.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	return newRedisCache(client, ttl, logger)
}

func newRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) (*RedisCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	ctx := context.Background()

	// Проверяем подключение
	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{
		client: client,
		ctx:    ctx,
		ttl:    ttl,
		logger: logger,
	}, nil
}

func anomalyKey(metric string, ts time.Time, id string) string {
	return fmt.Sprintf("anomaly:%s:%d:%s", metric, ts.UnixMilli(), id)
}

func anomalyListKey(metric string) string {
	return fmt.Sprintf("anomaly_list:%s", metric)
}

func alertKey(metric string, ts time.Time, id string) string {
	return fmt.Sprintf("alert:%s:%d:%s", metric, ts.UnixMilli(), id)
}

const (
	alertListKey   = "alert_list"
	healthKey      = "health:latest"
	decayHealthKey = "decay_health:latest"
)

// storeIndexed сохраняет JSON значение и добавляет ключ в sorted set по времени
func (r *RedisCache) storeIndexed(key, listKey string, ts time.Time, data interface{}, ttl time.Duration) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	ctx, cancel := context.WithTimeout(r.ctx, opTimeout)
	defer cancel()

	pipe := r.client.Pipeline()
	pipe.Set(ctx, key, jsonData, ttl)
	pipe.ZAdd(ctx, listKey, redis.Z{Score: float64(ts.UnixMilli()), Member: key})
	pipe.Expire(ctx, listKey, ttl)

	_, err = pipe.Exec(ctx)
	return err
}

// StoreAnomaly сохраняет аномалию (с более длительным TTL)
func (r *RedisCache) StoreAnomaly(a models.Anomaly) error {
	return r.storeIndexed(anomalyKey(a.Metric, a.Timestamp, a.ID), anomalyListKey(a.Metric), a.Timestamp, a, r.ttl*24)
}

// StoreAlert сохраняет алерт
func (r *RedisCache) StoreAlert(a models.Alert) error {
	return r.storeIndexed(alertKey(a.Metric, a.Timestamp, a.ID), alertListKey, a.Timestamp, a, r.ttl)
}

// StoreHealth сохраняет последние оценки здоровья
func (r *RedisCache) StoreHealth(health models.HealthReport, decay models.SystemHealth) error {
	healthJSON, err := json.Marshal(health)
	if err != nil {
		return fmt.Errorf("failed to marshal health: %w", err)
	}
	decayJSON, err := json.Marshal(decay)
	if err != nil {
		return fmt.Errorf("failed to marshal decay health: %w", err)
	}

	ctx, cancel := context.WithTimeout(r.ctx, opTimeout)
	defer cancel()

	pipe := r.client.Pipeline()
	pipe.Set(ctx, healthKey, healthJSON, r.ttl)
	pipe.Set(ctx, decayHealthKey, decayJSON, r.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// recent читает последние limit значений по индексу
func (r *RedisCache) recent(listKey string, limit int) ([][]byte, error) {
	if limit <= 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(r.ctx, opTimeout)
	defer cancel()

	keys, err := r.client.ZRevRange(ctx, listKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", listKey, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", listKey, err)
	}

	out := make([][]byte, 0, len(values))
	for _, v := range values {
		// ключ мог истечь раньше индекса
		s, ok := v.(string)
		if !ok {
			continue
		}
		out = append(out, []byte(s))
	}
	return out, nil
}

// GetRecentAnomalies последние аномалии метрики, от новых к старым
func (r *RedisCache) GetRecentAnomalies(metric string, limit int) ([]models.Anomaly, error) {
	raw, err := r.recent(anomalyListKey(metric), limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.Anomaly, 0, len(raw))
	for _, data := range raw {
		var a models.Anomaly
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("failed to decode anomaly: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

// GetRecentAlerts последние алерты, от новых к старым
func (r *RedisCache) GetRecentAlerts(limit int) ([]models.Alert, error) {
	raw, err := r.recent(alertListKey, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.Alert, 0, len(raw))
	for _, data := range raw {
		var a models.Alert
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("failed to decode alert: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

// OnAlert сохраняет алерт асинхронно, не блокируя ядро
func (r *RedisCache) OnAlert(a models.Alert) {
	go r.track("store_alert", func() error { return r.StoreAlert(a) })
}

// OnAnomaly сохраняет аномалию асинхронно
func (r *RedisCache) OnAnomaly(a models.Anomaly) {
	go r.track("store_anomaly", func() error { return r.StoreAnomaly(a) })
}

func (r *RedisCache) track(op string, fn func() error) {
	if err := fn(); err != nil {
		metrics.RedisOperations.WithLabelValues(op, "error").Inc()
		r.logger.Warn("redis operation failed", zap.String("operation", op), zap.Error(err))
		return
	}
	metrics.RedisOperations.WithLabelValues(op, "success").Inc()
}

// Close закрывает соединение с Redis
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// Ping проверяет доступность Redis
func (r *RedisCache) Ping() error {
	ctx, cancel := context.WithTimeout(r.ctx, opTimeout)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

// GetStats возвращает статистику Redis
func (r *RedisCache) GetStats() map[string]interface{} {
	stats := r.client.PoolStats()

	return map[string]interface{}{
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"stale_conns": stats.StaleConns,
	}
}
