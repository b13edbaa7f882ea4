package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tension-monitor/internal/models"
)

func redisAvailable(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "localhost:6379",
		DB:          15,
		DialTimeout: 100 * time.Millisecond,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func cleanupRedisKeys(t *testing.T, client *redis.Client, prefixes ...string) {
	t.Helper()
	ctx := context.Background()
	for _, prefix := range prefixes {
		var cursor uint64
		for {
			keys, next, err := client.Scan(ctx, cursor, prefix+"*", 100).Result()
			if err != nil {
				return
			}
			if len(keys) > 0 {
				client.Del(ctx, keys...)
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
	}
}

func newTestCache(t *testing.T) *RedisCache {
	t.Helper()
	client := redisAvailable(t)
	cleanupRedisKeys(t, client, "alert", "anomaly", "health:", "decay_health:")
	t.Cleanup(func() {
		cleanupRedisKeys(t, client, "alert", "anomaly", "health:", "decay_health:")
		client.Close()
	})

	c, err := newRedisCache(client, time.Minute, nil)
	require.NoError(t, err)
	return c
}

func TestRedisCache_AnomaliesNewestFirst(t *testing.T) {
	c := newTestCache(t)
	base := time.Now().Truncate(time.Millisecond)

	for i, id := range []string{"a1", "a2", "a3"} {
		require.NoError(t, c.StoreAnomaly(models.Anomaly{
			ID:        id,
			Metric:    "latency",
			Value:     float64(1000 + i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, c.StoreAnomaly(models.Anomaly{ID: "other", Metric: "cpu", Timestamp: base}))

	got, err := c.GetRecentAnomalies("latency", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a3", got[0].ID)
	assert.Equal(t, "a2", got[1].ID)

	none, err := c.GetRecentAnomalies("latency", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRedisCache_Alerts(t *testing.T) {
	c := newTestCache(t)
	now := time.Now()

	require.NoError(t, c.StoreAlert(models.Alert{ID: "x", Metric: "cpu", Value: 95, Threshold: 80, Severity: models.SeverityWarning, Timestamp: now}))

	got, err := c.GetRecentAlerts(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "cpu", got[0].Metric)
	assert.Equal(t, models.SeverityWarning, got[0].Severity)
}

func TestRedisCache_SinkIsAsync(t *testing.T) {
	c := newTestCache(t)

	c.OnAlert(models.Alert{ID: "async", Metric: "memory", Timestamp: time.Now()})
	require.Eventually(t, func() bool {
		got, err := c.GetRecentAlerts(1)
		return err == nil && len(got) == 1 && got[0].ID == "async"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRedisCache_HealthAndPing(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.Ping())
	require.NoError(t, c.StoreHealth(
		models.HealthReport{Score: 80, Status: models.StatusHealthy},
		models.SystemHealth{Score: 100, Status: models.StatusHealthy},
	))

	val, err := c.client.Get(context.Background(), healthKey).Result()
	require.NoError(t, err)
	assert.Contains(t, val, "healthy")
	assert.Contains(t, c.GetStats(), "total_conns")
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	_, err := newRedisCache(client, time.Minute, nil)
	assert.Error(t, err)
}
