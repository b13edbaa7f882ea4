package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"tension-monitor/internal/apperr"
	"tension-monitor/internal/stats"
)

// Ключи порогов, которые понимает HealthScorer
const (
	ThresholdCPU       = "cpuPercent"
	ThresholdMemory    = "memoryMB"
	ThresholdLatency   = "latencyMs"
	ThresholdErrorRate = "errorRate"
)

// Config конфигурация приложения
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig настройки HTTP сервера
type ServerConfig struct {
	Port string `yaml:"port"`
}

// RedisConfig настройки зеркалирования событий в Redis
type RedisConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db"`
	RetentionHours int    `yaml:"retention_hours"`
}

// Retention время жизни ключей
func (c RedisConfig) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

// LogConfig настройки логирования
type LogConfig struct {
	Level string `yaml:"level"`
}

// TelemetryConfig настройки ядра телеметрии и затухания.
// Проверяется целиком в Validate; значения вне диапазона отклоняются, а не обрезаются.
type TelemetryConfig struct {
	// Thresholds пороги алертов; ключ либо один из Threshold*, либо имя метрики
	Thresholds map[string]float64 `yaml:"thresholds"`
	// DecayRate базовая скорость затухания за тик, [0,1]
	DecayRate float64 `yaml:"decay_rate"`
	// TickIntervalMs период тика затухания
	TickIntervalMs int `yaml:"tick_interval_ms"`
	// AnomalyZScoreThreshold порог z-score для аномалий
	AnomalyZScoreThreshold float64 `yaml:"anomaly_zscore_threshold"`
	AlertDedupMs           int     `yaml:"alert_dedup_ms"`
	AnomalyDedupMs         int     `yaml:"anomaly_dedup_ms"`
	// SeriesCapacity размер скользящего окна каждой метрики
	SeriesCapacity int `yaml:"series_capacity"`
	// PropagationLogLimit ограничение журнала сырых событий напряжения
	PropagationLogLimit int `yaml:"propagation_log_limit"`
	// ExportIntervalMs период выгрузки состояния в Prometheus
	ExportIntervalMs int `yaml:"export_interval_ms"`
}

// Default возвращает конфигурацию по умолчанию
func Default() Config {
	return Config{
		Server: ServerConfig{Port: "8080"},
		Redis: RedisConfig{
			Addr:           "localhost:6379",
			RetentionHours: 1,
		},
		Log:       LogConfig{Level: "info"},
		Telemetry: DefaultTelemetry(),
	}
}

// DefaultTelemetry возвращает настройки ядра по умолчанию
func DefaultTelemetry() TelemetryConfig {
	return TelemetryConfig{
		Thresholds: map[string]float64{
			ThresholdCPU:       80,
			ThresholdMemory:    512,
			ThresholdLatency:   1000,
			ThresholdErrorRate: 5,
		},
		DecayRate:              0.02,
		TickIntervalMs:         100,
		AnomalyZScoreThreshold: 2.5,
		AlertDedupMs:           30000,
		AnomalyDedupMs:         60000,
		SeriesCapacity:         60,
		PropagationLogLimit:    10000,
		ExportIntervalMs:       5000,
	}
}

// TickInterval период тика затухания
func (c TelemetryConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// AlertDedup окно подавления повторных алертов
func (c TelemetryConfig) AlertDedup() time.Duration {
	return time.Duration(c.AlertDedupMs) * time.Millisecond
}

// AnomalyDedup окно подавления повторных аномалий
func (c TelemetryConfig) AnomalyDedup() time.Duration {
	return time.Duration(c.AnomalyDedupMs) * time.Millisecond
}

// ExportInterval период выгрузки метрик
func (c TelemetryConfig) ExportInterval() time.Duration {
	return time.Duration(c.ExportIntervalMs) * time.Millisecond
}

// Clone возвращает копию с собственной картой порогов
func (c TelemetryConfig) Clone() TelemetryConfig {
	cp := c
	cp.Thresholds = make(map[string]float64, len(c.Thresholds))
	for k, v := range c.Thresholds {
		cp.Thresholds[k] = v
	}
	return cp
}

// Validate проверяет настройки и возвращает *apperr.ConfigurationError
func (c TelemetryConfig) Validate() error {
	for name, v := range c.Thresholds {
		if name == "" {
			return apperr.Config("thresholds", "empty metric name")
		}
		if !stats.IsFinite(v) || v <= 0 {
			return apperr.Config("thresholds."+name, "must be a positive number, got %v", v)
		}
	}
	if err := ValidateDecayRate(c.DecayRate); err != nil {
		return err
	}
	if c.TickIntervalMs <= 0 {
		return apperr.Config("tick_interval_ms", "must be positive, got %d", c.TickIntervalMs)
	}
	if !stats.IsFinite(c.AnomalyZScoreThreshold) || c.AnomalyZScoreThreshold <= 0 {
		return apperr.Config("anomaly_zscore_threshold", "must be a positive number, got %v", c.AnomalyZScoreThreshold)
	}
	if c.AlertDedupMs < 0 {
		return apperr.Config("alert_dedup_ms", "must not be negative, got %d", c.AlertDedupMs)
	}
	if c.AnomalyDedupMs < 0 {
		return apperr.Config("anomaly_dedup_ms", "must not be negative, got %d", c.AnomalyDedupMs)
	}
	if c.SeriesCapacity <= 0 {
		return apperr.Config("series_capacity", "must be positive, got %d", c.SeriesCapacity)
	}
	if c.PropagationLogLimit <= 0 {
		return apperr.Config("propagation_log_limit", "must be positive, got %d", c.PropagationLogLimit)
	}
	if c.ExportIntervalMs <= 0 {
		return apperr.Config("export_interval_ms", "must be positive, got %d", c.ExportIntervalMs)
	}
	return nil
}

// ValidateDecayRate проверяет 0 <= rate <= 1
func ValidateDecayRate(rate float64) error {
	if !stats.IsFinite(rate) || rate < 0 || rate > 1 {
		return apperr.Config("decay_rate", "must be within [0,1], got %v", rate)
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load загружает конфигурацию: значения по умолчанию < YAML файл < environment
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Telemetry.Validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Parse разбирает YAML поверх уже заполненной конфигурации
func Parse(data []byte, cfg *Config) error {
	expanded := envPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})

	// Пороги из файла заменяют пороги по умолчанию целиком
	var probe struct {
		Telemetry struct {
			Thresholds map[string]float64 `yaml:"thresholds"`
		} `yaml:"telemetry"`
	}
	if err := yaml.Unmarshal([]byte(expanded), &probe); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	if probe.Telemetry.Thresholds != nil {
		cfg.Telemetry.Thresholds = nil
	}

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("SERVER_PORT", cfg.Server.Port)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.RetentionHours = getEnvAsInt("METRICS_RETENTION_HOURS", cfg.Redis.RetentionHours)
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Telemetry.DecayRate = getEnvAsFloat("DECAY_RATE", cfg.Telemetry.DecayRate)
	cfg.Telemetry.TickIntervalMs = getEnvAsInt("TICK_INTERVAL_MS", cfg.Telemetry.TickIntervalMs)
	cfg.Telemetry.AnomalyZScoreThreshold = getEnvAsFloat("ANOMALY_THRESHOLD", cfg.Telemetry.AnomalyZScoreThreshold)
}

// getEnv получает environment variable или возвращает default
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt получает environment variable как int
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat получает environment variable как float64
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
