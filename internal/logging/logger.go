package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger = zap.NewNop()
	globalMu     sync.RWMutex
)

// New создает zap логгер по строке уровня
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))

	return cfg.Build()
}

// ParseLevel переводит строку в уровень; неизвестные значения дают info
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Global возвращает глобальный логгер
func Global() *zap.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// SetGlobal устанавливает глобальный логгер
func SetGlobal(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// Named возвращает дочерний логгер подсистемы; nil заменяется глобальным
func Named(l *zap.Logger, name string) *zap.Logger {
	if l == nil {
		l = Global()
	}
	return l.Named(name)
}

// Info пишет в глобальный логгер
func Info(msg string, fields ...zap.Field) {
	Global().Info(msg, fields...)
}

// Warn пишет в глобальный логгер
func Warn(msg string, fields ...zap.Field) {
	Global().Warn(msg, fields...)
}

// Error пишет в глобальный логгер
func Error(msg string, fields ...zap.Field) {
	Global().Error(msg, fields...)
}

// Sync сбрасывает буферы
func Sync() {
	_ = Global().Sync()
}
