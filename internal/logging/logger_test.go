package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}

func TestNew(t *testing.T) {
	l, err := New("warn")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestSetGlobal(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := Global()
	SetGlobal(zap.New(core))
	defer SetGlobal(prev)

	Warn("slow tick", zap.Int("components", 3))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "slow tick", logs.All()[0].Message)

	Named(nil, "decay").Info("started")
	assert.Equal(t, "decay", logs.All()[1].LoggerName)

	SetGlobal(nil)
	assert.NotNil(t, Global())
}
