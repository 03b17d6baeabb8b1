package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitialize(t *testing.T) {
	err := Initialize(false)
	require.NoError(t, err)
	require.NotNil(t, Logger)
	assert.False(t, JSONOutput)

	err = Initialize(true)
	require.NoError(t, err)
	assert.True(t, JSONOutput)
}

func TestPackageFuncsSafeBeforeInitialize(t *testing.T) {
	// The no-op logger installed by init() must absorb calls without panicking
	saved := Logger
	defer func() { Logger = saved }()
	Logger = nil

	assert.NotPanics(t, func() {
		Info("hello")
		Infow("hello", FieldWikiID, "w1")
		Warnf("careful: %d", 1)
		Errorw("boom", FieldError, "nope")
		Debug("quiet")
	})
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(0))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(1))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(2))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(5))
}

func TestAbbreviateName(t *testing.T) {
	assert.Equal(t, "server", abbreviateName("server"))
	assert.Equal(t, "g.worker", abbreviateName("generator.worker"))
	assert.Equal(t, "a.openai", abbreviateName("ai.openai"))
}

func TestMinimalEncoderFormat(t *testing.T) {
	enc := newMinimalEncoder()

	entry := zapcore.Entry{
		Level:      zapcore.InfoLevel,
		Time:       time.Date(2026, 3, 1, 13, 4, 35, 0, time.UTC),
		LoggerName: "generator.worker",
		Message:    "Page generated",
	}
	fields := []zapcore.Field{
		{Key: "page", Type: zapcore.StringType, String: "overview_en"},
		{Key: "tokens", Type: zapcore.Int64Type, Integer: 812},
	}

	buf, err := enc.EncodeEntry(entry, fields)
	require.NoError(t, err)
	out := buf.String()

	assert.Contains(t, out, "13:04:35")
	assert.Contains(t, out, "g.worker")
	assert.Contains(t, out, "Page generated")
	assert.Contains(t, out, "overview_en")
	assert.Contains(t, out, "812")
	assert.NotContains(t, out, "INFO")
}

func TestComponentLogger(t *testing.T) {
	require.NoError(t, Initialize(true))
	l := ComponentLogger("registry")
	require.NotNil(t, l)

	child := ChildLogger(l, FieldProvider, "ollama")
	require.NotNil(t, child)
}
