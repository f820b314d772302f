package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// newObservedLogger builds a Logger over an in-memory core so tests can
// inspect what was written.
func newObservedLogger(level zapcore.Level, redact []string) (*Logger, *observer.ObservedLogs) {
	core, observed := observer.New(level)
	return &Logger{zap: zap.New(newScrubCore(core, redact))}, observed
}

func TestNewLogger_Defaults(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Underlying())
	assert.NoError(t, logger.Sync())
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"

	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestNewLogger_OTELOnlyWithoutProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false
	cfg.Output.OTEL = true

	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no log output available")
}

func TestLogger_ContextFieldInjection(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.DebugLevel, nil)

	ctx := WithStage(context.Background(), "pattern-analysis")
	ctx = WithErrorID(ctx, "err_123")
	ctx = WithRequestID(ctx, "req_456")

	logger.Info(ctx, "window aggregated", zap.Int("patterns", 3))

	entries := observed.All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "pattern-analysis", fields["stage"])
	assert.Equal(t, "err_123", fields["error.id"])
	assert.Equal(t, "req_456", fields["request.id"])
	assert.Equal(t, int64(3), fields["patterns"])
}

func TestLogger_LevelsRouteToCore(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.DebugLevel, nil)
	ctx := context.Background()

	logger.Debug(ctx, "d")
	logger.Info(ctx, "i")
	logger.Warn(ctx, "w")
	logger.Error(ctx, "e")

	entries := observed.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}

func TestLogger_WithAndNamed(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.InfoLevel, nil)

	child := logger.With(zap.String("component", "trends")).Named("pipeline")
	child.Info(context.Background(), "run complete")

	// The parent is unaffected by child fields.
	logger.Info(context.Background(), "parent entry")

	entries := observed.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "pipeline", entries[0].LoggerName)
	assert.Equal(t, "trends", entries[0].ContextMap()["component"])
	assert.NotContains(t, entries[1].ContextMap(), "component")
}
