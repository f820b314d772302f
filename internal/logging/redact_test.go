package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestScrub_SensitiveKeysReplaced(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.InfoLevel, DefaultRedactKeys())

	logger.Info(context.Background(), "auth configured",
		zap.String("api_key", "sk-live-12345"),
		zap.String("endpoint", "https://api.openai.com"),
	)

	entries := observed.All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, redactedPlaceholder, fields["api_key"])
	assert.Equal(t, "https://api.openai.com", fields["endpoint"])
}

func TestScrub_SubstringKeyMatch(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.InfoLevel, DefaultRedactKeys())

	logger.Info(context.Background(), "request authorized",
		zap.String("auth_token", "abc"),
		zap.String("Authorization", "Bearer abc"),
	)

	fields := observed.All()[0].ContextMap()
	assert.Equal(t, redactedPlaceholder, fields["auth_token"])
	assert.Equal(t, redactedPlaceholder, fields["Authorization"])
}

func TestScrub_NonStringFieldsReplaced(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.InfoLevel, DefaultRedactKeys())

	logger.Info(context.Background(), "key rotated", zap.Int("api_key_version", 3))

	fields := observed.All()[0].ContextMap()
	assert.Equal(t, redactedPlaceholder, fields["api_key_version"])
}

func TestScrub_AppliesToWithFields(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.InfoLevel, DefaultRedactKeys())

	child := logger.With(zap.String("token", "xyz"))
	child.Info(context.Background(), "child entry")

	fields := observed.All()[0].ContextMap()
	assert.Equal(t, redactedPlaceholder, fields["token"])
}

func TestScrub_DisabledWhenNoKeys(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.InfoLevel, nil)

	logger.Info(context.Background(), "unfiltered", zap.String("token", "kept"))

	fields := observed.All()[0].ContextMap()
	assert.Equal(t, "kept", fields["token"])
}
