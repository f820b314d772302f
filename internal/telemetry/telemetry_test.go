package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DisabledIsNoop(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, tel)

	assert.Nil(t, tel.tracerProvider)
	assert.Nil(t, tel.meterProvider)
	assert.Nil(t, tel.LoggerProvider())

	// Accessors still hand out usable no-op instruments.
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))

	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestNew_EnabledBuildsProviders(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)

	assert.NotNil(t, tel.tracerProvider)
	assert.NotNil(t, tel.meterProvider)
	assert.NotNil(t, tel.LoggerProvider())
	assert.NotNil(t, tel.Tracer("triaged.test"))
	assert.NotNil(t, tel.Meter("triaged.test"))

	// No collector is listening in tests, so the final flush may fail.
	_ = tel.Shutdown(context.Background())
}

func TestNew_HTTPProtocol(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Protocol = protocolHTTP
	cfg.Endpoint = "http://localhost:4318"

	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, tel.tracerProvider)
	assert.NotNil(t, tel.meterProvider)

	_ = tel.Shutdown(context.Background())
}

func TestStripScheme(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"localhost:4318", "localhost:4318"},
		{"http://localhost:4318", "localhost:4318"},
		{"https://otel.example.com:443", "otel.example.com:443"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, stripScheme(tt.in))
	}
}
