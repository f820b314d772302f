// Package config provides configuration loading for triaged.
//
// Configuration is loaded from a YAML file with environment variable
// overrides. See LoadWithFile for precedence and security rules.
package config

import (
	"fmt"
	"time"
)

// Config holds the complete triaged configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Auth          AuthConfig          `koanf:"auth"`
	Reasoning     ReasoningConfig     `koanf:"reasoning"`
	Nats          NatsConfig          `koanf:"nats"`
	Pipeline      PipelineConfig      `koanf:"pipeline"`
	Log           LogConfig           `koanf:"log"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// AuthConfig holds API authentication configuration.
//
// Every stage endpoint requires either the bearer token or the system
// principal header used by scheduled automation.
type AuthConfig struct {
	// Token is the bearer token expected in the Authorization header.
	Token Secret `koanf:"token"`

	// SystemKey authenticates scheduled automation via the
	// X-Triaged-System header. Empty disables the system principal.
	SystemKey Secret `koanf:"system_key"`
}

// ReasoningConfig holds the structured-reasoning service configuration.
type ReasoningConfig struct {
	// Provider selects the backing model client ("openai" or "stub").
	Provider string `koanf:"provider"`

	// Model is the model identifier passed to the provider.
	Model string `koanf:"model"`

	// BaseURL overrides the provider endpoint (optional).
	BaseURL string `koanf:"base_url"`

	// APIKey authenticates against the provider.
	APIKey Secret `koanf:"api_key"`

	// Timeout bounds every reasoning invocation. Expiry surfaces as an
	// upstream failure, never a hang.
	Timeout Duration `koanf:"timeout"`
}

// NatsConfig holds the action event bus configuration.
type NatsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// PipelineConfig holds analysis stage tunables.
type PipelineConfig struct {
	// WindowHours is the default aggregation window.
	WindowHours int `koanf:"window_hours"`

	// MemoryLookback is how many learning memories consolidation reads.
	MemoryLookback int `koanf:"memory_lookback"`

	// HarvestWindow bounds how far back the harvester scans for
	// recently-updated resolved errors.
	HarvestWindow Duration `koanf:"harvest_window"`
}

// LogConfig holds the subset of logging options exposed in the main config.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry export configuration.
type ObservabilityConfig struct {
	Enabled        bool   `koanf:"enabled"`
	Endpoint       string `koanf:"endpoint"`
	Insecure       bool   `koanf:"insecure"`
	ServiceName    string `koanf:"service_name"`
	ServiceVersion string `koanf:"service_version"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9180
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Reasoning.Provider == "" {
		cfg.Reasoning.Provider = "openai"
	}
	if cfg.Reasoning.Model == "" {
		cfg.Reasoning.Model = "gpt-4o-mini"
	}
	if cfg.Reasoning.Timeout == 0 {
		cfg.Reasoning.Timeout = Duration(60 * time.Second)
	}

	if cfg.Nats.URL == "" {
		cfg.Nats.URL = "nats://localhost:4222"
	}
	if cfg.Nats.SubjectPrefix == "" {
		cfg.Nats.SubjectPrefix = "triaged.actions"
	}

	if cfg.Pipeline.WindowHours == 0 {
		cfg.Pipeline.WindowHours = 72
	}
	if cfg.Pipeline.MemoryLookback == 0 {
		cfg.Pipeline.MemoryLookback = 10
	}
	if cfg.Pipeline.HarvestWindow == 0 {
		cfg.Pipeline.HarvestWindow = Duration(24 * time.Hour)
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = "localhost:4317"
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "triaged"
	}
	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = "0.1.0"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}

	switch c.Reasoning.Provider {
	case "openai", "stub":
	default:
		return fmt.Errorf("reasoning.provider must be 'openai' or 'stub', got %q", c.Reasoning.Provider)
	}
	if c.Reasoning.Timeout.Duration() <= 0 {
		return fmt.Errorf("reasoning.timeout must be positive")
	}

	if c.Pipeline.WindowHours <= 0 {
		return fmt.Errorf("pipeline.window_hours must be positive, got %d", c.Pipeline.WindowHours)
	}
	if c.Pipeline.MemoryLookback <= 0 {
		return fmt.Errorf("pipeline.memory_lookback must be positive, got %d", c.Pipeline.MemoryLookback)
	}

	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log.format must be 'json' or 'console', got %q", c.Log.Format)
	}

	if c.Observability.Enabled && c.Observability.Endpoint == "" {
		return fmt.Errorf("observability.endpoint is required when observability is enabled")
	}

	return nil
}
