// internal/logging/config.go
package logging

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Config holds logger construction options.
type Config struct {
	Level  zapcore.Level `koanf:"level"`
	Format string        `koanf:"format"`
	Output OutputConfig  `koanf:"output"`

	// Redact lists field keys whose values are scrubbed before an
	// entry is written. Matching is a case-insensitive substring
	// test, so "token" also covers "auth_token".
	Redact []string `koanf:"redact"`
}

// OutputConfig selects log sinks. At least one must be enabled.
type OutputConfig struct {
	Stdout bool `koanf:"stdout"`
	OTEL   bool `koanf:"otel"`
}

// NewDefaultConfig returns the daemon's standard logging setup:
// JSON to stdout at info level with secret scrubbing on.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Output: OutputConfig{Stdout: true},
		Redact: DefaultRedactKeys(),
	}
}

// Validate checks the config for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be json or console, got %q", c.Format)
	}
	if !c.Output.Stdout && !c.Output.OTEL {
		return fmt.Errorf("at least one output must be enabled")
	}
	for _, key := range c.Redact {
		if key == "" {
			return fmt.Errorf("redact keys must not be empty")
		}
	}
	return nil
}
