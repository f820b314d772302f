// Package reasoning wraps the external structured-reasoning service.
//
// The pipeline treats reasoning as an opaque function from a prompt to a
// structured JSON document. Responses are decoded and validated once, at
// this boundary; untyped data never propagates past it. Calls carry an
// explicit deadline and are never retried.
package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/driftwoodlabs/triaged/internal/config"
	"github.com/driftwoodlabs/triaged/internal/fault"
)

// Client invokes the structured-reasoning service.
type Client interface {
	// Generate sends one prompt and returns the raw JSON document the
	// service produced. The document has not been validated yet; callers
	// decode it with Decode into their response schema.
	Generate(ctx context.Context, prompt string) (json.RawMessage, error)
}

// New builds a Client from configuration.
func New(cfg config.ReasoningConfig, logger *zap.Logger) (Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var inner Client
	switch cfg.Provider {
	case "openai":
		c, err := newOpenAIClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai client: %w", err)
		}
		inner = c
	case "stub":
		inner = NewStub(nil)
	default:
		return nil, fmt.Errorf("unknown reasoning provider %q", cfg.Provider)
	}

	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &deadlineClient{inner: inner, timeout: timeout}, nil
}

// deadlineClient bounds every invocation. Expiry surfaces as an upstream
// failure, never a hang.
type deadlineClient struct {
	inner   Client
	timeout time.Duration
}

func (c *deadlineClient) Generate(ctx context.Context, prompt string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.inner.Generate(ctx, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fault.Wrap(fault.KindUpstreamFailure, "reasoning call exceeded deadline", err)
		}
		return nil, fault.Wrap(fault.KindUpstreamFailure, "reasoning call failed", err)
	}
	return raw, nil
}
