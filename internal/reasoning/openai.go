package reasoning

import (
	"context"
	"encoding/json"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/driftwoodlabs/triaged/internal/config"
)

// openaiClient generates structured documents through langchaingo's OpenAI
// binding in JSON mode.
type openaiClient struct {
	llm    *openai.LLM
	model  string
	logger *zap.Logger
}

func newOpenAIClient(cfg config.ReasoningConfig, logger *zap.Logger) (*openaiClient, error) {
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
	}
	if cfg.APIKey.IsSet() {
		opts = append(opts, openai.WithToken(cfg.APIKey.Value()))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}

	return &openaiClient{llm: llm, model: cfg.Model, logger: logger}, nil
}

// Generate implements Client.
func (c *openaiClient) Generate(ctx context.Context, prompt string) (json.RawMessage, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt,
		llms.WithJSONMode(),
		llms.WithTemperature(0.2),
	)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("reasoning response received",
		zap.String("model", c.model),
		zap.Int("bytes", len(out)),
	)
	return json.RawMessage(out), nil
}
