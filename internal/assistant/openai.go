package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAI talks to any OpenAI-compatible chat endpoint (OpenAI, LM Studio,
// Ollama, vLLM).
type OpenAI struct {
	llm     llms.Model
	timeout time.Duration
}

// NewOpenAI creates an OpenAI-compatible backend from cfg.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("assistant base_url is required for the %s backend", BackendOpenAI)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("assistant model is required for the %s backend", BackendOpenAI)
	}

	token := cfg.APIKey
	if token == "" {
		// langchaingo refuses an empty token; local servers ignore it.
		token = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithToken(token),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	return NewOpenAIWithModel(llm, cfg.Timeout), nil
}

// NewOpenAIWithModel wraps an existing langchaingo model.
func NewOpenAIWithModel(llm llms.Model, timeout time.Duration) *OpenAI {
	return &OpenAI{llm: llm, timeout: timeout}
}

func (o *OpenAI) Query(ctx context.Context, p Prompt) (string, error) {
	ctx, cancel := withDefaultTimeout(ctx, o.timeout)
	defer cancel()

	out, err := llms.GenerateFromSinglePrompt(ctx, o.llm, p.String(),
		llms.WithTemperature(0),
		llms.WithMaxTokens(512),
	)
	if err != nil {
		return "", fmt.Errorf("assistant query failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}
