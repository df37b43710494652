// Package llm wraps the OpenRouter chat-completion API behind a small
// Generator port so the pipeline can be tested with a stub.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator is the single completion port the pipeline depends on.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config holds OpenRouter settings.
type Config struct {
	APIKey    string
	Model     string // OpenRouter model name, e.g. "openai/gpt-4.1-mini"
	MaxTokens int
	Timeout   time.Duration // ceiling per completion call
}

// Client is the OpenRouter-backed Generator.
type Client struct {
	llm       llms.Model
	maxTokens int
	timeout   time.Duration
	logger    *logrus.Logger
}

func NewClient(cfg Config, logger *logrus.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY is required")
	}
	if cfg.Model == "" {
		cfg.Model = "openai/gpt-4.1-mini"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	llm, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithBaseURL("https://openrouter.ai/api/v1"),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenRouter LLM: %w", err)
	}

	logger.WithField("model", cfg.Model).Info("initialized LLM client")
	return &Client{llm: llm, maxTokens: cfg.MaxTokens, timeout: cfg.Timeout, logger: logger}, nil
}

// Complete runs one completion under the configured per-call ceiling, so a
// stalled endpoint cannot hang callers that bring no deadline of their own.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := llms.GenerateFromSinglePrompt(
		ctx,
		c.llm,
		prompt,
		llms.WithMaxTokens(c.maxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("LLM completion failed: %w", err)
	}
	return strings.TrimSpace(resp), nil
}
