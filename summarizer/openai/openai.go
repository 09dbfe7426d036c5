// Package openai summarizes memory clusters through an OpenAI-compatible
// chat completions API in JSON mode.
package openai

import (
	"context"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/becomeliminal/affect-memory/memory"
	"github.com/becomeliminal/affect-memory/summarizer"
)

// Config configures the summarizer.
type Config struct {
	APIKey  string
	BaseURL string // optional, for compatible servers

	// Model defaults to gpt-4o-mini.
	Model string

	// MaxTokens bounds the reply. Default: 512
	MaxTokens int

	// Temperature defaults to 0.5.
	Temperature *float32
}

// Summarizer calls the chat completions endpoint.
type Summarizer struct {
	client      *goopenai.Client
	model       string
	maxTokens   int
	temperature float32
}

// New creates a summarizer. It does not contact the API.
func New(cfg Config) (*Summarizer, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("openai: APIKey or BaseURL is required")
	}
	if cfg.Model == "" {
		cfg.Model = goopenai.GPT4oMini
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	temperature := float32(0.5)
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Summarizer{
		client:      goopenai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: temperature,
	}, nil
}

// Summarize asks the model for a JSON summary of texts.
func (s *Summarizer) Summarize(ctx context.Context, texts []string) (memory.Summary, error) {
	if len(texts) == 0 {
		return memory.Summary{}, errors.New("openai: nothing to summarize")
	}

	resp, err := s.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: s.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: summarizer.SystemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: summarizer.Prompt(texts)},
		},
		MaxTokens:      s.maxTokens,
		Temperature:    s.temperature,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{Type: goopenai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return memory.Summary{}, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return memory.Summary{}, errors.New("openai: empty reply")
	}
	return summarizer.ParseSummary(resp.Choices[0].Message.Content), nil
}
