// Package anthropic summarizes memory clusters with Claude.
//
// The model is forced to call a single record_summary tool, so the reply
// arrives as structured tool input rather than free text.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/becomeliminal/affect-memory/memory"
	"github.com/becomeliminal/affect-memory/summarizer"
)

const (
	// DefaultModel is used when Config.Model is empty.
	DefaultModel = "claude-3-5-haiku-latest"

	// DefaultMaxTokens bounds the reply.
	DefaultMaxTokens = 512

	toolName = "record_summary"
)

// Config configures the Claude summarizer.
type Config struct {
	APIKey    string
	BaseURL   string // optional, for proxies and tests
	Model     string
	MaxTokens int64

	// MaxRetries overrides the client's retry count when non-nil.
	MaxRetries *int
}

// Summarizer calls the Messages API.
type Summarizer struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// New creates a Summarizer from cfg.
func New(cfg Config) *Summarizer {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries != nil {
		opts = append(opts, option.WithMaxRetries(*cfg.MaxRetries))
	}
	client := anthropic.NewClient(opts...)
	return NewWithClient(&client, cfg.Model, cfg.MaxTokens)
}

// NewWithClient wraps an existing client.
func NewWithClient(client *anthropic.Client, model string, maxTokens int64) *Summarizer {
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Summarizer{client: client, model: model, maxTokens: maxTokens}
}

// tool describes the structured reply the model must produce.
var tool = anthropic.ToolUnionParam{
	OfTool: &anthropic.ToolParam{
		Name:        toolName,
		Description: anthropic.String("Record the compressed memory and any durable facts it contains."),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: map[string]any{
				"summary": stringProperty("One or two sentences capturing what the snippets have in common."),
				"facts":   stringMapProperty("Verifiable facts such as names, relationships and preferences, keyed in snake_case."),
			},
			Required: []string{"summary"},
		},
	},
}

// Summarize asks Claude for a summary of texts.
func (s *Summarizer) Summarize(ctx context.Context, texts []string) (memory.Summary, error) {
	if len(texts) == 0 {
		return memory.Summary{}, errors.New("anthropic: nothing to summarize")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: s.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: summarizer.SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(summarizer.Prompt(texts))),
		},
		Tools:      []anthropic.ToolUnionParam{tool},
		ToolChoice: anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: toolName}},
	}

	resp, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return memory.Summary{}, fmt.Errorf("anthropic: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		switch block.Type {
		case "tool_use":
			if block.Name != toolName {
				continue
			}
			input, err := json.Marshal(block.Input)
			if err != nil {
				return memory.Summary{}, fmt.Errorf("anthropic: tool input: %w", err)
			}
			return summarizer.ParseSummary(string(input)), nil
		case "text":
			text += block.Text
		}
	}
	if text == "" {
		return memory.Summary{}, errors.New("anthropic: empty reply")
	}
	return summarizer.ParseSummary(text), nil
}
