package reasoning

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ankittk/taskwatch/internal/capture"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// Anthropic analyzes contexts with the Claude Messages API.
type Anthropic struct {
	inner anthropic.Client
	model anthropic.Model
}

// NewAnthropic returns a Claude-backed analyzer. endpoint overrides the API base URL.
func NewAnthropic(apiKey, model, endpoint string) (*Anthropic, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrMissingAPIKey)
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if endpoint != "" {
		opts = append(opts, option.WithBaseURL(endpoint))
	}
	if model == "" {
		model = defaultAnthropicModel
	}
	return &Anthropic{inner: anthropic.NewClient(opts...), model: anthropic.Model(model)}, nil
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Analyze(ctx context.Context, c capture.Context) ([]capture.DetectedTask, error) {
	resp, err := a.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: int64(1024),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(BuildPrompt(c))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claude API call: %w", err)
	}
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, errors.New("claude returned no text")
	}
	return ParseTasks(text)
}

func (a *Anthropic) HealthCheck(ctx context.Context) error {
	if _, err := a.inner.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		return fmt.Errorf("claude API: %w", err)
	}
	return nil
}
