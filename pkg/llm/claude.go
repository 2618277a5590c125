package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeProvider generates text with the Anthropic Messages API.
type ClaudeProvider struct {
	client anthropic.Client
}

// NewClaudeProvider creates a Claude-backed provider.
func NewClaudeProvider(apiKey string) *ClaudeProvider {
	return &ClaudeProvider{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

// Name implements Provider.
func (p *ClaudeProvider) Name() string { return "claude" }

// Generate implements Provider.
func (p *ClaudeProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxOutputTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.SystemInstruction != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.SystemInstruction},
		}
	}

	start := time.Now()
	msg, err := p.client.Messages.New(ctx, params)
	duration := time.Since(start)
	if err != nil {
		return nil, classifyError(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	truncated := msg.StopReason == anthropic.StopReasonMaxTokens
	if text.Len() == 0 && !truncated {
		return nil, &RetriableError{Err: fmt.Errorf("claude returned an empty response")}
	}

	return &Response{
		Text:         text.String(),
		Model:        string(msg.Model),
		StopReason:   string(msg.StopReason),
		Complete:     msg.StopReason == anthropic.StopReasonEndTurn,
		Truncated:    truncated,
		TokensInput:  int32(msg.Usage.InputTokens),
		TokensOutput: int32(msg.Usage.OutputTokens),
		TokensTotal:  int32(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		Duration:     duration,
	}, nil
}
