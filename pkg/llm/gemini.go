package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiProvider generates text with the Google Gemini API.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a Gemini-backed provider.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return "gemini" }

// Generate implements Provider.
func (p *GeminiProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = req.MaxOutputTokens
	}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}

	start := time.Now()
	resp, err := p.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), cfg)
	duration := time.Since(start)
	if err != nil {
		return nil, classifyError(err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, &FatalError{Err: fmt.Errorf("prompt blocked by safety filter: %s", resp.PromptFeedback.BlockReason)}
	}
	if len(resp.Candidates) == 0 {
		return nil, &RetriableError{Err: fmt.Errorf("gemini returned no candidates")}
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, &FatalError{Err: fmt.Errorf("response blocked by safety filter")}
	}

	var text strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				text.WriteString(part.Text)
			}
		}
	}

	truncated := candidate.FinishReason == genai.FinishReasonMaxTokens
	if text.Len() == 0 && !truncated {
		return nil, &RetriableError{Err: fmt.Errorf("gemini returned an empty response")}
	}

	out := &Response{
		Text:       text.String(),
		Model:      req.Model,
		StopReason: string(candidate.FinishReason),
		Complete:   candidate.FinishReason == genai.FinishReasonStop,
		Truncated:  truncated,
		Duration:   duration,
	}
	if len(candidate.SafetyRatings) > 0 {
		if ratings, err := json.Marshal(candidate.SafetyRatings); err == nil {
			out.SafetyRatings = ratings
		}
	}
	if resp.UsageMetadata != nil {
		out.TokensInput = resp.UsageMetadata.PromptTokenCount
		out.TokensOutput = resp.UsageMetadata.CandidatesTokenCount
		out.TokensTotal = resp.UsageMetadata.TotalTokenCount
	}
	return out, nil
}
