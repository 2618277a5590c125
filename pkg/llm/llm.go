// Package llm provides provider-agnostic access to hosted AI models.
//
// A Provider wraps one vendor SDK behind a common Generate call. Client adds
// the operational envelope around a provider: per-call timeout, rate limiting,
// retry of transient failures, and an audit record for every attempt made.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garethmul/newsmill/pkg/config"
)

// Provider generates text completions from a hosted AI model.
type Provider interface {
	// Generate performs a single model call. Failures are returned as
	// RetriableError or FatalError so callers can decide whether to retry.
	Generate(ctx context.Context, req Request) (*Response, error)
	// Name identifies the provider ("gemini", "claude") in audit rows.
	Name() string
}

// Request describes one model call.
type Request struct {
	Model             string
	Prompt            string
	SystemInstruction string
	Temperature       float64
	MaxOutputTokens   int32
}

// Response is the outcome of a successful model call.
type Response struct {
	Text       string
	Model      string
	StopReason string
	// Complete is set when the provider finished naturally, i.e. the stop
	// reason is the provider's normal stop.
	Complete bool
	// Truncated is set when the provider stopped at the output token limit;
	// the text is usable but incomplete.
	Truncated    bool
	TokensInput  int32
	TokensOutput int32
	TokensTotal  int32
	// SafetyRatings is the provider's safety verdict for the response,
	// when it reports one.
	SafetyRatings json.RawMessage
	Duration      time.Duration
}

// NewProvider builds the provider selected by cfg.Provider.
func NewProvider(ctx context.Context, cfg *config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
		}
		return NewGeminiProvider(ctx, cfg.GeminiAPIKey)
	case config.ProviderClaude:
		if cfg.ClaudeAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for the claude provider")
		}
		return NewClaudeProvider(cfg.ClaudeAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}
