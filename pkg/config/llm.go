package config

import "time"

// Supported AI provider names.
const (
	ProviderGemini = "gemini"
	ProviderClaude = "claude"
)

// LLMConfig controls AI provider selection and call behaviour.
type LLMConfig struct {
	// Provider selects the default provider: "gemini" or "claude".
	Provider string `validate:"oneof=gemini claude"`

	GeminiAPIKey string
	GeminiModel  string

	ClaudeAPIKey string
	ClaudeModel  string

	// CallTimeout bounds a single provider call.
	CallTimeout time.Duration

	// MaxOutputTokens caps the response size requested from the provider.
	MaxOutputTokens int32 `validate:"min=1"`

	// Temperature is passed through to the provider.
	Temperature float64 `validate:"gte=0,lte=2"`

	// MaxAttempts bounds retries of retriable provider errors.
	MaxAttempts int `validate:"min=1,max=10"`

	// RequestsPerSecond and Burst configure the provider rate limiter.
	RequestsPerSecond float64 `validate:"gt=0"`
	Burst             int     `validate:"min=1"`
}

// DefaultLLMConfig returns the built-in LLM defaults.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		Provider:          ProviderGemini,
		GeminiModel:       "gemini-2.5-flash",
		ClaudeModel:       "claude-sonnet-4-5",
		CallTimeout:       120 * time.Second,
		MaxOutputTokens:   8192,
		Temperature:       0.7,
		MaxAttempts:       3,
		RequestsPerSecond: 1,
		Burst:             1,
	}
}

// LoadLLMConfig returns the LLM defaults overridden from the environment.
func LoadLLMConfig() *LLMConfig {
	cfg := DefaultLLMConfig()
	cfg.Provider = getEnv("LLM_PROVIDER", cfg.Provider)
	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", "")
	cfg.GeminiModel = getEnv("GEMINI_MODEL", cfg.GeminiModel)
	cfg.ClaudeAPIKey = getEnv("ANTHROPIC_API_KEY", "")
	cfg.ClaudeModel = getEnv("CLAUDE_MODEL", cfg.ClaudeModel)
	cfg.CallTimeout = getEnvDuration("LLM_CALL_TIMEOUT", cfg.CallTimeout)
	cfg.MaxOutputTokens = int32(getEnvInt("LLM_MAX_OUTPUT_TOKENS", int(cfg.MaxOutputTokens)))
	cfg.Temperature = getEnvFloat("LLM_TEMPERATURE", cfg.Temperature)
	cfg.MaxAttempts = getEnvInt("LLM_MAX_ATTEMPTS", cfg.MaxAttempts)
	cfg.RequestsPerSecond = getEnvFloat("LLM_REQUESTS_PER_SECOND", cfg.RequestsPerSecond)
	cfg.Burst = getEnvInt("LLM_BURST", cfg.Burst)
	return cfg
}
