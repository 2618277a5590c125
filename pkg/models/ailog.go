package models

import (
	"encoding/json"
	"time"
)

// AIResponseLog is the audit record of a single AI provider call: the full
// prompt, the request knobs, the full response, token usage, timing, and how
// the provider finished. Failed calls are recorded too, with Success false,
// ErrorMessage set and ResponseText empty.
type AIResponseLog struct {
	ID                int64           `json:"id"`
	AccountID         string          `json:"account_id"`
	JobID             *string         `json:"job_id,omitempty"`
	Provider          string          `json:"provider"`
	Model             string          `json:"model"`
	PromptText        string          `json:"prompt_text"`
	SystemInstruction string          `json:"system_instruction"`
	ResponseText      string          `json:"response_text"`
	TokensInput       int             `json:"tokens_input"`
	TokensOutput      int             `json:"tokens_output"`
	TokensTotal       int             `json:"tokens_total"`
	DurationMs        int64           `json:"duration_ms"`
	Temperature       float64         `json:"temperature"`
	MaxOutputTokens   int             `json:"max_output_tokens"`
	StopReason        string          `json:"stop_reason"`
	IsComplete        bool            `json:"is_complete"`
	IsTruncated       bool            `json:"is_truncated"`
	SafetyRatings     json.RawMessage `json:"safety_ratings,omitempty"`
	Success           bool            `json:"success"`
	ErrorMessage      *string         `json:"error_message,omitempty"`
	Warning           *string         `json:"warning,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}
