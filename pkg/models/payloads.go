package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// NewsAggregationPayload selects which sources a news_aggregation job
// fetches. Empty SourceIDs means all active sources for the account.
type NewsAggregationPayload struct {
	SourceIDs []int64 `json:"sourceIds,omitempty"`
}

// AIAnalysisPayload selects which articles an ai_analysis job analyses.
// Empty ArticleIDs means all articles in status scraped, newest first,
// bounded by Limit.
type AIAnalysisPayload struct {
	ArticleIDs []int64 `json:"articleIds,omitempty"`
	Limit      int     `json:"limit,omitempty" validate:"omitempty,min=1,max=500"`
}

// URLAnalysisPayload names the single URL a url_analysis job ingests.
type URLAnalysisPayload struct {
	URL string `json:"url" validate:"required,url,startswith=http"`
}

// ContentGenerationPayload selects what a content_generation job writes
// from: one explicit source article, or, when ArticleID is zero, the top
// analyzed articles by relevance bounded by Limit.
type ContentGenerationPayload struct {
	ArticleID int64  `json:"articleId,omitempty" validate:"omitempty,min=1"`
	Limit     int    `json:"limit,omitempty" validate:"omitempty,min=1,max=25"`
	Tone      string `json:"tone,omitempty" validate:"omitempty,max=100"`
}

// FullCyclePayload configures a full_cycle job: which sources to fetch and
// how many of the most relevant analyzed articles to generate content from.
type FullCyclePayload struct {
	SourceIDs   []int64 `json:"sourceIds,omitempty"`
	GenerateTop int     `json:"generateTop,omitempty" validate:"omitempty,min=1,max=25"`
}

// DefaultGenerateTop is used when a full_cycle or content_generation payload
// does not bound the generation batch itself.
const DefaultGenerateTop = 5

// ValidateJobPayload parses and validates a raw payload against the schema
// for the given job type. It returns the decoded payload so callers can
// re-use it without a second parse.
func ValidateJobPayload(jobType JobType, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}

	var payload any
	switch jobType {
	case JobTypeNewsAggregation:
		payload = &NewsAggregationPayload{}
	case JobTypeAIAnalysis:
		payload = &AIAnalysisPayload{}
	case JobTypeURLAnalysis:
		payload = &URLAnalysisPayload{}
	case JobTypeContentGeneration:
		payload = &ContentGenerationPayload{}
	case JobTypeFullCycle:
		payload = &FullCyclePayload{}
	default:
		return nil, fmt.Errorf("unknown job type %q", jobType)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(payload); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", jobType, err)
	}

	if err := validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", jobType, err)
	}
	return payload, nil
}
