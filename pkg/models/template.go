package models

import (
	"encoding/json"
	"time"
)

// Well-known template names used by the pipeline. Accounts may override them;
// the registry falls back to the global account and then to compiled-in
// defaults.
const (
	TemplateArticleSummary   = "analysis.summary"
	TemplateArticleKeywords  = "analysis.keywords"
	TemplateArticleRelevance = "analysis.relevance"
	TemplateBlogPost         = "generation.blog_post"
	TemplateSocialMedia      = "generation.social_media"
)

// Template categories are free-form strings; these are the ones the built-in
// templates use. A template with a category takes part in the generation run;
// "blog" marks the main template, the one that fills the GeneratedArticle
// itself. Every other category becomes a GeneratedContent row.
const (
	CategoryBlog        = "blog"
	CategorySocialMedia = "social_media"
)

// Media types a template may declare.
const (
	MediaTypeText  = "text"
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
)

// Parsing methods the generator knows how to apply to a template's response.
// An unknown method degrades to raw text with a warning.
const (
	ParseGenericText     = "generic_text"
	ParseSocialMediaJSON = "social_media_json"
	ParseVideoScriptJSON = "video_script_json"
	ParsePrayerPoints    = "prayer_points"
	ParseImagePromptList = "image_prompt_list"
)

// PromptTemplate is a named, versioned prompt owned by an account. The
// template row carries identity, ordering and parsing metadata; the text
// lives in PromptVersion rows.
type PromptTemplate struct {
	ID             int64           `json:"id"`
	AccountID      string          `json:"account_id"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	Description    string          `json:"description"`
	ExecutionOrder int             `json:"execution_order"`
	MediaType      string          `json:"media_type"`
	ParsingMethod  string          `json:"parsing_method"`
	UIConfig       json.RawMessage `json:"ui_config"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// PromptVersion is one immutable revision of a template's text. Exactly one
// version per template is current.
type PromptVersion struct {
	ID                int64     `json:"id"`
	TemplateID        int64     `json:"template_id"`
	VersionNumber     int       `json:"version_number"`
	PromptText        string    `json:"prompt_text"`
	SystemInstruction string    `json:"system_instruction"`
	IsCurrent         bool      `json:"is_current"`
	CreatedBy         string    `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
}

// CreateTemplateRequest contains fields for creating a template together with
// its first version.
type CreateTemplateRequest struct {
	Name              string          `json:"name" validate:"required,max=255"`
	Category          string          `json:"category" validate:"max=100"`
	Description       string          `json:"description"`
	ExecutionOrder    int             `json:"execution_order" validate:"min=0"`
	MediaType         string          `json:"media_type" validate:"omitempty,oneof=text image video"`
	ParsingMethod     string          `json:"parsing_method" validate:"max=100"`
	UIConfig          json.RawMessage `json:"ui_config,omitempty"`
	PromptText        string          `json:"prompt_text" validate:"required"`
	SystemInstruction string          `json:"system_instruction"`
	CreatedBy         string          `json:"created_by"`
}

// CreateVersionRequest contains fields for appending a new template version.
type CreateVersionRequest struct {
	PromptText        string `json:"prompt_text" validate:"required"`
	SystemInstruction string `json:"system_instruction"`
	CreatedBy         string `json:"created_by"`
}

// ResolvedPrompt is the outcome of template resolution: the current version's
// text plus where it came from and how to treat its output.
type ResolvedPrompt struct {
	TemplateID        int64  `json:"template_id,omitempty"`
	TemplateName      string `json:"template_name"`
	Category          string `json:"category,omitempty"`
	MediaType         string `json:"media_type,omitempty"`
	ParsingMethod     string `json:"parsing_method,omitempty"`
	VersionNumber     int    `json:"version_number,omitempty"`
	PromptText        string `json:"prompt_text"`
	SystemInstruction string `json:"system_instruction"`
	// Origin is "account", "global", or "builtin".
	Origin string `json:"origin"`
}
