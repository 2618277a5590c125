package models

import (
	"encoding/json"
	"time"
)

// GeneratedStatus tracks a generated article through the review workflow.
type GeneratedStatus string

// Generated article status constants.
const (
	GeneratedStatusDraft         GeneratedStatus = "draft"
	GeneratedStatusReviewPending GeneratedStatus = "review_pending"
	GeneratedStatusApproved      GeneratedStatus = "approved"
	GeneratedStatusArchived      GeneratedStatus = "archived"
	GeneratedStatusRejected      GeneratedStatus = "rejected"
	GeneratedStatusPublished     GeneratedStatus = "published"
)

// Valid reports whether the status is one of the known values.
func (s GeneratedStatus) Valid() bool {
	switch s {
	case GeneratedStatusDraft, GeneratedStatusReviewPending, GeneratedStatusApproved,
		GeneratedStatusArchived, GeneratedStatusRejected, GeneratedStatusPublished:
		return true
	}
	return false
}

// Active reports whether the article still occupies its source article's
// one-active-generation slot.
func (s GeneratedStatus) Active() bool {
	return s != GeneratedStatusRejected && s != GeneratedStatusArchived
}

// CanTransitionTo reports whether the review workflow permits moving from s
// to next. Archiving is allowed from any state.
func (s GeneratedStatus) CanTransitionTo(next GeneratedStatus) bool {
	if next == GeneratedStatusArchived {
		return s != GeneratedStatusArchived
	}
	switch s {
	case GeneratedStatusDraft:
		return next == GeneratedStatusReviewPending
	case GeneratedStatusReviewPending:
		return next == GeneratedStatusApproved || next == GeneratedStatusRejected
	case GeneratedStatusApproved:
		return next == GeneratedStatusPublished
	}
	return false
}

// GeneratedArticle is an AI-written article, usually derived from a scraped
// source article.
type GeneratedArticle struct {
	ID               int64           `json:"id"`
	AccountID        string          `json:"account_id"`
	BasedOnArticleID *int64          `json:"based_on_article_id,omitempty"`
	Title            string          `json:"title"`
	Body             string          `json:"body"`
	Status           GeneratedStatus `json:"status"`
	WordCount        int             `json:"word_count"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// GeneratedContent is a derived asset attached to a generated article: a
// social post, a video script, prayer points. ContentType is the template
// category that produced it; content and metadata are free-form JSON shaped
// by the template's parsing method.
type GeneratedContent struct {
	ID          int64           `json:"id"`
	AccountID   string          `json:"account_id"`
	ArticleID   int64           `json:"article_id"`
	ContentType string          `json:"content_type"`
	Content     json.RawMessage `json:"content"`
	Metadata    json.RawMessage `json:"metadata"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
