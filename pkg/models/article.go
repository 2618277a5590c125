package models

import "time"

// ArticleStatus tracks a scraped article through the analysis pipeline.
type ArticleStatus string

// Article status constants.
const (
	ArticleStatusScraped  ArticleStatus = "scraped"
	ArticleStatusAnalyzed ArticleStatus = "analyzed"
	// ArticleStatusProcessed means content has been generated from the article.
	ArticleStatusProcessed ArticleStatus = "processed"
	ArticleStatusFailed    ArticleStatus = "failed"
)

// Valid reports whether the status is one of the known values.
func (s ArticleStatus) Valid() bool {
	switch s {
	case ArticleStatusScraped, ArticleStatusAnalyzed, ArticleStatusProcessed, ArticleStatusFailed:
		return true
	}
	return false
}

// ScrapedArticle is a piece of source content captured from a feed or a
// scraped page. AI-derived fields (summary, keywords, relevance) are nil
// until the article has been analyzed.
type ScrapedArticle struct {
	ID              int64         `json:"id"`
	AccountID       string        `json:"account_id"`
	SourceID        *int64        `json:"source_id,omitempty"`
	Title           string        `json:"title"`
	URL             string        `json:"url"`
	PublicationDate *time.Time    `json:"publication_date,omitempty"`
	FullText        string        `json:"full_text"`
	SummaryAI       *string       `json:"summary_ai,omitempty"`
	KeywordsAI      []string      `json:"keywords_ai,omitempty"`
	RelevanceScore  *float64      `json:"relevance_score,omitempty"`
	Status          ArticleStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// AnalysisResult holds the AI-derived fields written back to an article.
type AnalysisResult struct {
	Summary        string   `json:"summary"`
	Keywords       []string `json:"keywords"`
	RelevanceScore float64  `json:"relevance_score"`
}
