package models

import "time"

// SourceType distinguishes how a news source is fetched.
type SourceType string

// Source type constants.
const (
	SourceTypeFeed   SourceType = "feed"
	SourceTypeScrape SourceType = "scrape"
)

// Valid reports whether the source type is one of the known values.
func (t SourceType) Valid() bool {
	return t == SourceTypeFeed || t == SourceTypeScrape
}

// SourceSelectors holds the CSS selectors used by scrape-type sources.
// Zero-value fields fall back to the fetcher defaults.
type SourceSelectors struct {
	Article string `json:"article,omitempty"`
	Title   string `json:"title,omitempty"`
	Link    string `json:"link,omitempty"`
}

// NewsSource is a configured content origin: an RSS/Atom feed or an HTML
// index page to scrape.
type NewsSource struct {
	ID            int64           `json:"id"`
	AccountID     string          `json:"account_id"`
	Name          string          `json:"name"`
	URL           string          `json:"url"`
	Type          SourceType      `json:"type"`
	Selectors     SourceSelectors `json:"selectors"`
	IsActive      bool            `json:"is_active"`
	LastCheckedAt *time.Time      `json:"last_checked_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// CreateSourceRequest contains fields for creating a news source.
type CreateSourceRequest struct {
	Name      string          `json:"name" validate:"required,max=255"`
	URL       string          `json:"url" validate:"required,url"`
	Type      SourceType      `json:"type" validate:"required,oneof=feed scrape"`
	Selectors SourceSelectors `json:"selectors"`
	IsActive  *bool           `json:"is_active,omitempty"`
}

// UpdateSourceRequest contains optional fields for updating a news source.
// Nil fields are left unchanged.
type UpdateSourceRequest struct {
	Name      *string          `json:"name,omitempty" validate:"omitempty,max=255"`
	URL       *string          `json:"url,omitempty" validate:"omitempty,url"`
	Selectors *SourceSelectors `json:"selectors,omitempty"`
	IsActive  *bool            `json:"is_active,omitempty"`
}
