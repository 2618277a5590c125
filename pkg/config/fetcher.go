package config

import "time"

// FetcherConfig controls source fetching behaviour.
type FetcherConfig struct {
	// UserAgent is sent on all outbound fetch requests.
	UserAgent string

	// HTTPTimeout bounds a single page or feed download.
	HTTPTimeout time.Duration

	// MaxFeedItems caps how many items are taken from one feed per fetch.
	MaxFeedItems int `validate:"min=1,max=200"`

	// MaxScrapeLinks caps how many article links are followed from one
	// scraped index page.
	MaxScrapeLinks int `validate:"min=1,max=100"`
}

// DefaultFetcherConfig returns the built-in fetcher defaults.
func DefaultFetcherConfig() *FetcherConfig {
	return &FetcherConfig{
		UserAgent:      "newsmill/1.0 (+https://github.com/garethmul/newsmill)",
		HTTPTimeout:    30 * time.Second,
		MaxFeedItems:   20,
		MaxScrapeLinks: 10,
	}
}

// LoadFetcherConfig returns the fetcher defaults overridden from the
// environment.
func LoadFetcherConfig() *FetcherConfig {
	cfg := DefaultFetcherConfig()
	cfg.UserAgent = getEnv("FETCHER_USER_AGENT", cfg.UserAgent)
	cfg.HTTPTimeout = getEnvDuration("FETCHER_HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.MaxFeedItems = getEnvInt("FETCHER_MAX_FEED_ITEMS", cfg.MaxFeedItems)
	cfg.MaxScrapeLinks = getEnvInt("FETCHER_MAX_SCRAPE_LINKS", cfg.MaxScrapeLinks)
	return cfg
}

// AnalysisConfig controls batch analysis concurrency and pacing.
type AnalysisConfig struct {
	// MaxConcurrent is the number of articles analysed in parallel.
	MaxConcurrent int `validate:"min=1,max=16"`

	// CallSpacing is the minimum delay between consecutive AI call starts.
	CallSpacing time.Duration
}

// DefaultAnalysisConfig returns the built-in analysis defaults.
func DefaultAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{
		MaxConcurrent: 4,
		CallSpacing:   time.Second,
	}
}

// LoadAnalysisConfig returns the analysis defaults overridden from the
// environment.
func LoadAnalysisConfig() *AnalysisConfig {
	cfg := DefaultAnalysisConfig()
	cfg.MaxConcurrent = getEnvInt("ANALYSIS_MAX_CONCURRENT", cfg.MaxConcurrent)
	cfg.CallSpacing = getEnvDuration("ANALYSIS_CALL_SPACING", cfg.CallSpacing)
	return cfg
}
