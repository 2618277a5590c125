// Package fetcher pulls source content into the store: syndication feeds and
// scraped HTML index pages both produce normalised article candidates that
// are persisted as scraped_articles rows.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/garethmul/newsmill/pkg/config"
	"github.com/garethmul/newsmill/pkg/models"
	"github.com/garethmul/newsmill/pkg/services"
)

// Text length bounds applied before persistence.
const (
	// minFeedTextLen is the minimum stripped text length for a feed item.
	minFeedTextLen = 100
	// minScrapeTextLen is the minimum body length for a scraped page.
	minScrapeTextLen = 50
	// maxFeedTextLen caps feed item text.
	maxFeedTextLen = 5000
	// maxScrapeTextLen caps scraped page text.
	maxScrapeTextLen = 10000
	// maxTitleLen caps article titles.
	maxTitleLen = 255

	// maxFetchBody caps how much of a response body is read.
	maxFetchBody = 10 << 20
)

// Candidate is one normalised article extracted from a source, not yet
// persisted.
type Candidate struct {
	Title       string
	URL         string
	PublishedAt *time.Time
	Text        string
}

// Result summarises one source ingestion.
type Result struct {
	// Found is how many candidates the source yielded.
	Found int `json:"found"`
	// New is how many articles were inserted.
	New int `json:"new"`
	// Duplicates is how many candidates the account already had by URL.
	Duplicates int `json:"duplicates"`
	// Skipped is how many candidates failed length or extraction checks.
	Skipped int `json:"skipped"`
}

// Fetcher downloads and ingests source content.
type Fetcher struct {
	cfg        *config.FetcherConfig
	httpClient *http.Client
	articles   *services.ArticleService
	sources    *services.SourceService
	logger     *slog.Logger
}

// New creates a Fetcher.
func New(cfg *config.FetcherConfig, articles *services.ArticleService, sources *services.SourceService, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		articles:   articles,
		sources:    sources,
		logger:     logger.With("component", "fetcher"),
	}
}

// IngestSource fetches one source and persists its new articles. The
// source's last_checked_at is updated whether the fetch succeeds or not.
func (f *Fetcher) IngestSource(ctx context.Context, source *models.NewsSource) (*Result, error) {
	candidates, skipped, err := f.FetchSource(ctx, source)

	if touchErr := f.sources.TouchLastChecked(ctx, source.AccountID, source.ID); touchErr != nil {
		f.logger.Warn("failed to update source last_checked_at",
			"source_id", source.ID, "error", touchErr)
	}
	if err != nil {
		return nil, err
	}

	result := &Result{Found: len(candidates) + skipped, Skipped: skipped}
	for _, candidate := range candidates {
		_, err := f.articles.CreateArticle(ctx, source.AccountID, services.CreateArticleParams{
			SourceID:        &source.ID,
			Title:           candidate.Title,
			URL:             candidate.URL,
			PublicationDate: candidate.PublishedAt,
			FullText:        candidate.Text,
		})
		switch {
		case err == nil:
			result.New++
		case errors.Is(err, services.ErrAlreadyExists):
			result.Duplicates++
		default:
			return nil, fmt.Errorf("failed to persist article %q: %w", candidate.URL, err)
		}
	}

	f.logger.Info("source ingested",
		"source_id", source.ID,
		"account_id", source.AccountID,
		"found", result.Found,
		"new", result.New,
		"duplicates", result.Duplicates,
		"skipped", result.Skipped)
	return result, nil
}

// FetchSource downloads one source and returns its normalised candidates plus
// the number skipped by extraction checks. Nothing is persisted.
func (f *Fetcher) FetchSource(ctx context.Context, source *models.NewsSource) ([]Candidate, int, error) {
	switch source.Type {
	case models.SourceTypeFeed:
		return f.fetchFeed(ctx, source)
	case models.SourceTypeScrape:
		return f.fetchScrape(ctx, source)
	default:
		return nil, 0, fmt.Errorf("unknown source type %q", source.Type)
	}
}

// get downloads a URL with the configured User-Agent, returning the body
// capped at maxFetchBody.
func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %q: %w", url, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %q: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %q returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %q: %w", url, err)
	}
	return body, nil
}
