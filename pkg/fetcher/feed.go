package fetcher

import (
	"bytes"
	"context"
	"fmt"

	"github.com/mmcdole/gofeed"

	"github.com/garethmul/newsmill/pkg/models"
)

// fetchFeed downloads and parses a syndication feed. gofeed handles RSS,
// Atom, and JSON Feed transparently.
func (f *Fetcher) fetchFeed(ctx context.Context, source *models.NewsSource) ([]Candidate, int, error) {
	body, err := f.get(ctx, source.URL)
	if err != nil {
		return nil, 0, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse feed %q: %w", source.URL, err)
	}

	items := feed.Items
	if len(items) > f.cfg.MaxFeedItems {
		items = items[:f.cfg.MaxFeedItems]
	}

	var (
		candidates []Candidate
		skipped    int
	)
	for _, item := range items {
		candidate, ok := f.feedItemCandidate(source, item)
		if !ok {
			skipped++
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates, skipped, nil
}

// feedItemCandidate normalises one feed item. Items without a link or with
// stripped text shorter than minFeedTextLen are rejected.
func (f *Fetcher) feedItemCandidate(source *models.NewsSource, item *gofeed.Item) (Candidate, bool) {
	link, err := canonicalURL(source.URL, item.Link)
	if err != nil {
		f.logger.Debug("skipping feed item with unusable link",
			"source_id", source.ID, "link", item.Link, "error", err)
		return Candidate{}, false
	}

	// Content preference: full content, then description.
	raw := item.Content
	if raw == "" {
		raw = item.Description
	}
	text := truncateRunes(normalizeText(stripHTML(raw)), maxFeedTextLen)
	if len([]rune(text)) < minFeedTextLen {
		f.logger.Debug("skipping short feed item",
			"source_id", source.ID, "link", link, "length", len([]rune(text)))
		return Candidate{}, false
	}

	title := truncateRunes(normalizeText(stripHTML(item.Title)), maxTitleLen)
	if title == "" {
		title = link
	}

	// Publication time is only set when the feed carries one; never
	// substitute the fetch time.
	return Candidate{
		Title:       title,
		URL:         link,
		PublishedAt: item.PublishedParsed,
		Text:        text,
	}, true
}
