package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/garethmul/newsmill/pkg/models"
)

// Default selectors for scrape-type sources; a source's configured selectors
// override them individually.
const (
	defaultArticleSelector = "article a"
	defaultLinkAttr        = "href"
)

// fetchScrape downloads a source's index page, selects candidate article
// links, and fetches each linked page for its title and body text.
func (f *Fetcher) fetchScrape(ctx context.Context, source *models.NewsSource) ([]Candidate, int, error) {
	body, err := f.get(ctx, source.URL)
	if err != nil {
		return nil, 0, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse index page %q: %w", source.URL, err)
	}

	links := f.selectArticleLinks(doc, source)

	var (
		candidates []Candidate
		skipped    int
	)
	for _, link := range links {
		candidate, err := f.FetchPage(ctx, link)
		if err != nil {
			f.logger.Warn("failed to fetch linked article",
				"source_id", source.ID, "url", link, "error", err)
			skipped++
			continue
		}
		if candidate == nil {
			skipped++
			continue
		}
		candidates = append(candidates, *candidate)
	}
	return candidates, skipped, nil
}

// selectArticleLinks applies the source's selectors (or defaults) to the
// index page and returns absolutised, de-duplicated article URLs, capped at
// MaxScrapeLinks.
func (f *Fetcher) selectArticleLinks(doc *goquery.Document, source *models.NewsSource) []string {
	selector := source.Selectors.Article
	if selector == "" {
		selector = defaultArticleSelector
	}
	linkAttr := source.Selectors.Link
	if linkAttr == "" {
		linkAttr = defaultLinkAttr
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr(linkAttr)
		if !ok {
			// Selector may have matched a container; look for a nested link.
			href, ok = sel.Find("a").First().Attr(linkAttr)
		}
		if !ok || !usableLink(href) {
			return true
		}

		link, err := canonicalURL(source.URL, href)
		if err != nil {
			return true
		}
		if _, dup := seen[link]; dup {
			return true
		}
		seen[link] = struct{}{}
		links = append(links, link)
		return len(links) < f.cfg.MaxScrapeLinks
	})
	return links
}

// usableLink filters javascript:, mailto:, tel: and in-page anchors.
func usableLink(href string) bool {
	href = strings.TrimSpace(strings.ToLower(href))
	if href == "" || strings.HasPrefix(href, "#") {
		return false
	}
	for _, scheme := range []string{"javascript:", "mailto:", "tel:"} {
		if strings.HasPrefix(href, scheme) {
			return false
		}
	}
	return true
}

// FetchPage downloads one article page and extracts its title and main text.
// Returns (nil, nil) when the page yields a body shorter than the scrape
// minimum. Also used directly by url_analysis jobs.
func (f *Fetcher) FetchPage(ctx context.Context, pageURL string) (*Candidate, error) {
	body, err := f.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page %q: %w", pageURL, err)
	}

	text := truncateRunes(normalizeText(extractMainText(doc)), maxScrapeTextLen)
	if len([]rune(text)) < minScrapeTextLen {
		f.logger.Debug("page body too short", "url", pageURL, "length", len([]rune(text)))
		return nil, nil
	}

	title := truncateRunes(normalizeText(extractTitle(doc)), maxTitleLen)
	if title == "" {
		title = pageURL
	}

	return &Candidate{Title: title, URL: pageURL, Text: text}, nil
}

// extractTitle tries og:title, then <title>, then the first <h1>.
func extractTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok && strings.TrimSpace(og) != "" {
		return og
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return doc.Find("h1").First().Text()
}

// mainContentSelectors are tried in order; the first that yields text wins.
var mainContentSelectors = []string{"article", "main", `[role="main"]`}

// extractMainText pulls the page's readable text: a recognised content
// container when present, else the body with chrome elements removed.
func extractMainText(doc *goquery.Document) string {
	for _, selector := range mainContentSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		if text := strings.TrimSpace(sel.Text()); text != "" {
			return text
		}
	}

	body := doc.Find("body").Clone()
	body.Find("script, style, nav, header, footer, aside, noscript").Remove()
	return body.Text()
}
