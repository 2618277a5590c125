package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/garethmul/newsmill/pkg/fetcher"
	"github.com/garethmul/newsmill/pkg/generator"
	"github.com/garethmul/newsmill/pkg/models"
	"github.com/garethmul/newsmill/pkg/queue"
	"github.com/garethmul/newsmill/pkg/services"
)

// loadSources resolves the payload's source selection: explicit IDs, or all
// active sources when none are listed.
func (p *Pipeline) loadSources(ctx context.Context, accountID string, ids []int64) ([]*models.NewsSource, error) {
	if len(ids) > 0 {
		sources, err := p.sources.ListSourcesByIDs(ctx, accountID, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load sources: %w", err)
		}
		return sources, nil
	}
	sources, err := p.sources.ListSources(ctx, accountID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load active sources: %w", err)
	}
	return sources, nil
}

// ingestSources fetches every source, accumulating totals. Item-level
// failures are logged against the job; the returned count is how many
// sources failed. Progress runs from base to base+span.
func (p *Pipeline) ingestSources(ctx context.Context, run *queue.JobRun, sources []*models.NewsSource, base, span int) (fetcher.Result, int, error) {
	var total fetcher.Result
	failed := 0
	for i, source := range sources {
		if err := ctx.Err(); err != nil {
			return total, failed, err
		}
		result, err := p.fetcher.IngestSource(ctx, source)
		if err != nil {
			failed++
			run.Log.Warn(ctx, fmt.Sprintf("source %d (%s) failed: %v", source.ID, source.Name, err), nil)
		} else {
			total.Found += result.Found
			total.New += result.New
			total.Duplicates += result.Duplicates
			total.Skipped += result.Skipped
		}
		run.Progress(ctx, base+((i+1)*span)/len(sources),
			fmt.Sprintf("fetched %d/%d sources", i+1, len(sources)))
	}
	return total, failed, nil
}

func (p *Pipeline) handleNewsAggregation(ctx context.Context, run *queue.JobRun) error {
	payload, err := decodePayload[models.NewsAggregationPayload](run)
	if err != nil {
		return err
	}

	sources, err := p.loadSources(ctx, run.AccountID(), payload.SourceIDs)
	if err != nil {
		return err
	}
	run.Progress(ctx, 10, fmt.Sprintf("loaded %d sources", len(sources)))
	if len(sources) == 0 {
		run.Log.Info(ctx, "no sources to fetch", nil)
		run.SetSummary("no active sources")
		return nil
	}

	total, failed, err := p.ingestSources(ctx, run, sources, 10, 90)
	if err != nil {
		return err
	}
	if failed == len(sources) {
		return fmt.Errorf("all %d sources failed", failed)
	}

	run.SetSummary(fmt.Sprintf("fetched %d sources: %d new, %d duplicates, %d skipped",
		len(sources)-failed, total.New, total.Duplicates, total.Skipped))
	return nil
}

func (p *Pipeline) handleAIAnalysis(ctx context.Context, run *queue.JobRun) error {
	payload, err := decodePayload[models.AIAnalysisPayload](run)
	if err != nil {
		return err
	}
	accountID := run.AccountID()

	var articles []*models.ScrapedArticle
	if len(payload.ArticleIDs) > 0 {
		articles, err = p.articles.ListArticlesByIDs(ctx, accountID, payload.ArticleIDs)
	} else {
		limit := payload.Limit
		if limit == 0 {
			limit = defaultAnalysisLimit
		}
		articles, err = p.articles.ListArticles(ctx, accountID, models.ArticleStatusScraped, limit)
	}
	if err != nil {
		return fmt.Errorf("failed to select articles: %w", err)
	}
	run.Progress(ctx, 10, fmt.Sprintf("selected %d articles", len(articles)))
	if len(articles) == 0 {
		run.Log.Info(ctx, "no articles to analyze", nil)
		run.SetSummary("no articles to analyze")
		return nil
	}

	result, err := p.analyzer.AnalyzeBatch(ctx, accountID, &run.Job.JobID, articles, func(done, total int) {
		run.Progress(ctx, 10+(done*85)/total, fmt.Sprintf("analyzed %d/%d", done, total))
	})
	if err != nil {
		return err
	}
	if result.Analyzed == 0 {
		return fmt.Errorf("all %d articles failed analysis", result.Failed)
	}

	run.SetSummary(fmt.Sprintf("analyzed %d, failed %d", result.Analyzed, result.Failed))
	return nil
}

func (p *Pipeline) handleURLAnalysis(ctx context.Context, run *queue.JobRun) error {
	payload, err := decodePayload[models.URLAnalysisPayload](run)
	if err != nil {
		return err
	}
	accountID := run.AccountID()

	candidate, err := p.fetcher.FetchPage(ctx, payload.URL)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", payload.URL, err)
	}
	if candidate == nil {
		return fmt.Errorf("page at %s has too little usable text", payload.URL)
	}
	run.Progress(ctx, 10, "page fetched")

	article, err := p.articles.CreateArticle(ctx, accountID, services.CreateArticleParams{
		Title:           candidate.Title,
		URL:             candidate.URL,
		PublicationDate: candidate.PublishedAt,
		FullText:        candidate.Text,
	})
	if errors.Is(err, services.ErrAlreadyExists) {
		run.Log.Info(ctx, fmt.Sprintf("url already ingested: %s", payload.URL), nil)
		run.SetSummary("url already ingested")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to store article: %w", err)
	}
	run.Progress(ctx, 65, "article inserted")

	if _, err := p.analyzer.AnalyzeArticle(ctx, accountID, &run.Job.JobID, article); err != nil {
		return err
	}
	run.Progress(ctx, 95, "article analyzed")

	run.SetSummary(fmt.Sprintf("analyzed %s", payload.URL))
	return nil
}

func (p *Pipeline) handleContentGeneration(ctx context.Context, run *queue.JobRun) error {
	payload, err := decodePayload[models.ContentGenerationPayload](run)
	if err != nil {
		return err
	}
	accountID := run.AccountID()

	if payload.ArticleID != 0 {
		article, err := p.articles.GetArticle(ctx, accountID, payload.ArticleID)
		if err != nil {
			return fmt.Errorf("failed to load article %d: %w", payload.ArticleID, err)
		}
		run.Progress(ctx, 10, "article loaded")

		draft, err := p.generator.GenerateFromArticle(ctx, accountID, &run.Job.JobID, article, generator.Options{
			Tone: payload.Tone,
			Progress: func(pct int, detail string) {
				run.Progress(ctx, pct, detail)
			},
		})
		if err != nil {
			return err
		}
		run.SetSummary(fmt.Sprintf("generated article %d (%d words)", draft.ID, draft.WordCount))
		return nil
	}

	// No article given: generate from the most relevant analyzed articles.
	limit := payload.Limit
	if limit == 0 {
		limit = models.DefaultGenerateTop
	}
	top, err := p.articles.TopAnalyzedByRelevance(ctx, accountID, limit)
	if err != nil {
		return fmt.Errorf("failed to select top articles: %w", err)
	}
	run.Progress(ctx, 10, fmt.Sprintf("selected %d articles", len(top)))
	if len(top) == 0 {
		run.Log.Info(ctx, "no analyzed articles to generate from", nil)
		run.SetSummary("no analyzed articles")
		return nil
	}

	generated, failed := 0, 0
	for i, article := range top {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := p.generator.GenerateFromArticle(ctx, accountID, &run.Job.JobID, article, generator.Options{Tone: payload.Tone})
		switch {
		case errors.Is(err, services.ErrAlreadyGenerated):
			run.Log.Warn(ctx, fmt.Sprintf("article %d already has an active generated article, skipped", article.ID), nil)
		case err != nil:
			failed++
			run.Log.Warn(ctx, fmt.Sprintf("generation failed for article %d: %v", article.ID, err), nil)
		default:
			generated++
		}
		run.Progress(ctx, 10+((i+1)*85)/len(top), fmt.Sprintf("generated %d/%d", i+1, len(top)))
	}
	if generated == 0 && failed == len(top) {
		return fmt.Errorf("generation failed for all %d articles", len(top))
	}

	run.SetSummary(fmt.Sprintf("generated %d of %d articles", generated, len(top)))
	return nil
}
