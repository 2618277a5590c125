package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/garethmul/newsmill/pkg/generator"
	"github.com/garethmul/newsmill/pkg/models"
	"github.com/garethmul/newsmill/pkg/queue"
	"github.com/garethmul/newsmill/pkg/services"
)

// handleFullCycle chains aggregation, analysis and generation in-process.
// Phase budgets: 10-35 fetch, 35-65 analyze, 65-95 generate. A phase that
// produces nothing short-circuits to completion with a summary saying so.
func (p *Pipeline) handleFullCycle(ctx context.Context, run *queue.JobRun) error {
	payload, err := decodePayload[models.FullCyclePayload](run)
	if err != nil {
		return err
	}
	accountID := run.AccountID()
	generateTop := payload.GenerateTop
	if generateTop == 0 {
		generateTop = models.DefaultGenerateTop
	}

	// Phase 1: aggregation.
	sources, err := p.loadSources(ctx, accountID, payload.SourceIDs)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		run.Log.Info(ctx, "no sources to fetch, stopping", nil)
		run.SetSummary("no active sources")
		return nil
	}
	run.Log.Info(ctx, fmt.Sprintf("aggregation phase: %d sources", len(sources)), nil)
	run.Progress(ctx, 10, fmt.Sprintf("loaded %d sources", len(sources)))

	fetched, failedSources, err := p.ingestSources(ctx, run, sources, 10, 25)
	if err != nil {
		return err
	}
	if failedSources == len(sources) {
		return fmt.Errorf("all %d sources failed", failedSources)
	}
	run.Log.Info(ctx, fmt.Sprintf("aggregation done: %d new, %d duplicates", fetched.New, fetched.Duplicates), nil)

	// Phase 2: analysis of everything still in scraped status, not only
	// this run's articles, so earlier partial runs get swept up too.
	scraped, err := p.articles.ListArticles(ctx, accountID, models.ArticleStatusScraped, defaultAnalysisLimit)
	if err != nil {
		return fmt.Errorf("failed to select scraped articles: %w", err)
	}
	if len(scraped) == 0 {
		run.Log.Info(ctx, "nothing to analyze, stopping", nil)
		run.SetSummary(fmt.Sprintf("fetched %d new, nothing to analyze", fetched.New))
		return nil
	}
	run.Log.Info(ctx, fmt.Sprintf("analysis phase: %d articles", len(scraped)), nil)

	batch, err := p.analyzer.AnalyzeBatch(ctx, accountID, &run.Job.JobID, scraped, func(done, total int) {
		run.Progress(ctx, 35+(done*30)/total, fmt.Sprintf("analyzed %d/%d", done, total))
	})
	if err != nil {
		return err
	}
	run.Log.Info(ctx, fmt.Sprintf("analysis done: %d analyzed, %d failed", batch.Analyzed, batch.Failed), nil)
	if batch.Analyzed == 0 {
		run.SetSummary(fmt.Sprintf("fetched %d new, analysis failed for all %d articles", fetched.New, batch.Failed))
		return nil
	}

	// Phase 3: generation from the most relevant analyzed articles.
	top, err := p.articles.TopAnalyzedByRelevance(ctx, accountID, generateTop)
	if err != nil {
		return fmt.Errorf("failed to select top articles: %w", err)
	}
	if len(top) == 0 {
		run.SetSummary(fmt.Sprintf("fetched %d new, analyzed %d, nothing to generate", fetched.New, batch.Analyzed))
		return nil
	}
	run.Log.Info(ctx, fmt.Sprintf("generation phase: %d articles", len(top)), nil)

	generated := 0
	for i, article := range top {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := p.generator.GenerateFromArticle(ctx, accountID, &run.Job.JobID, article, generator.Options{})
		switch {
		case errors.Is(err, services.ErrAlreadyGenerated):
			run.Log.Warn(ctx, fmt.Sprintf("article %d already has an active generated article, skipped", article.ID), nil)
		case err != nil:
			run.Log.Warn(ctx, fmt.Sprintf("generation failed for article %d: %v", article.ID, err), nil)
		default:
			generated++
		}
		run.Progress(ctx, 65+((i+1)*30)/len(top), fmt.Sprintf("generated %d/%d", i+1, len(top)))
	}

	run.SetSummary(fmt.Sprintf("fetched %d new, analyzed %d, generated %d",
		fetched.New, batch.Analyzed, generated))
	return nil
}
