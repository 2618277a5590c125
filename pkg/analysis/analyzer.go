// Package analysis turns scraped articles into analyzed ones: three AI calls
// per article produce a summary, a keyword list and a relevance score, which
// are written back onto the article row.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/garethmul/newsmill/pkg/config"
	"github.com/garethmul/newsmill/pkg/llm"
	"github.com/garethmul/newsmill/pkg/models"
	"github.com/garethmul/newsmill/pkg/services"
	"github.com/garethmul/newsmill/pkg/templates"
)

// Analyzer runs the article analysis prompts and persists the outcome.
type Analyzer struct {
	client   *llm.Client
	registry *templates.Registry
	articles *services.ArticleService
	cfg      *config.AnalysisConfig
	logger   *slog.Logger
}

// NewAnalyzer creates an analyzer backed by the given AI client.
func NewAnalyzer(client *llm.Client, registry *templates.Registry, articles *services.ArticleService, cfg *config.AnalysisConfig, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		client:   client,
		registry: registry,
		articles: articles,
		cfg:      cfg,
		logger:   logger.With("component", "analyzer"),
	}
}

// AnalyzeArticle runs one article through the three analysis prompts —
// summary, keywords, relevance — in that order, with at least CallSpacing
// between consecutive calls so one article does not burn the provider's
// rate budget. On any AI failure the article is marked failed and the error
// returned; a relevance response that cannot be parsed still counts as
// analyzed, with a zero score.
func (a *Analyzer) AnalyzeArticle(ctx context.Context, accountID string, jobID *string, article *models.ScrapedArticle) (*models.ScrapedArticle, error) {
	var result models.AnalysisResult

	summaryText, err := a.callPrompt(ctx, accountID, jobID, models.TemplateArticleSummary, article)
	if err != nil {
		return nil, a.failArticle(ctx, accountID, article.ID, err)
	}
	result.Summary = parseSummary(summaryText)

	if err := a.pause(ctx); err != nil {
		return nil, err
	}
	keywordsText, err := a.callPrompt(ctx, accountID, jobID, models.TemplateArticleKeywords, article)
	if err != nil {
		return nil, a.failArticle(ctx, accountID, article.ID, err)
	}
	result.Keywords = parseKeywords(keywordsText)

	if err := a.pause(ctx); err != nil {
		return nil, err
	}
	relevanceText, err := a.callPrompt(ctx, accountID, jobID, models.TemplateArticleRelevance, article)
	if err != nil {
		return nil, a.failArticle(ctx, accountID, article.ID, err)
	}
	score, ok := parseScore(relevanceText)
	if !ok {
		a.logger.Warn("relevance response has no parseable score, recording 0.0",
			"article_id", article.ID)
	}
	result.RelevanceScore = score

	updated, err := a.articles.ApplyAnalysis(ctx, accountID, article.ID, result)
	if err != nil {
		return nil, fmt.Errorf("failed to apply analysis to article %d: %w", article.ID, err)
	}

	a.logger.Info("article analyzed",
		"article_id", article.ID,
		"relevance", result.RelevanceScore,
		"keywords", len(result.Keywords))
	return updated, nil
}

// callPrompt resolves one analysis template, renders it against the article
// and makes the AI call.
func (a *Analyzer) callPrompt(ctx context.Context, accountID string, jobID *string, name string, article *models.ScrapedArticle) (string, error) {
	prompt, err := a.registry.Resolve(ctx, accountID, name)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s prompt: %w", name, err)
	}

	rendered := templates.Render(prompt.PromptText, map[string]string{
		"title":     article.Title,
		"url":       article.URL,
		"full_text": article.FullText,
	})

	resp, err := a.client.Generate(ctx, llm.Call{
		AccountID: accountID,
		JobID:     jobID,
		Request: llm.Request{
			Prompt:            rendered,
			SystemInstruction: prompt.SystemInstruction,
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s call failed for article %d: %w", name, article.ID, err)
	}
	if resp.Truncated {
		a.logger.Warn("analysis response truncated at token limit",
			"article_id", article.ID, "template", name, "model", resp.Model)
	}
	return resp.Text, nil
}

// pause waits out the configured spacing between consecutive calls for one
// article.
func (a *Analyzer) pause(ctx context.Context) error {
	if a.cfg.CallSpacing <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(a.cfg.CallSpacing):
		return nil
	}
}

// failArticle marks the article failed and returns the original error.
func (a *Analyzer) failArticle(ctx context.Context, accountID string, articleID int64, cause error) error {
	if err := a.articles.SetArticleStatus(ctx, accountID, articleID, models.ArticleStatusFailed); err != nil {
		a.logger.Warn("failed to mark article failed",
			"article_id", articleID, "error", err)
	}
	return fmt.Errorf("failed to analyze article %d: %w", articleID, cause)
}
