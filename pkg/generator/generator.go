// Package generator turns an analyzed source article into a generated blog
// post draft plus derived content assets by running the account's template
// graph: one AI call per active template, in execution order, each later
// template seeing the earlier templates' outputs.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/garethmul/newsmill/pkg/llm"
	"github.com/garethmul/newsmill/pkg/models"
	"github.com/garethmul/newsmill/pkg/services"
	"github.com/garethmul/newsmill/pkg/templates"
)

// DefaultTone is used when the caller does not pick one.
const DefaultTone = "professional"

// Options tune a single generation run.
type Options struct {
	// Tone is substituted into the {{tone}} placeholder.
	Tone string

	// Progress, when set, receives phase checkpoints as the run advances.
	Progress func(pct int, detail string)
}

func (o Options) notify(pct int, detail string) {
	if o.Progress != nil {
		o.Progress(pct, detail)
	}
}

// Generator produces generated articles from analyzed source articles.
type Generator struct {
	client    *llm.Client
	registry  *templates.Registry
	articles  *services.ArticleService
	generated *services.GeneratedService
	logger    *slog.Logger
}

// New creates a generator backed by the given AI client.
func New(client *llm.Client, registry *templates.Registry, articles *services.ArticleService, generated *services.GeneratedService, logger *slog.Logger) *Generator {
	return &Generator{
		client:    client,
		registry:  registry,
		articles:  articles,
		generated: generated,
		logger:    logger.With("component", "generator"),
	}
}

// GenerateFromArticle runs the account's generation templates against the
// source article. The draft GeneratedArticle is created up front so every
// artifact has an owner; each template then gets one AI call, its response
// is parsed per its parsing method, and the artifact is stored before the
// next template begins. The template whose category is "blog" (or the first
// template when none is) fills the article itself; every other template adds
// a GeneratedContent row. A failed template is logged and skipped so the
// rest of the run still produces its artifacts. On completion the draft
// moves to review_pending and the source article to processed.
//
// A source article with an active generated article already attached returns
// ErrAlreadyGenerated.
func (g *Generator) GenerateFromArticle(ctx context.Context, accountID string, jobID *string, article *models.ScrapedArticle, opts Options) (*models.GeneratedArticle, error) {
	exists, err := g.generated.ActiveExistsForSource(ctx, accountID, article.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing generated article: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("article %d: %w", article.ID, services.ErrAlreadyGenerated)
	}

	stages, err := g.registry.GenerationStages(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve generation templates: %w", err)
	}

	draft, err := g.generated.CreateDraft(ctx, accountID, &article.ID, article.Title)
	if err != nil {
		return nil, fmt.Errorf("failed to create draft for article %d: %w", article.ID, err)
	}
	opts.notify(35, fmt.Sprintf("running %d templates", len(stages)))

	vars := g.initialContext(article, opts.Tone)
	mainIdx := mainStageIndex(stages)

	succeeded := 0
	for i, stage := range stages {
		if err := ctx.Err(); err != nil {
			g.abandonDraft(accountID, draft.ID)
			return nil, err
		}

		text, err := g.runStage(ctx, accountID, jobID, stage, vars)
		if err != nil {
			g.logger.Warn("generation template failed, continuing",
				"article_id", article.ID, "template", stage.TemplateName, "error", err)
			vars[stage.Category+"_output"] = ""
			continue
		}

		if i == mainIdx {
			updated, err := g.applyMainStage(ctx, accountID, draft.ID, article.ID, text)
			if err != nil {
				g.logger.Warn("main template output unusable",
					"article_id", article.ID, "template", stage.TemplateName, "error", err)
				vars[stage.Category+"_output"] = ""
				continue
			}
			draft = updated
		} else {
			if err := g.storeContent(ctx, accountID, draft.ID, stage, text); err != nil {
				g.logger.Warn("failed to store template output",
					"article_id", article.ID, "template", stage.TemplateName, "error", err)
				continue
			}
		}

		succeeded++
		// Later templates see this stage's raw output.
		vars[stage.Category+"_output"] = text
		opts.notify(35+((i+1)*60)/len(stages),
			fmt.Sprintf("template %d/%d done", i+1, len(stages)))
	}

	if succeeded == 0 {
		g.abandonDraft(accountID, draft.ID)
		return nil, fmt.Errorf("all %d generation templates failed for article %d", len(stages), article.ID)
	}

	draft, err = g.generated.TransitionStatus(ctx, accountID, draft.ID, models.GeneratedStatusReviewPending)
	if err != nil {
		return nil, fmt.Errorf("failed to promote draft to review: %w", err)
	}

	if err := g.articles.SetArticleStatus(ctx, accountID, article.ID, models.ArticleStatusProcessed); err != nil {
		g.logger.Warn("failed to mark source article processed",
			"article_id", article.ID, "error", err)
	}

	g.logger.Info("article generated",
		"article_id", article.ID,
		"generated_id", draft.ID,
		"templates_run", len(stages),
		"templates_succeeded", succeeded,
		"word_count", draft.WordCount)
	return draft, nil
}

// initialContext seeds the substitution context with the source article's
// fields. Both the short and the C-style names are provided so account
// templates written against either keep working.
func (g *Generator) initialContext(article *models.ScrapedArticle, tone string) map[string]string {
	if tone == "" {
		tone = DefaultTone
	}
	summary := ""
	if article.SummaryAI != nil {
		summary = *article.SummaryAI
	}
	return map[string]string{
		"title":           article.Title,
		"url":             article.URL,
		"article_content": article.FullText,
		"full_text":       article.FullText,
		"summary":         summary,
		"analysis_output": summary,
		"keywords":        strings.Join(article.KeywordsAI, ", "),
		"tone":            tone,
	}
}

// mainStageIndex picks the template that fills the GeneratedArticle itself:
// the first with the blog category, or the first overall.
func mainStageIndex(stages []*models.ResolvedPrompt) int {
	for i, stage := range stages {
		if stage.Category == models.CategoryBlog {
			return i
		}
	}
	return 0
}

// runStage renders one template against the current context and makes its
// AI call.
func (g *Generator) runStage(ctx context.Context, accountID string, jobID *string, stage *models.ResolvedPrompt, vars map[string]string) (string, error) {
	rendered := templates.Render(stage.PromptText, vars)
	resp, err := g.client.Generate(ctx, llm.Call{
		AccountID: accountID,
		JobID:     jobID,
		Request: llm.Request{
			Prompt:            rendered,
			SystemInstruction: stage.SystemInstruction,
		},
	})
	if err != nil {
		return "", err
	}
	if resp.Truncated {
		g.logger.Warn("template response truncated at token limit",
			"template", stage.TemplateName, "model", resp.Model)
	}
	return resp.Text, nil
}

// applyMainStage parses the main template's output as a post and writes it
// onto the draft.
func (g *Generator) applyMainStage(ctx context.Context, accountID string, draftID, articleID int64, text string) (*models.GeneratedArticle, error) {
	post, err := parsePost(text)
	if err != nil {
		return nil, err
	}
	updated, err := g.generated.UpdateDraftPost(ctx, accountID, draftID, post.Title, post.Body, post.WordCount)
	if err != nil {
		return nil, fmt.Errorf("failed to store post for article %d: %w", articleID, err)
	}
	return updated, nil
}

// storeContent parses a non-main template's output per its parsing method
// and appends the GeneratedContent row. A parse failure is not fatal: the
// raw text is stored with a warning so the user can recover it.
func (g *Generator) storeContent(ctx context.Context, accountID string, draftID int64, stage *models.ResolvedPrompt, text string) error {
	content, warning := parseContent(stage.ParsingMethod, text)
	if warning != "" {
		g.logger.Warn("template output did not parse, storing raw text",
			"template", stage.TemplateName, "parsing_method", stage.ParsingMethod,
			"warning", warning)
	}
	_, err := g.generated.AddContent(ctx, accountID, draftID, services.ContentItem{
		ContentType: stage.Category,
		Content:     content,
		Metadata:    contentMetadata(stage, warning),
	})
	return err
}

// contentMetadata records which template and version produced a content row.
func contentMetadata(stage *models.ResolvedPrompt, warning string) json.RawMessage {
	meta := map[string]any{
		"template":       stage.TemplateName,
		"category":       stage.Category,
		"media_type":     stage.MediaType,
		"parsing_method": stage.ParsingMethod,
	}
	if stage.VersionNumber > 0 {
		meta["version"] = stage.VersionNumber
	}
	if warning != "" {
		meta["parse_warning"] = warning
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

// abandonDraft archives a draft whose run produced nothing usable, freeing
// the source article's generation slot. Uses a fresh context so the cleanup
// happens even when the run was cancelled.
func (g *Generator) abandonDraft(accountID string, draftID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := g.generated.TransitionStatus(ctx, accountID, draftID, models.GeneratedStatusArchived); err != nil {
		g.logger.Warn("failed to archive abandoned draft",
			"generated_id", draftID, "error", err)
	}
}
