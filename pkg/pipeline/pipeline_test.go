package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garethmul/newsmill/pkg/analysis"
	"github.com/garethmul/newsmill/pkg/config"
	"github.com/garethmul/newsmill/pkg/fetcher"
	"github.com/garethmul/newsmill/pkg/generator"
	"github.com/garethmul/newsmill/pkg/llm"
	"github.com/garethmul/newsmill/pkg/models"
	"github.com/garethmul/newsmill/pkg/queue"
	"github.com/garethmul/newsmill/pkg/services"
	"github.com/garethmul/newsmill/pkg/templates"
	"github.com/garethmul/newsmill/test/util"
)

const pipelineAccount = "acct-pipe"

// pipelineProvider answers the analysis and generation prompts with fixed
// responses, telling them apart by the built-in prompt wording.
type pipelineProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *pipelineProvider) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	text := "unmatched prompt"
	switch {
	case strings.Contains(req.Prompt, "Summarise"):
		text = "Stubbed summary."
	case strings.Contains(req.Prompt, "keywords"):
		text = "stub, test"
	case strings.Contains(req.Prompt, "0.0 and 1.0"):
		text = "0.7"
	case strings.Contains(req.Prompt, "Write a blog post"):
		text = "# Stub Post\n\nStubbed body text."
	case strings.Contains(req.Prompt, "social media posts"):
		text = `{"posts":[{"platform":"x","text":"Stub social."}]}`
	}
	return &llm.Response{Text: text, Model: req.Model, Complete: true}, nil
}

func (p *pipelineProvider) Name() string { return "pipeline-stub" }

type pipelineFixture struct {
	pool      *queue.WorkerPool
	jobs      *services.JobService
	articles  *services.ArticleService
	sources   *services.SourceService
	generated *services.GeneratedService
	provider  *pipelineProvider
}

func setupPipeline(t *testing.T) *pipelineFixture {
	t.Helper()
	client := util.SetupTestDatabase(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	articleService := services.NewArticleService(client)
	sourceService := services.NewSourceService(client)
	templateService := services.NewTemplateService(client)
	generatedService := services.NewGeneratedService(client)
	accountService := services.NewAccountService(client)

	_, err := accountService.CreateAccount(context.Background(), models.CreateAccountRequest{
		AccountID: pipelineAccount,
		Name:      "Pipeline Test",
	})
	require.NoError(t, err)

	provider := &pipelineProvider{}
	llmCfg := config.DefaultLLMConfig()
	llmCfg.RequestsPerSecond = 1000
	llmCfg.Burst = 100
	aiClient := llm.NewClient(provider, nil, llmCfg, logger)

	registry := templates.NewRegistry(templateService, logger)
	analysisCfg := config.DefaultAnalysisConfig()
	analysisCfg.CallSpacing = 0
	analyzer := analysis.NewAnalyzer(aiClient, registry, articleService, analysisCfg, logger)
	gen := generator.New(aiClient, registry, articleService, generatedService, logger)
	fetch := fetcher.New(config.DefaultFetcherConfig(), articleService, sourceService, logger)

	queueCfg := config.DefaultQueueConfig()
	queueCfg.WorkerCount = 2
	queueCfg.PollInterval = 10 * time.Millisecond
	queueCfg.PollIntervalJitter = 0
	queueCfg.CancelCheckInterval = 50 * time.Millisecond

	jobService := services.NewJobService(client, queueCfg.DefaultMaxRetries)
	pool := queue.NewWorkerPool(jobService, queueCfg, logger)
	New(fetch, analyzer, gen, articleService, sourceService, logger).Register(pool)

	require.NoError(t, pool.Start(context.Background()))
	t.Cleanup(func() { pool.Stop(context.Background()) })

	return &pipelineFixture{
		pool:      pool,
		jobs:      jobService,
		articles:  articleService,
		sources:   sourceService,
		generated: generatedService,
		provider:  provider,
	}
}

func (f *pipelineFixture) runJob(t *testing.T, jobType models.JobType, payload string) *models.Job {
	t.Helper()
	job, err := f.jobs.CreateJob(context.Background(), pipelineAccount, models.CreateJobRequest{
		JobType: jobType,
		Payload: json.RawMessage(payload),
	})
	require.NoError(t, err)

	var done *models.Job
	require.Eventually(t, func() bool {
		got, err := f.jobs.GetJob(context.Background(), pipelineAccount, job.JobID)
		if err != nil {
			return false
		}
		done = got
		return got.Status.Terminal()
	}, 15*time.Second, 20*time.Millisecond)
	return done
}

func feedServer(t *testing.T, items int) *httptest.Server {
	t.Helper()
	filler := strings.Repeat("Plenty of article body text to pass the minimum. ", 4)
	var entries strings.Builder
	for i := 0; i < items; i++ {
		fmt.Fprintf(&entries, `<item>
			<title>Item %d</title>
			<link>/story-%d</link>
			<description>%s</description>
		</item>`, i, i, filler)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>Test Feed</title>%s</channel></rss>`, entries.String())
	}))
	t.Cleanup(server.Close)
	return server
}

func createFeedSource(t *testing.T, f *pipelineFixture, url string) *models.NewsSource {
	t.Helper()
	source, err := f.sources.CreateSource(context.Background(), pipelineAccount, models.CreateSourceRequest{
		Name: "Test Feed",
		URL:  url,
		Type: models.SourceTypeFeed,
	})
	require.NoError(t, err)
	return source
}

func seedScraped(t *testing.T, f *pipelineFixture, n int) []*models.ScrapedArticle {
	t.Helper()
	articles := make([]*models.ScrapedArticle, n)
	for i := range articles {
		article, err := f.articles.CreateArticle(context.Background(), pipelineAccount, services.CreateArticleParams{
			Title:    fmt.Sprintf("Seeded %d", i),
			URL:      fmt.Sprintf("https://example.com/seeded-%d", i),
			FullText: "Seeded body text.",
		})
		require.NoError(t, err)
		articles[i] = article
	}
	return articles
}

func TestNewsAggregationJob(t *testing.T) {
	f := setupPipeline(t)
	server := feedServer(t, 2)
	createFeedSource(t, f, server.URL)

	done := f.runJob(t, models.JobTypeNewsAggregation, `{}`)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Contains(t, done.ProgressDetail, "2 new")

	stored, err := f.articles.ListArticles(context.Background(), pipelineAccount, models.ArticleStatusScraped, 10)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestNewsAggregationJobNoSources(t *testing.T) {
	f := setupPipeline(t)
	done := f.runJob(t, models.JobTypeNewsAggregation, `{}`)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, "no active sources", done.ProgressDetail)
}

func TestNewsAggregationJobAllSourcesFail(t *testing.T) {
	f := setupPipeline(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)
	createFeedSource(t, f, server.URL)

	done := f.runJob(t, models.JobTypeNewsAggregation, `{}`)
	assert.Equal(t, models.JobStatusFailed, done.Status)
	require.NotNil(t, done.ErrorMessage)
	assert.Contains(t, *done.ErrorMessage, "all 1 sources failed")
}

func TestAIAnalysisJob(t *testing.T) {
	f := setupPipeline(t)
	seedScraped(t, f, 3)

	done := f.runJob(t, models.JobTypeAIAnalysis, `{}`)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, "analyzed 3, failed 0", done.ProgressDetail)

	analyzed, err := f.articles.ListArticles(context.Background(), pipelineAccount, models.ArticleStatusAnalyzed, 10)
	require.NoError(t, err)
	assert.Len(t, analyzed, 3)
}

func TestAIAnalysisJobSelectedArticles(t *testing.T) {
	f := setupPipeline(t)
	seeded := seedScraped(t, f, 2)

	payload := fmt.Sprintf(`{"articleIds": [%d]}`, seeded[0].ID)
	done := f.runJob(t, models.JobTypeAIAnalysis, payload)
	assert.Equal(t, models.JobStatusCompleted, done.Status)

	first, err := f.articles.GetArticle(context.Background(), pipelineAccount, seeded[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ArticleStatusAnalyzed, first.Status)

	second, err := f.articles.GetArticle(context.Background(), pipelineAccount, seeded[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ArticleStatusScraped, second.Status, "unselected article untouched")
}

func TestURLAnalysisJob(t *testing.T) {
	f := setupPipeline(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<html><head><title>Single Page</title></head><body><article>%s</article></body></html>`,
			strings.Repeat("Readable page content. ", 10))
	}))
	t.Cleanup(server.Close)

	done := f.runJob(t, models.JobTypeURLAnalysis, fmt.Sprintf(`{"url": %q}`, server.URL))
	assert.Equal(t, models.JobStatusCompleted, done.Status)

	analyzed, err := f.articles.ListArticles(context.Background(), pipelineAccount, models.ArticleStatusAnalyzed, 10)
	require.NoError(t, err)
	require.Len(t, analyzed, 1)
	assert.Equal(t, "Single Page", analyzed[0].Title)
}

func TestURLAnalysisJobThinPage(t *testing.T) {
	f := setupPipeline(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><p>tiny</p></body></html>`)
	}))
	t.Cleanup(server.Close)

	done := f.runJob(t, models.JobTypeURLAnalysis, fmt.Sprintf(`{"url": %q}`, server.URL))
	assert.Equal(t, models.JobStatusFailed, done.Status)
	require.NotNil(t, done.ErrorMessage)
	assert.Contains(t, *done.ErrorMessage, "too little usable text")
}

func TestContentGenerationJob(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()
	seeded := seedScraped(t, f, 1)
	article, err := f.articles.ApplyAnalysis(ctx, pipelineAccount, seeded[0].ID, models.AnalysisResult{
		Summary:        "A summary.",
		Keywords:       []string{"k"},
		RelevanceScore: 0.9,
	})
	require.NoError(t, err)

	done := f.runJob(t, models.JobTypeContentGeneration, fmt.Sprintf(`{"articleId": %d}`, article.ID))
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Contains(t, done.ProgressDetail, "generated article")

	drafts, err := f.generated.ListGenerated(ctx, pipelineAccount, models.GeneratedStatusReviewPending, 10)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "Stub Post", drafts[0].Title)

	content, err := f.generated.ListContent(ctx, pipelineAccount, drafts[0].ID)
	require.NoError(t, err)
	require.Len(t, content, 1)
	assert.Equal(t, models.CategorySocialMedia, content[0].ContentType)
}

func TestContentGenerationJobMissingArticle(t *testing.T) {
	f := setupPipeline(t)
	done := f.runJob(t, models.JobTypeContentGeneration, `{"articleId": 999999}`)
	assert.Equal(t, models.JobStatusFailed, done.Status)
}

func TestContentGenerationJobTopArticles(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()
	seeded := seedScraped(t, f, 3)
	for i, article := range seeded {
		_, err := f.articles.ApplyAnalysis(ctx, pipelineAccount, article.ID, models.AnalysisResult{
			Summary:        "A summary.",
			Keywords:       []string{"k"},
			RelevanceScore: 0.5 + float64(i)*0.1,
		})
		require.NoError(t, err)
	}

	// No article picked: the job takes the most relevant analyzed articles.
	done := f.runJob(t, models.JobTypeContentGeneration, `{"limit": 2}`)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, "generated 2 of 2 articles", done.ProgressDetail)

	drafts, err := f.generated.ListGenerated(ctx, pipelineAccount, models.GeneratedStatusReviewPending, 10)
	require.NoError(t, err)
	require.Len(t, drafts, 2)

	basedOn := map[int64]bool{}
	for _, draft := range drafts {
		require.NotNil(t, draft.BasedOnArticleID)
		basedOn[*draft.BasedOnArticleID] = true
	}
	assert.True(t, basedOn[seeded[2].ID], "highest relevance generated")
	assert.True(t, basedOn[seeded[1].ID])
	assert.False(t, basedOn[seeded[0].ID], "lowest relevance left out by the limit")
}

func TestContentGenerationJobTopArticlesEmpty(t *testing.T) {
	f := setupPipeline(t)
	done := f.runJob(t, models.JobTypeContentGeneration, `{}`)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, "no analyzed articles", done.ProgressDetail)
}

func TestFullCycleJob(t *testing.T) {
	f := setupPipeline(t)
	server := feedServer(t, 5)
	createFeedSource(t, f, server.URL)

	done := f.runJob(t, models.JobTypeFullCycle, `{"generateTop": 2}`)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Contains(t, done.ProgressDetail, "fetched 5 new")
	assert.Contains(t, done.ProgressDetail, "analyzed 5")
	assert.Contains(t, done.ProgressDetail, "generated 2")

	drafts, err := f.generated.ListGenerated(context.Background(), pipelineAccount, models.GeneratedStatusReviewPending, 10)
	require.NoError(t, err)
	assert.Len(t, drafts, 2)

	logs, err := f.jobs.ListJobLogs(context.Background(), done.JobID)
	require.NoError(t, err)
	assert.NotEmpty(t, logs, "phase boundaries are logged")
}

func TestFullCycleJobNoSources(t *testing.T) {
	f := setupPipeline(t)
	done := f.runJob(t, models.JobTypeFullCycle, `{}`)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, "no active sources", done.ProgressDetail)
	assert.Zero(t, f.provider.calls)
}
