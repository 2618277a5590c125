package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garethmul/newsmill/pkg/models"
	"github.com/garethmul/newsmill/pkg/services"
	"github.com/garethmul/newsmill/test/util"
)

func setupArticleService(t *testing.T, accountIDs ...string) *services.ArticleService {
	t.Helper()
	client := util.SetupTestDatabase(t)
	accounts := services.NewAccountService(client)
	for _, id := range accountIDs {
		_, err := accounts.CreateAccount(context.Background(), models.CreateAccountRequest{
			AccountID: id,
			Name:      "Test " + id,
		})
		require.NoError(t, err)
	}
	return services.NewArticleService(client)
}

func TestCreateArticleDuplicateURL(t *testing.T) {
	svc := setupArticleService(t, "acct-a", "acct-b")
	ctx := context.Background()
	params := services.CreateArticleParams{
		Title:    "Shared Story",
		URL:      "https://example.com/story",
		FullText: "body",
	}

	first, err := svc.CreateArticle(ctx, "acct-a", params)
	require.NoError(t, err)
	assert.Equal(t, models.ArticleStatusScraped, first.Status)

	// Same URL, same account: duplicate.
	_, err = svc.CreateArticle(ctx, "acct-a", params)
	assert.ErrorIs(t, err, services.ErrAlreadyExists)

	// Same URL, different account: fine — uniqueness is per tenant.
	_, err = svc.CreateArticle(ctx, "acct-b", params)
	assert.NoError(t, err)
}

func TestExistsByURL(t *testing.T) {
	svc := setupArticleService(t, "acct-a")
	ctx := context.Background()

	_, err := svc.CreateArticle(ctx, "acct-a", services.CreateArticleParams{
		Title: "T", URL: "https://example.com/x", FullText: "body",
	})
	require.NoError(t, err)

	exists, err := svc.ExistsByURL(ctx, "acct-a", "https://example.com/x")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = svc.ExistsByURL(ctx, "acct-a", "https://example.com/other")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestApplyAnalysis(t *testing.T) {
	svc := setupArticleService(t, "acct-a")
	ctx := context.Background()

	article, err := svc.CreateArticle(ctx, "acct-a", services.CreateArticleParams{
		Title: "T", URL: "https://example.com/x", FullText: "body",
	})
	require.NoError(t, err)

	updated, err := svc.ApplyAnalysis(ctx, "acct-a", article.ID, models.AnalysisResult{
		Summary:        "A summary.",
		Keywords:       []string{"go", "queues"},
		RelevanceScore: 0.8,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ArticleStatusAnalyzed, updated.Status)
	require.NotNil(t, updated.SummaryAI)
	assert.Equal(t, "A summary.", *updated.SummaryAI)
	assert.Equal(t, []string{"go", "queues"}, updated.KeywordsAI)
	require.NotNil(t, updated.RelevanceScore)
	assert.InDelta(t, 0.8, *updated.RelevanceScore, 0.001)

	// Cross-tenant update hits nothing.
	_, err = svc.ApplyAnalysis(ctx, "acct-other", article.ID, models.AnalysisResult{})
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestTopAnalyzedByRelevance(t *testing.T) {
	svc := setupArticleService(t, "acct-a")
	ctx := context.Background()

	scores := []float64{0.2, 0.9, 0.5}
	for i, score := range scores {
		article, err := svc.CreateArticle(ctx, "acct-a", services.CreateArticleParams{
			Title:    "T",
			URL:      "https://example.com/" + string(rune('a'+i)),
			FullText: "body",
		})
		require.NoError(t, err)
		_, err = svc.ApplyAnalysis(ctx, "acct-a", article.ID, models.AnalysisResult{
			Summary: "s", RelevanceScore: score,
		})
		require.NoError(t, err)
	}
	// One still scraped: never ranked.
	_, err := svc.CreateArticle(ctx, "acct-a", services.CreateArticleParams{
		Title: "T", URL: "https://example.com/unanalyzed", FullText: "body",
	})
	require.NoError(t, err)

	top, err := svc.TopAnalyzedByRelevance(ctx, "acct-a", 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.InDelta(t, 0.9, *top[0].RelevanceScore, 0.001)
	assert.InDelta(t, 0.5, *top[1].RelevanceScore, 0.001)
}

func TestListArticlesStatusFilter(t *testing.T) {
	svc := setupArticleService(t, "acct-a")
	ctx := context.Background()

	a, err := svc.CreateArticle(ctx, "acct-a", services.CreateArticleParams{
		Title: "A", URL: "https://example.com/a", FullText: "body",
	})
	require.NoError(t, err)
	_, err = svc.CreateArticle(ctx, "acct-a", services.CreateArticleParams{
		Title: "B", URL: "https://example.com/b", FullText: "body",
	})
	require.NoError(t, err)
	require.NoError(t, svc.SetArticleStatus(ctx, "acct-a", a.ID, models.ArticleStatusFailed))

	scraped, err := svc.ListArticles(ctx, "acct-a", models.ArticleStatusScraped, 10)
	require.NoError(t, err)
	require.Len(t, scraped, 1)
	assert.Equal(t, "B", scraped[0].Title)

	all, err := svc.ListArticles(ctx, "acct-a", "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSetArticleStatusValidation(t *testing.T) {
	svc := setupArticleService(t, "acct-a")
	ctx := context.Background()

	err := svc.SetArticleStatus(ctx, "acct-a", 1, "melted")
	assert.True(t, services.IsValidationError(err))

	err = svc.SetArticleStatus(ctx, "acct-a", 99999, models.ArticleStatusFailed)
	assert.ErrorIs(t, err, services.ErrNotFound)
}
