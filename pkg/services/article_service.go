package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garethmul/newsmill/pkg/database"
	"github.com/garethmul/newsmill/pkg/models"
)

const articleColumns = `id, account_id, source_id, title, url, publication_date,
	full_text, summary_ai, keywords_ai, relevance_score, status, created_at, updated_at`

// ArticleService manages scraped articles and their analysis results.
type ArticleService struct {
	client *database.Client
}

// NewArticleService creates a new ArticleService.
func NewArticleService(client *database.Client) *ArticleService {
	return &ArticleService{client: client}
}

// CreateArticleParams carries the fields of a newly captured article.
type CreateArticleParams struct {
	SourceID        *int64
	Title           string
	URL             string
	PublicationDate *time.Time
	FullText        string
}

// CreateArticle inserts a captured article in status scraped. Returns
// ErrAlreadyExists when the account already has the URL.
func (s *ArticleService) CreateArticle(ctx context.Context, accountID string, params CreateArticleParams) (*models.ScrapedArticle, error) {
	if accountID == "" {
		return nil, NewValidationError("account_id", "required")
	}
	if params.Title == "" {
		return nil, NewValidationError("title", "required")
	}
	if params.URL == "" {
		return nil, NewValidationError("url", "required")
	}
	if params.FullText == "" {
		return nil, NewValidationError("full_text", "required")
	}

	row := s.client.DB().QueryRowContext(ctx, `
		INSERT INTO scraped_articles (account_id, source_id, title, url, publication_date, full_text, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'scraped')
		RETURNING `+articleColumns,
		accountID, params.SourceID, params.Title, params.URL, params.PublicationDate, params.FullText)
	article, err := scanArticle(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create article: %w", err)
	}
	return article, nil
}

// GetArticle returns the article scoped to the account.
func (s *ArticleService) GetArticle(ctx context.Context, accountID string, id int64) (*models.ScrapedArticle, error) {
	row := s.client.DB().QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM scraped_articles WHERE id = $1 AND account_id = $2`,
		id, accountID)
	article, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return article, nil
}

// ExistsByURL reports whether the account already captured the URL.
func (s *ArticleService) ExistsByURL(ctx context.Context, accountID, url string) (bool, error) {
	var exists bool
	err := s.client.DB().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM scraped_articles WHERE account_id = $1 AND url = $2)`,
		accountID, url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check article url: %w", err)
	}
	return exists, nil
}

// ListArticles returns the account's articles, newest first, optionally
// filtered by status. Limit 0 means the default page of 50.
func (s *ArticleService) ListArticles(ctx context.Context, accountID string, status models.ArticleStatus, limit int) ([]*models.ScrapedArticle, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `SELECT ` + articleColumns + ` FROM scraped_articles WHERE account_id = $1`
	args := []any{accountID}
	if status != "" {
		if !status.Valid() {
			return nil, NewValidationError("status", fmt.Sprintf("unknown status %q", status))
		}
		args = append(args, string(status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()
	return collectArticles(rows)
}

// ListArticlesByIDs returns the named articles scoped to the account.
func (s *ArticleService) ListArticlesByIDs(ctx context.Context, accountID string, ids []int64) ([]*models.ScrapedArticle, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.client.DB().QueryContext(ctx,
		`SELECT `+articleColumns+` FROM scraped_articles WHERE account_id = $1 AND id = ANY($2) ORDER BY id ASC`,
		accountID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles by ids: %w", err)
	}
	defer rows.Close()
	return collectArticles(rows)
}

// TopAnalyzedByRelevance returns the account's most relevant analyzed
// articles that have not yet had content generated from them.
func (s *ArticleService) TopAnalyzedByRelevance(ctx context.Context, accountID string, limit int) ([]*models.ScrapedArticle, error) {
	if limit <= 0 {
		limit = models.DefaultGenerateTop
	}
	rows, err := s.client.DB().QueryContext(ctx, `
		SELECT `+articleColumns+` FROM scraped_articles
		WHERE account_id = $1 AND status = 'analyzed'
		ORDER BY relevance_score DESC NULLS LAST, created_at DESC
		LIMIT $2`,
		accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top articles: %w", err)
	}
	defer rows.Close()
	return collectArticles(rows)
}

// ApplyAnalysis writes the AI-derived fields and moves the article to
// analyzed in a single update.
func (s *ArticleService) ApplyAnalysis(ctx context.Context, accountID string, id int64, result models.AnalysisResult) (*models.ScrapedArticle, error) {
	keywords, err := json.Marshal(result.Keywords)
	if err != nil {
		return nil, fmt.Errorf("failed to encode keywords: %w", err)
	}

	row := s.client.DB().QueryRowContext(ctx, `
		UPDATE scraped_articles
		SET summary_ai = $3, keywords_ai = $4, relevance_score = $5,
		    status = 'analyzed', updated_at = now()
		WHERE id = $1 AND account_id = $2
		RETURNING `+articleColumns,
		id, accountID, result.Summary, keywords, result.RelevanceScore)
	article, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply analysis: %w", err)
	}
	return article, nil
}

// SetArticleStatus moves the article to the given status.
func (s *ArticleService) SetArticleStatus(ctx context.Context, accountID string, id int64, status models.ArticleStatus) error {
	if !status.Valid() {
		return NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}
	res, err := s.client.DB().ExecContext(ctx,
		`UPDATE scraped_articles SET status = $3, updated_at = now() WHERE id = $1 AND account_id = $2`,
		id, accountID, string(status))
	if err != nil {
		return fmt.Errorf("failed to set article status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read status update result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func collectArticles(rows *sql.Rows) ([]*models.ScrapedArticle, error) {
	var articles []*models.ScrapedArticle
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate articles: %w", err)
	}
	return articles, nil
}

func scanArticle(row rowScanner) (*models.ScrapedArticle, error) {
	article := &models.ScrapedArticle{}
	var (
		status   string
		keywords []byte
	)
	err := row.Scan(&article.ID, &article.AccountID, &article.SourceID,
		&article.Title, &article.URL, &article.PublicationDate, &article.FullText,
		&article.SummaryAI, &keywords, &article.RelevanceScore, &status,
		&article.CreatedAt, &article.UpdatedAt)
	if err != nil {
		return nil, err
	}
	article.Status = models.ArticleStatus(status)
	if len(keywords) > 0 {
		_ = json.Unmarshal(keywords, &article.KeywordsAI)
	}
	return article, nil
}
