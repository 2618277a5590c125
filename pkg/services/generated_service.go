package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/garethmul/newsmill/pkg/database"
	"github.com/garethmul/newsmill/pkg/models"
)

const generatedColumns = `id, account_id, based_on_article_id, title, body,
	status, word_count, created_at, updated_at`

const contentColumns = `id, account_id, article_id, content_type, content,
	metadata, status, created_at, updated_at`

// GeneratedService manages generated articles, their derived content, and
// the review workflow.
type GeneratedService struct {
	client *database.Client
}

// NewGeneratedService creates a new GeneratedService.
func NewGeneratedService(client *database.Client) *GeneratedService {
	return &GeneratedService{client: client}
}

// ContentItem is one derived asset to store against a generated article.
type ContentItem struct {
	ContentType string
	Content     json.RawMessage
	Metadata    json.RawMessage
}

// CreateDraft inserts an empty generated article draft that owns the
// artifacts of one generation run. The title is provisional until the main
// template fills the post in. A source article may have at most one active
// generated article; violating that returns ErrAlreadyGenerated.
func (s *GeneratedService) CreateDraft(ctx context.Context, accountID string, basedOn *int64, title string) (*models.GeneratedArticle, error) {
	if accountID == "" {
		return nil, NewValidationError("account_id", "required")
	}
	if title == "" {
		return nil, NewValidationError("title", "required")
	}

	row := s.client.DB().QueryRowContext(ctx, `
		INSERT INTO generated_articles (account_id, based_on_article_id, title, body, status, word_count)
		VALUES ($1, $2, $3, '', 'draft', 0)
		RETURNING `+generatedColumns,
		accountID, basedOn, title)
	article, err := scanGenerated(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyGenerated
		}
		return nil, fmt.Errorf("failed to create draft: %w", err)
	}
	return article, nil
}

// UpdateDraftPost fills a draft's title, body and word count. Only articles
// still in draft accept the update; anything later in the review workflow
// returns ErrInvalidTransition.
func (s *GeneratedService) UpdateDraftPost(ctx context.Context, accountID string, id int64, title, body string, wordCount int) (*models.GeneratedArticle, error) {
	if title == "" {
		return nil, NewValidationError("title", "required")
	}
	if body == "" {
		return nil, NewValidationError("body", "required")
	}

	row := s.client.DB().QueryRowContext(ctx, `
		UPDATE generated_articles
		SET title = $3, body = $4, word_count = $5, updated_at = now()
		WHERE id = $1 AND account_id = $2 AND status = 'draft'
		RETURNING `+generatedColumns,
		id, accountID, title, body, wordCount)
	article, err := scanGenerated(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetGenerated(ctx, accountID, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: article %d is no longer a draft", ErrInvalidTransition, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update draft: %w", err)
	}
	return article, nil
}

// AddContent appends one derived content row to a generated article.
func (s *GeneratedService) AddContent(ctx context.Context, accountID string, articleID int64, item ContentItem) (*models.GeneratedContent, error) {
	if item.ContentType == "" {
		return nil, NewValidationError("content_type", "required")
	}
	content := item.Content
	if len(content) == 0 {
		content = json.RawMessage(`{}`)
	}
	metadata := item.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}

	row := s.client.DB().QueryRowContext(ctx, `
		INSERT INTO generated_content (account_id, article_id, content_type, content, metadata, status)
		VALUES ($1, $2, $3, $4, $5, 'draft')
		RETURNING `+contentColumns,
		accountID, articleID, item.ContentType, []byte(content), []byte(metadata))
	return scanContent(row)
}

// ActiveExistsForSource reports whether the source article already has a
// generated article outside rejected/archived.
func (s *GeneratedService) ActiveExistsForSource(ctx context.Context, accountID string, sourceArticleID int64) (bool, error) {
	var exists bool
	err := s.client.DB().QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM generated_articles
			WHERE account_id = $1 AND based_on_article_id = $2
			  AND status NOT IN ('rejected', 'archived')
		)`, accountID, sourceArticleID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check active generation: %w", err)
	}
	return exists, nil
}

// GetGenerated returns the generated article scoped to the account.
func (s *GeneratedService) GetGenerated(ctx context.Context, accountID string, id int64) (*models.GeneratedArticle, error) {
	row := s.client.DB().QueryRowContext(ctx,
		`SELECT `+generatedColumns+` FROM generated_articles WHERE id = $1 AND account_id = $2`,
		id, accountID)
	article, err := scanGenerated(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get generated article: %w", err)
	}
	return article, nil
}

// ListGenerated returns the account's generated articles, newest first,
// optionally filtered by status.
func (s *GeneratedService) ListGenerated(ctx context.Context, accountID string, status models.GeneratedStatus, limit int) ([]*models.GeneratedArticle, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `SELECT ` + generatedColumns + ` FROM generated_articles WHERE account_id = $1`
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
		return nil, fmt.Errorf("failed to list generated articles: %w", err)
	}
	defer rows.Close()

	var articles []*models.GeneratedArticle
	for rows.Next() {
		article, err := scanGenerated(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generated article: %w", err)
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate generated articles: %w", err)
	}
	return articles, nil
}

// TransitionStatus moves a generated article through the review workflow.
// Illegal moves return ErrInvalidTransition.
func (s *GeneratedService) TransitionStatus(ctx context.Context, accountID string, id int64, next models.GeneratedStatus) (*models.GeneratedArticle, error) {
	if !next.Valid() {
		return nil, NewValidationError("status", fmt.Sprintf("unknown status %q", next))
	}

	var article *models.GeneratedArticle
	err := s.client.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+generatedColumns+` FROM generated_articles WHERE id = $1 AND account_id = $2 FOR UPDATE`,
			id, accountID)
		current, err := scanGenerated(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load generated article: %w", err)
		}

		if !current.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, current.Status, next)
		}

		row = tx.QueryRowContext(ctx, `
			UPDATE generated_articles SET status = $3, updated_at = now()
			WHERE id = $1 AND account_id = $2
			RETURNING `+generatedColumns,
			id, accountID, string(next))
		article, err = scanGenerated(row)
		if err != nil {
			return fmt.Errorf("failed to transition generated article: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return article, nil
}

// ListContent returns the derived content rows for a generated article.
func (s *GeneratedService) ListContent(ctx context.Context, accountID string, articleID int64) ([]*models.GeneratedContent, error) {
	rows, err := s.client.DB().QueryContext(ctx,
		`SELECT `+contentColumns+` FROM generated_content WHERE account_id = $1 AND article_id = $2 ORDER BY id ASC`,
		accountID, articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list generated content: %w", err)
	}
	defer rows.Close()

	var items []*models.GeneratedContent
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate generated content: %w", err)
	}
	return items, nil
}

func scanContent(row rowScanner) (*models.GeneratedContent, error) {
	item := &models.GeneratedContent{}
	var content, metadata []byte
	if err := row.Scan(&item.ID, &item.AccountID, &item.ArticleID,
		&item.ContentType, &content, &metadata, &item.Status,
		&item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan generated content: %w", err)
	}
	item.Content = json.RawMessage(content)
	item.Metadata = json.RawMessage(metadata)
	return item, nil
}

func scanGenerated(row rowScanner) (*models.GeneratedArticle, error) {
	article := &models.GeneratedArticle{}
	var status string
	err := row.Scan(&article.ID, &article.AccountID, &article.BasedOnArticleID,
		&article.Title, &article.Body, &status, &article.WordCount,
		&article.CreatedAt, &article.UpdatedAt)
	if err != nil {
		return nil, err
	}
	article.Status = models.GeneratedStatus(status)
	return article, nil
}
