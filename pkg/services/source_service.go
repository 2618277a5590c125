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

const sourceColumns = `id, account_id, name, url, type, selectors, is_active,
	last_checked_at, created_at, updated_at`

// SourceService manages news sources.
type SourceService struct {
	client *database.Client
}

// NewSourceService creates a new SourceService.
func NewSourceService(client *database.Client) *SourceService {
	return &SourceService{client: client}
}

// CreateSource creates a news source for the account. The (account, url)
// pair is unique.
func (s *SourceService) CreateSource(ctx context.Context, accountID string, req models.CreateSourceRequest) (*models.NewsSource, error) {
	if accountID == "" {
		return nil, NewValidationError("account_id", "required")
	}
	if req.Name == "" {
		return nil, NewValidationError("name", "required")
	}
	if req.URL == "" {
		return nil, NewValidationError("url", "required")
	}
	if !req.Type.Valid() {
		return nil, NewValidationError("type", fmt.Sprintf("unknown source type %q", req.Type))
	}

	selectors, err := json.Marshal(req.Selectors)
	if err != nil {
		return nil, fmt.Errorf("failed to encode selectors: %w", err)
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	row := s.client.DB().QueryRowContext(ctx, `
		INSERT INTO news_sources (account_id, name, url, type, selectors, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+sourceColumns,
		accountID, req.Name, req.URL, string(req.Type), selectors, isActive)
	source, err := scanSource(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create source: %w", err)
	}
	return source, nil
}

// GetSource returns the source scoped to the account.
func (s *SourceService) GetSource(ctx context.Context, accountID string, id int64) (*models.NewsSource, error) {
	row := s.client.DB().QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM news_sources WHERE id = $1 AND account_id = $2`,
		id, accountID)
	source, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return source, nil
}

// ListSources returns the account's sources, optionally only active ones.
func (s *SourceService) ListSources(ctx context.Context, accountID string, activeOnly bool) ([]*models.NewsSource, error) {
	query := `SELECT ` + sourceColumns + ` FROM news_sources WHERE account_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY id ASC`

	rows, err := s.client.DB().QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()
	return collectSources(rows)
}

// ListSourcesByIDs returns the named sources scoped to the account. Missing
// IDs are silently skipped; callers compare lengths when that matters.
func (s *SourceService) ListSourcesByIDs(ctx context.Context, accountID string, ids []int64) ([]*models.NewsSource, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.client.DB().QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM news_sources WHERE account_id = $1 AND id = ANY($2) ORDER BY id ASC`,
		accountID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources by ids: %w", err)
	}
	defer rows.Close()
	return collectSources(rows)
}

// UpdateSource applies the non-nil fields of req to the source.
func (s *SourceService) UpdateSource(ctx context.Context, accountID string, id int64, req models.UpdateSourceRequest) (*models.NewsSource, error) {
	set := `updated_at = now()`
	args := []any{id, accountID}
	if req.Name != nil {
		args = append(args, *req.Name)
		set += fmt.Sprintf(", name = $%d", len(args))
	}
	if req.URL != nil {
		args = append(args, *req.URL)
		set += fmt.Sprintf(", url = $%d", len(args))
	}
	if req.Selectors != nil {
		selectors, err := json.Marshal(req.Selectors)
		if err != nil {
			return nil, fmt.Errorf("failed to encode selectors: %w", err)
		}
		args = append(args, selectors)
		set += fmt.Sprintf(", selectors = $%d", len(args))
	}
	if req.IsActive != nil {
		args = append(args, *req.IsActive)
		set += fmt.Sprintf(", is_active = $%d", len(args))
	}

	row := s.client.DB().QueryRowContext(ctx,
		`UPDATE news_sources SET `+set+` WHERE id = $1 AND account_id = $2 RETURNING `+sourceColumns,
		args...)
	source, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to update source: %w", err)
	}
	return source, nil
}

// DeleteSource removes the source. Articles keep their rows with source_id
// cleared by the FK.
func (s *SourceService) DeleteSource(ctx context.Context, accountID string, id int64) error {
	res, err := s.client.DB().ExecContext(ctx,
		`DELETE FROM news_sources WHERE id = $1 AND account_id = $2`, id, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastChecked records a fetch attempt against the source, successful or
// not.
func (s *SourceService) TouchLastChecked(ctx context.Context, accountID string, id int64) error {
	_, err := s.client.DB().ExecContext(ctx,
		`UPDATE news_sources SET last_checked_at = now(), updated_at = now() WHERE id = $1 AND account_id = $2`,
		id, accountID)
	if err != nil {
		return fmt.Errorf("failed to touch source: %w", err)
	}
	return nil
}

func collectSources(rows *sql.Rows) ([]*models.NewsSource, error) {
	var sources []*models.NewsSource
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sources: %w", err)
	}
	return sources, nil
}

func scanSource(row rowScanner) (*models.NewsSource, error) {
	source := &models.NewsSource{}
	var (
		sourceType string
		selectors  []byte
	)
	err := row.Scan(&source.ID, &source.AccountID, &source.Name, &source.URL,
		&sourceType, &selectors, &source.IsActive, &source.LastCheckedAt,
		&source.CreatedAt, &source.UpdatedAt)
	if err != nil {
		return nil, err
	}
	source.Type = models.SourceType(sourceType)
	if len(selectors) > 0 {
		// Malformed selector JSON degrades to defaults rather than failing
		// the read.
		_ = json.Unmarshal(selectors, &source.Selectors)
	}
	return source, nil
}
