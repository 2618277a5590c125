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

const templateColumns = `id, account_id, name, category, description,
	execution_order, media_type, parsing_method, ui_config, is_active,
	created_at, updated_at`

const versionColumns = `id, template_id, version_number, prompt_text,
	system_instruction, is_current, created_by, created_at`

// TemplateService manages prompt templates and their versions. Exactly one
// version per template is current; version writes go through transactions
// that lock the template row to keep it that way.
type TemplateService struct {
	client *database.Client
}

// NewTemplateService creates a new TemplateService.
func NewTemplateService(client *database.Client) *TemplateService {
	return &TemplateService{client: client}
}

// CreateTemplate creates a template together with its first version, which
// becomes current.
func (s *TemplateService) CreateTemplate(ctx context.Context, accountID string, req models.CreateTemplateRequest) (*models.PromptTemplate, error) {
	if accountID == "" {
		return nil, NewValidationError("account_id", "required")
	}
	if req.Name == "" {
		return nil, NewValidationError("name", "required")
	}
	if req.PromptText == "" {
		return nil, NewValidationError("prompt_text", "required")
	}
	if req.ExecutionOrder < 0 {
		return nil, NewValidationError("execution_order", "must not be negative")
	}
	mediaType := req.MediaType
	if mediaType == "" {
		mediaType = models.MediaTypeText
	}
	switch mediaType {
	case models.MediaTypeText, models.MediaTypeImage, models.MediaTypeVideo:
	default:
		return nil, NewValidationError("media_type", fmt.Sprintf("unknown media type %q", mediaType))
	}
	parsingMethod := req.ParsingMethod
	if parsingMethod == "" {
		parsingMethod = models.ParseGenericText
	}
	uiConfig := req.UIConfig
	if len(uiConfig) == 0 {
		uiConfig = json.RawMessage(`{}`)
	} else if !json.Valid(uiConfig) {
		return nil, NewValidationError("ui_config", "must be valid JSON")
	}

	var template *models.PromptTemplate
	err := s.client.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO prompt_templates (account_id, name, category, description,
				execution_order, media_type, parsing_method, ui_config)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING `+templateColumns,
			accountID, req.Name, req.Category, req.Description,
			req.ExecutionOrder, mediaType, parsingMethod, []byte(uiConfig))
		var err error
		template, err = scanTemplate(row)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("failed to create template: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO prompt_versions (template_id, version_number, prompt_text, system_instruction, is_current, created_by)
			VALUES ($1, 1, $2, $3, TRUE, $4)`,
			template.ID, req.PromptText, req.SystemInstruction, req.CreatedBy)
		if err != nil {
			return fmt.Errorf("failed to create initial version: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return template, nil
}

// GetTemplate returns the template scoped to the account.
func (s *TemplateService) GetTemplate(ctx context.Context, accountID string, id int64) (*models.PromptTemplate, error) {
	row := s.client.DB().QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM prompt_templates WHERE id = $1 AND account_id = $2`,
		id, accountID)
	template, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return template, nil
}

// GetTemplateByName returns the account's active template with the given
// name, or ErrNotFound.
func (s *TemplateService) GetTemplateByName(ctx context.Context, accountID, name string) (*models.PromptTemplate, error) {
	row := s.client.DB().QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM prompt_templates WHERE account_id = $1 AND name = $2 AND is_active`,
		accountID, name)
	template, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template by name: %w", err)
	}
	return template, nil
}

// ListTemplates returns the account's templates in execution order, name as
// tiebreak.
func (s *TemplateService) ListTemplates(ctx context.Context, accountID string) ([]*models.PromptTemplate, error) {
	rows, err := s.client.DB().QueryContext(ctx,
		`SELECT `+templateColumns+` FROM prompt_templates WHERE account_id = $1 ORDER BY execution_order ASC, name ASC`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()
	return collectTemplates(rows)
}

// ListGenerationTemplates returns the account's active templates that take
// part in content generation (those with a category), in execution order.
func (s *TemplateService) ListGenerationTemplates(ctx context.Context, accountID string) ([]*models.PromptTemplate, error) {
	rows, err := s.client.DB().QueryContext(ctx, `
		SELECT `+templateColumns+` FROM prompt_templates
		WHERE account_id = $1 AND is_active AND category <> ''
		ORDER BY execution_order ASC, name ASC`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list generation templates: %w", err)
	}
	defer rows.Close()
	return collectTemplates(rows)
}

func collectTemplates(rows *sql.Rows) ([]*models.PromptTemplate, error) {
	var templates []*models.PromptTemplate
	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, template)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate templates: %w", err)
	}
	return templates, nil
}

// SetTemplateActive flips the template's active flag.
func (s *TemplateService) SetTemplateActive(ctx context.Context, accountID string, id int64, active bool) error {
	res, err := s.client.DB().ExecContext(ctx,
		`UPDATE prompt_templates SET is_active = $3, updated_at = now() WHERE id = $1 AND account_id = $2`,
		id, accountID, active)
	if err != nil {
		return fmt.Errorf("failed to set template active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateVersion appends a new version with the next version number and makes
// it current.
func (s *TemplateService) CreateVersion(ctx context.Context, accountID string, templateID int64, req models.CreateVersionRequest) (*models.PromptVersion, error) {
	if req.PromptText == "" {
		return nil, NewValidationError("prompt_text", "required")
	}

	var version *models.PromptVersion
	err := s.client.WithTx(ctx, func(tx *sql.Tx) error {
		// Lock the template row so concurrent version writes serialise.
		var templateOwner string
		err := tx.QueryRowContext(ctx,
			`SELECT account_id FROM prompt_templates WHERE id = $1 AND account_id = $2 FOR UPDATE`,
			templateID, accountID).Scan(&templateOwner)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock template: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE prompt_versions SET is_current = FALSE WHERE template_id = $1 AND is_current`,
			templateID); err != nil {
			return fmt.Errorf("failed to clear current version: %w", err)
		}

		row := tx.QueryRowContext(ctx, `
			INSERT INTO prompt_versions (template_id, version_number, prompt_text, system_instruction, is_current, created_by)
			SELECT $1, COALESCE(MAX(version_number), 0) + 1, $2, $3, TRUE, $4
			FROM prompt_versions WHERE template_id = $1
			RETURNING `+versionColumns,
			templateID, req.PromptText, req.SystemInstruction, req.CreatedBy)
		version, err = scanVersion(row)
		if err != nil {
			return fmt.Errorf("failed to create version: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE prompt_templates SET updated_at = now() WHERE id = $1`, templateID)
		if err != nil {
			return fmt.Errorf("failed to touch template: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

// ListVersions returns a template's versions, newest first.
func (s *TemplateService) ListVersions(ctx context.Context, accountID string, templateID int64) ([]*models.PromptVersion, error) {
	if _, err := s.GetTemplate(ctx, accountID, templateID); err != nil {
		return nil, err
	}
	rows, err := s.client.DB().QueryContext(ctx,
		`SELECT `+versionColumns+` FROM prompt_versions WHERE template_id = $1 ORDER BY version_number DESC`,
		templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.PromptVersion
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate versions: %w", err)
	}
	return versions, nil
}

// SetCurrentVersion makes an existing version current.
func (s *TemplateService) SetCurrentVersion(ctx context.Context, accountID string, templateID int64, versionNumber int) (*models.PromptVersion, error) {
	var version *models.PromptVersion
	err := s.client.WithTx(ctx, func(tx *sql.Tx) error {
		var templateOwner string
		err := tx.QueryRowContext(ctx,
			`SELECT account_id FROM prompt_templates WHERE id = $1 AND account_id = $2 FOR UPDATE`,
			templateID, accountID).Scan(&templateOwner)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock template: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE prompt_versions SET is_current = FALSE WHERE template_id = $1 AND is_current`,
			templateID); err != nil {
			return fmt.Errorf("failed to clear current version: %w", err)
		}

		row := tx.QueryRowContext(ctx, `
			UPDATE prompt_versions SET is_current = TRUE
			WHERE template_id = $1 AND version_number = $2
			RETURNING `+versionColumns,
			templateID, versionNumber)
		version, err = scanVersion(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to set current version: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

// CurrentVersion returns the template's current version.
func (s *TemplateService) CurrentVersion(ctx context.Context, templateID int64) (*models.PromptVersion, error) {
	row := s.client.DB().QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM prompt_versions WHERE template_id = $1 AND is_current`,
		templateID)
	version, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

func scanTemplate(row rowScanner) (*models.PromptTemplate, error) {
	template := &models.PromptTemplate{}
	var uiConfig []byte
	err := row.Scan(&template.ID, &template.AccountID, &template.Name,
		&template.Category, &template.Description, &template.ExecutionOrder,
		&template.MediaType, &template.ParsingMethod, &uiConfig,
		&template.IsActive, &template.CreatedAt, &template.UpdatedAt)
	if err != nil {
		return nil, err
	}
	template.UIConfig = json.RawMessage(uiConfig)
	return template, nil
}

func scanVersion(row rowScanner) (*models.PromptVersion, error) {
	version := &models.PromptVersion{}
	err := row.Scan(&version.ID, &version.TemplateID, &version.VersionNumber,
		&version.PromptText, &version.SystemInstruction, &version.IsCurrent,
		&version.CreatedBy, &version.CreatedAt)
	if err != nil {
		return nil, err
	}
	return version, nil
}
