package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garethmul/newsmill/pkg/database"
	"github.com/garethmul/newsmill/pkg/llm"
	"github.com/garethmul/newsmill/pkg/models"
)

const aiLogColumns = `id, account_id, job_id, provider, model, prompt_text,
	system_instruction, response_text, tokens_input, tokens_output, tokens_total,
	duration_ms, temperature, max_output_tokens, stop_reason, is_complete,
	is_truncated, safety_ratings, success, warning, error_message, created_at`

// AILogService persists the audit trail of AI provider calls.
type AILogService struct {
	client *database.Client
}

// NewAILogService creates a new AILogService.
func NewAILogService(client *database.Client) *AILogService {
	return &AILogService{client: client}
}

// RecordParams carries one AI call's provenance. ErrorMessage is set for
// failed calls, which are recorded like successful ones.
type RecordParams struct {
	AccountID         string
	JobID             *string
	Provider          string
	Model             string
	PromptText        string
	SystemInstruction string
	ResponseText      string
	TokensInput       int
	TokensOutput      int
	TokensTotal       int
	Duration          time.Duration
	Temperature       float64
	MaxOutputTokens   int
	StopReason        string
	IsComplete        bool
	IsTruncated       bool
	SafetyRatings     json.RawMessage
	Success           bool
	Warning           *string
	ErrorMessage      *string
}

// RecordCall implements llm.Recorder.
func (s *AILogService) RecordCall(ctx context.Context, rec llm.CallRecord) error {
	_, err := s.Record(ctx, RecordParams{
		AccountID:         rec.AccountID,
		JobID:             rec.JobID,
		Provider:          rec.Provider,
		Model:             rec.Model,
		PromptText:        rec.PromptText,
		SystemInstruction: rec.SystemInstruction,
		ResponseText:      rec.ResponseText,
		TokensInput:       rec.TokensInput,
		TokensOutput:      rec.TokensOutput,
		TokensTotal:       rec.TokensTotal,
		Duration:          rec.Duration,
		Temperature:       rec.Temperature,
		MaxOutputTokens:   rec.MaxOutputTokens,
		StopReason:        rec.StopReason,
		IsComplete:        rec.Complete,
		IsTruncated:       rec.Truncated,
		SafetyRatings:     rec.SafetyRatings,
		Success:           rec.Success,
		Warning:           rec.Warning,
		ErrorMessage:      rec.ErrorMessage,
	})
	return err
}

// Record inserts one AI call audit row.
func (s *AILogService) Record(ctx context.Context, params RecordParams) (*models.AIResponseLog, error) {
	if params.AccountID == "" {
		return nil, NewValidationError("account_id", "required")
	}
	if params.Provider == "" {
		return nil, NewValidationError("provider", "required")
	}

	var ratings any
	if len(params.SafetyRatings) > 0 {
		ratings = []byte(params.SafetyRatings)
	}
	row := s.client.DB().QueryRowContext(ctx, `
		INSERT INTO ai_response_logs (account_id, job_id, provider, model, prompt_text,
			system_instruction, response_text, tokens_input, tokens_output, tokens_total,
			duration_ms, temperature, max_output_tokens, stop_reason, is_complete,
			is_truncated, safety_ratings, success, warning, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING `+aiLogColumns,
		params.AccountID, params.JobID, params.Provider, params.Model,
		params.PromptText, params.SystemInstruction, params.ResponseText,
		params.TokensInput, params.TokensOutput, params.TokensTotal,
		params.Duration.Milliseconds(), params.Temperature, params.MaxOutputTokens,
		params.StopReason, params.IsComplete, params.IsTruncated, ratings,
		params.Success, params.Warning, params.ErrorMessage)
	entry, err := scanAILog(row)
	if err != nil {
		return nil, fmt.Errorf("failed to record ai call: %w", err)
	}
	return entry, nil
}

// ListForJob returns a job's AI call audit rows in call order.
func (s *AILogService) ListForJob(ctx context.Context, accountID, jobID string) ([]*models.AIResponseLog, error) {
	rows, err := s.client.DB().QueryContext(ctx,
		`SELECT `+aiLogColumns+` FROM ai_response_logs WHERE account_id = $1 AND job_id = $2 ORDER BY id ASC`,
		accountID, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ai logs: %w", err)
	}
	defer rows.Close()
	return collectAILogs(rows)
}

// ListForAccount returns the account's most recent AI call audit rows.
func (s *AILogService) ListForAccount(ctx context.Context, accountID string, limit int) ([]*models.AIResponseLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.client.DB().QueryContext(ctx,
		`SELECT `+aiLogColumns+` FROM ai_response_logs WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2`,
		accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ai logs: %w", err)
	}
	defer rows.Close()
	return collectAILogs(rows)
}

// DeleteOlderThan removes audit rows created before the cutoff. Returns the
// number removed.
func (s *AILogService) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.client.DB().ExecContext(ctx,
		`DELETE FROM ai_response_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old ai logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read delete result: %w", err)
	}
	return n, nil
}

func collectAILogs(rows *sql.Rows) ([]*models.AIResponseLog, error) {
	var entries []*models.AIResponseLog
	for rows.Next() {
		entry, err := scanAILog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ai log: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ai logs: %w", err)
	}
	return entries, nil
}

func scanAILog(row rowScanner) (*models.AIResponseLog, error) {
	entry := &models.AIResponseLog{}
	var ratings []byte
	err := row.Scan(&entry.ID, &entry.AccountID, &entry.JobID, &entry.Provider,
		&entry.Model, &entry.PromptText, &entry.SystemInstruction,
		&entry.ResponseText, &entry.TokensInput, &entry.TokensOutput,
		&entry.TokensTotal, &entry.DurationMs, &entry.Temperature,
		&entry.MaxOutputTokens, &entry.StopReason, &entry.IsComplete,
		&entry.IsTruncated, &ratings, &entry.Success, &entry.Warning,
		&entry.ErrorMessage, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(ratings) > 0 {
		entry.SafetyRatings = json.RawMessage(ratings)
	}
	return entry, nil
}
