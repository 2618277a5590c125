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

const accountColumns = `account_id, name, settings, created_at, updated_at`

// AccountService manages tenants and their settings documents.
type AccountService struct {
	client *database.Client
}

// NewAccountService creates a new AccountService.
func NewAccountService(client *database.Client) *AccountService {
	return &AccountService{client: client}
}

// CreateAccount creates a tenant.
func (s *AccountService) CreateAccount(ctx context.Context, req models.CreateAccountRequest) (*models.Account, error) {
	if req.AccountID == "" {
		return nil, NewValidationError("account_id", "required")
	}
	if req.Name == "" {
		return nil, NewValidationError("name", "required")
	}
	settings := req.Settings
	if len(settings) == 0 {
		settings = json.RawMessage(`{}`)
	} else if !json.Valid(settings) {
		return nil, NewValidationError("settings", "must be valid JSON")
	}

	row := s.client.DB().QueryRowContext(ctx, `
		INSERT INTO accounts (account_id, name, settings)
		VALUES ($1, $2, $3)
		RETURNING `+accountColumns,
		req.AccountID, req.Name, []byte(settings))
	account, err := scanAccount(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

// GetAccount returns the account by ID.
func (s *AccountService) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	row := s.client.DB().QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_id = $1`, accountID)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// WithLockedSettings runs fn against the account's settings document while
// holding its row lock, then persists the returned document in the same
// transaction. Concurrent read-modify-write cycles serialise on the lock, so
// no update is lost.
func (s *AccountService) WithLockedSettings(ctx context.Context, accountID string, fn func(settings map[string]any) (map[string]any, error)) error {
	return s.client.WithTx(ctx, func(tx *sql.Tx) error {
		var raw []byte
		err := tx.QueryRowContext(ctx,
			`SELECT settings FROM accounts WHERE account_id = $1 FOR UPDATE`,
			accountID).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock account settings: %w", err)
		}

		settings := map[string]any{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &settings); err != nil {
				return fmt.Errorf("failed to decode account settings: %w", err)
			}
		}

		updated, err := fn(settings)
		if err != nil {
			return err
		}
		if updated == nil {
			// fn declined to change anything.
			return nil
		}

		buf, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("failed to encode account settings: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE accounts SET settings = $2, updated_at = now() WHERE account_id = $1`,
			accountID, buf); err != nil {
			return fmt.Errorf("failed to update account settings: %w", err)
		}
		return nil
	})
}

func scanAccount(row rowScanner) (*models.Account, error) {
	account := &models.Account{}
	var settings []byte
	err := row.Scan(&account.AccountID, &account.Name, &settings, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}
	account.Settings = json.RawMessage(settings)
	return account, nil
}
