// Package models contains the persistent entities and request/response types
// shared across services, workers, and the HTTP API.
package models

import (
	"encoding/json"
	"time"
)

// GlobalAccountID is the reserved account that owns shared prompt templates.
// Template resolution falls back to it when an account has no template of the
// requested name.
const GlobalAccountID = "global"

// Account is a tenant. Every other entity is scoped to exactly one account.
type Account struct {
	AccountID string          `json:"account_id"`
	Name      string          `json:"name"`
	Settings  json.RawMessage `json:"settings"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CreateAccountRequest contains fields for creating an account.
type CreateAccountRequest struct {
	AccountID string          `json:"account_id" validate:"required,max=64"`
	Name      string          `json:"name" validate:"required,max=255"`
	Settings  json.RawMessage `json:"settings,omitempty"`
}
