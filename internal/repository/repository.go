// Package repository provides narrow persistence interfaces so the sync and
// form services depend on capabilities, not on a shared gorm handle.
package repository

import (
	"context"
	"errors"

	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("resource not found")

// ErrDuplicate is returned when a write violates a unique index.
var ErrDuplicate = errors.New("duplicate resource")

// Forms is the persistence capability for forms and their question sets.
type Forms interface {
	FindByID(ctx context.Context, id string) (*models.Form, error)
	// FindActiveByExternalTable resolves the non-retired forms bound to an
	// Airtable (base, table) pair.
	FindActiveByExternalTable(ctx context.Context, baseID, tableID string) ([]models.Form, error)
	Create(ctx context.Context, form *models.Form) error
	Save(ctx context.Context, form *models.Form) error
	// ReplaceQuestions swaps the form's question set and bumps its version in
	// one transaction.
	ReplaceQuestions(ctx context.Context, form *models.Form, questions []models.Question) error
}

// Responses is the persistence capability for response records.
type Responses interface {
	FindByID(ctx context.Context, id string) (*models.Response, error)
	FindByExternalRecordID(ctx context.Context, externalRecordID string) (*models.Response, error)
	Create(ctx context.Context, response *models.Response) error
	Save(ctx context.Context, response *models.Response) error
	ListByForm(ctx context.Context, formID string, page, limit int) ([]models.Response, int64, error)
	// FindRetryable selects failed responses still under the retry cap,
	// oldest first.
	FindRetryable(ctx context.Context, maxAttempts, limit int) ([]models.Response, error)
}

// Credentials resolves a form owner's Airtable credential.
type Credentials interface {
	FindByOwner(ctx context.Context, ownerID string) (*models.Credential, error)
	Save(ctx context.Context, credential *models.Credential) error
}
