package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/hints"

	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/models"
)

// GormResponses is the gorm-backed Responses repository.
type GormResponses struct {
	db *gorm.DB
}

// NewResponses creates a Responses repository over db.
func NewResponses(db *gorm.DB) *GormResponses {
	return &GormResponses{db: db}
}

func (r *GormResponses) FindByID(ctx context.Context, id string) (*models.Response, error) {
	var response models.Response
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&response).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("response %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &response, nil
}

func (r *GormResponses) FindByExternalRecordID(ctx context.Context, externalRecordID string) (*models.Response, error) {
	var response models.Response
	err := r.db.WithContext(ctx).
		Where("external_record_id = ?", externalRecordID).
		First(&response).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("record %s: %w", externalRecordID, ErrNotFound)
		}
		return nil, err
	}
	return &response, nil
}

func (r *GormResponses) Create(ctx context.Context, response *models.Response) error {
	err := r.db.WithContext(ctx).Create(response).Error
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("external record %s: %w", response.ExternalRecordID, ErrDuplicate)
	}
	return err
}

func (r *GormResponses) Save(ctx context.Context, response *models.Response) error {
	err := r.db.WithContext(ctx).Save(response).Error
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("external record %s: %w", response.ExternalRecordID, ErrDuplicate)
	}
	return err
}

func (r *GormResponses) ListByForm(ctx context.Context, formID string, page, limit int) ([]models.Response, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := r.db.WithContext(ctx).Model(&models.Response{}).Where("form_id = ?", formID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var responses []models.Response
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&responses).Error
	return responses, total, err
}

// FindRetryable scans for failed responses still under the retry cap. The
// status index hint matters on large mysql response tables where the
// optimizer tends to prefer the primary key for the ORDER BY.
func (r *GormResponses) FindRetryable(ctx context.Context, maxAttempts, limit int) ([]models.Response, error) {
	query := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "mysql" {
		query = query.Clauses(hints.UseIndex("idx_responses_status"))
	}

	var responses []models.Response
	err := query.
		Where("status = ? AND sync_attempts < ?", models.StatusFailed, maxAttempts).
		Order("updated_at ASC").
		Limit(limit).
		Find(&responses).Error
	return responses, err
}

// isUniqueViolation spots unique-index errors across the supported drivers
// without importing every driver's error type.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
