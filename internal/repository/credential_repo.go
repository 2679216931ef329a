package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/models"
)

// GormCredentials is the gorm-backed Credentials repository.
type GormCredentials struct {
	db *gorm.DB
}

// NewCredentials creates a Credentials repository over db.
func NewCredentials(db *gorm.DB) *GormCredentials {
	return &GormCredentials{db: db}
}

func (r *GormCredentials) FindByOwner(ctx context.Context, ownerID string) (*models.Credential, error) {
	var credential models.Credential
	err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&credential).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("credential for owner %s: %w", ownerID, ErrNotFound)
		}
		return nil, err
	}
	return &credential, nil
}

// Save upserts by owner so token refresh replaces the stored token in place.
func (r *GormCredentials) Save(ctx context.Context, credential *models.Credential) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"token", "expires_at", "updated_at"}),
		}).
		Create(credential).Error
}
