package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/models"
)

// GormForms is the gorm-backed Forms repository.
type GormForms struct {
	db *gorm.DB
}

// NewForms creates a Forms repository over db.
func NewForms(db *gorm.DB) *GormForms {
	return &GormForms{db: db}
}

func (r *GormForms) FindByID(ctx context.Context, id string) (*models.Form, error) {
	var form models.Form
	err := r.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("id = ?", id).
		First(&form).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("form %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &form, nil
}

func (r *GormForms) FindActiveByExternalTable(ctx context.Context, baseID, tableID string) ([]models.Form, error) {
	var forms []models.Form
	err := r.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("external_base_id = ? AND external_table_id = ? AND retired_at IS NULL", baseID, tableID).
		Find(&forms).Error
	return forms, err
}

func (r *GormForms) Create(ctx context.Context, form *models.Form) error {
	return r.db.WithContext(ctx).Create(form).Error
}

func (r *GormForms) Save(ctx context.Context, form *models.Form) error {
	return r.db.WithContext(ctx).Save(form).Error
}

// ReplaceQuestions swaps the question set and bumps the version under a row
// lock so two concurrent designers cannot interleave question mutations.
func (r *GormForms) ReplaceQuestions(ctx context.Context, form *models.Form, questions []models.Question) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lookup := tx.Where("id = ?", form.ID)
		// sqlite has no row locks; single-writer semantics hold anyway.
		if tx.Dialector.Name() != "sqlite" {
			lookup = lookup.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var locked models.Form
		if err := lookup.First(&locked).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("form %s: %w", form.ID, ErrNotFound)
			}
			return err
		}

		if err := tx.Where("form_id = ?", form.ID).Delete(&models.Question{}).Error; err != nil {
			return err
		}

		for i := range questions {
			questions[i].FormID = form.ID
			questions[i].Position = i
		}
		if len(questions) > 0 {
			if err := tx.Create(&questions).Error; err != nil {
				return err
			}
		}

		locked.Version++
		if err := tx.Model(&models.Form{}).
			Where("id = ?", form.ID).
			Update("version", locked.Version).Error; err != nil {
			return err
		}

		form.Version = locked.Version
		form.Questions = questions
		return nil
	})
}
