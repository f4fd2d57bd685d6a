package services

import (
	"errors"
	"fmt"

	"github.com/justsurfingit/adaudit/internal/dtos"
	"github.com/justsurfingit/adaudit/internal/models"
	"gorm.io/gorm"
)

type RecommendationService struct {
	DB            *gorm.DB
	Modifications *ModificationService
}

func NewRecommendationService(db *gorm.DB, mods *ModificationService) *RecommendationService {
	return &RecommendationService{DB: db, Modifications: mods}
}

func (s *RecommendationService) List(filter dtos.RecommendationFilter) ([]models.Recommendation, int64, error) {
	page := Page{Limit: filter.Limit, Offset: filter.Offset}.Normalize()

	q := s.DB.Model(&models.Recommendation{})
	if filter.AccountID != 0 {
		q = q.Where("account_id = ?", filter.AccountID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Source != "" {
		q = q.Where("source = ?", filter.Source)
	}
	if filter.Severity != "" {
		q = q.Where("severity = ?", filter.Severity)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting recommendations: %w", err)
	}

	// high, medium, low; newest first within a severity
	order := "CASE severity WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, id DESC"
	var recs []models.Recommendation
	if err := q.Order(order).Limit(page.Limit).Offset(page.Offset).Find(&recs).Error; err != nil {
		return nil, 0, fmt.Errorf("listing recommendations: %w", err)
	}
	return recs, total, nil
}

func (s *RecommendationService) Dismiss(id uint) (*models.Recommendation, error) {
	var rec models.Recommendation
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := loadRecommendation(tx, id, &rec); err != nil {
			return err
		}
		if rec.Status != models.RecommendationOpen {
			return fmt.Errorf("%w: recommendation %d is %s", ErrInvalidTransition, id, rec.Status)
		}
		if err := closeRecommendation(tx, id, models.RecommendationDismissed); err != nil {
			return err
		}
		rec.Status = models.RecommendationDismissed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Convert turns an open recommendation into a pending modification.
func (s *RecommendationService) Convert(id uint, actor string) (*models.Modification, error) {
	var mod *models.Modification
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var rec models.Recommendation
		if err := loadRecommendation(tx, id, &rec); err != nil {
			return err
		}
		if rec.Status != models.RecommendationOpen {
			return fmt.Errorf("%w: recommendation %d is %s", ErrInvalidTransition, id, rec.Status)
		}
		if rec.Action == "" {
			return fmt.Errorf("%w: recommendation %d has no action to apply", ErrValidation, id)
		}
		// claim the recommendation before creating anything so a concurrent convert loses
		if err := closeRecommendation(tx, id, models.RecommendationConverted); err != nil {
			return err
		}

		recID := rec.ID
		var err error
		mod, err = s.Modifications.create(tx, &dtos.ModificationCreationRequest{
			AccountID:        rec.AccountID,
			Action:           rec.Action,
			EntityExternalID: rec.EntityExternalID,
			Params:           rec.Params,
			RecommendationID: &recID,
		}, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return mod, nil
}

// closeRecommendation moves an open recommendation to status. The UPDATE is conditional on
// the row still being open.
func closeRecommendation(tx *gorm.DB, id uint, status string) error {
	res := tx.Model(&models.Recommendation{}).Where("id = ? AND status = ?", id, models.RecommendationOpen).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("updating recommendation %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: recommendation %d is no longer open", ErrInvalidTransition, id)
	}
	return nil
}

func loadRecommendation(tx *gorm.DB, id uint, rec *models.Recommendation) error {
	if err := tx.First(rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("recommendation %d: %w", id, ErrNotFound)
		}
		return fmt.Errorf("loading recommendation %d: %w", id, err)
	}
	return nil
}
