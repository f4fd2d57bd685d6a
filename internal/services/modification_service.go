package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/justsurfingit/adaudit/internal/dtos"
	"github.com/justsurfingit/adaudit/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const scriptActor = "scripts"

type ModificationService struct {
	DB  *gorm.DB
	Log *zap.Logger
	Now func() time.Time
}

func NewModificationService(db *gorm.DB, log *zap.Logger) *ModificationService {
	return &ModificationService{DB: db, Log: log, Now: time.Now}
}

// Create stores a new pending modification after checking the action and its params.
func (s *ModificationService) Create(req *dtos.ModificationCreationRequest, actor string) (*models.Modification, error) {
	var mod *models.Modification
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		mod, err = s.create(tx, req, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return mod, nil
}

func (s *ModificationService) create(tx *gorm.DB, req *dtos.ModificationCreationRequest, actor string) (*models.Modification, error) {
	params := models.JSONMap(req.Params)
	if err := models.ValidateAction(req.Action, params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if strings.TrimSpace(req.EntityExternalID) == "" {
		return nil, fmt.Errorf("%w: entity_external_id is required", ErrValidation)
	}

	var account models.Account
	if err := tx.First(&account, req.AccountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("account %d: %w", req.AccountID, ErrNotFound)
		}
		return nil, fmt.Errorf("loading account %d: %w", req.AccountID, err)
	}

	mod := &models.Modification{
		AccountID:        account.ID,
		RecommendationID: req.RecommendationID,
		EntityType:       models.EntityForAction(req.Action),
		EntityExternalID: req.EntityExternalID,
		Action:           req.Action,
		Params:           params,
		Status:           models.StatusPending,
		RequestedBy:      actor,
	}
	if err := tx.Create(mod).Error; err != nil {
		return nil, fmt.Errorf("creating modification: %w", err)
	}

	event := models.ModificationEvent{
		ModificationID: mod.ID,
		ToStatus:       models.StatusPending,
		Actor:          actor,
		Details:        fmt.Sprintf("Requested %s on %s %s", mod.Action, mod.EntityType, mod.EntityExternalID),
	}
	if err := tx.Create(&event).Error; err != nil {
		return nil, fmt.Errorf("recording event: %w", err)
	}
	return mod, nil
}

func (s *ModificationService) Get(id uint) (*models.Modification, error) {
	var mod models.Modification
	err := s.DB.Preload("Events", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	}).First(&mod, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("modification %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("loading modification %d: %w", id, err)
	}
	return &mod, nil
}

func (s *ModificationService) List(filter dtos.ModificationFilter) ([]models.Modification, int64, error) {
	page := Page{Limit: filter.Limit, Offset: filter.Offset}.Normalize()

	q := s.DB.Model(&models.Modification{})
	if filter.AccountID != 0 {
		q = q.Where("account_id = ?", filter.AccountID)
	}
	if filter.Status != "" {
		if !models.ValidStatus(filter.Status) {
			return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
		}
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting modifications: %w", err)
	}

	var mods []models.Modification
	if err := q.Order("id DESC").Limit(page.Limit).Offset(page.Offset).Find(&mods).Error; err != nil {
		return nil, 0, fmt.Errorf("listing modifications: %w", err)
	}
	return mods, total, nil
}

func (s *ModificationService) Approve(id uint, reviewer, note string) (*models.Modification, error) {
	now := s.Now()
	return s.transition(id, models.StatusApproved, reviewer, "Approved", map[string]interface{}{
		"reviewed_by": reviewer,
		"review_note": note,
		"reviewed_at": now,
	})
}

// Reject needs a note so the requester can see why.
func (s *ModificationService) Reject(id uint, reviewer, note string) (*models.Modification, error) {
	if strings.TrimSpace(note) == "" {
		return nil, fmt.Errorf("%w: a note is required to reject", ErrValidation)
	}
	now := s.Now()
	return s.transition(id, models.StatusRejected, reviewer, "Rejected: "+note, map[string]interface{}{
		"reviewed_by": reviewer,
		"review_note": note,
		"reviewed_at": now,
	})
}

// Retry puts a failed modification back in the approved queue.
func (s *ModificationService) Retry(id uint, actor string) (*models.Modification, error) {
	return s.transition(id, models.StatusApproved, actor, "Retry requested", map[string]interface{}{
		"error_message":         "",
		"processing_started_at": nil,
	})
}

// BulkReview applies one decision to many modifications. Failures are reported per id.
func (s *ModificationService) BulkReview(req *dtos.BulkReviewRequest, reviewer string) []dtos.BulkReviewOutcome {
	outcomes := make([]dtos.BulkReviewOutcome, 0, len(req.IDs))
	for _, id := range req.IDs {
		var (
			mod *models.Modification
			err error
		)
		if req.Decision == "approve" {
			mod, err = s.Approve(id, reviewer, req.Note)
		} else {
			mod, err = s.Reject(id, reviewer, req.Note)
		}

		outcome := dtos.BulkReviewOutcome{ID: id}
		if err != nil {
			outcome.Error = err.Error()
		} else {
			outcome.Status = mod.Status
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// ClaimForApply moves up to limit approved modifications of one account to processing and
// returns them. A modification is handed out at most once per approval.
func (s *ModificationService) ClaimForApply(customerID string, limit int) ([]dtos.ScriptModification, error) {
	if limit <= 0 || limit > maxPageLimit {
		limit = defaultPageLimit
	}

	var claimed []dtos.ScriptModification
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var account models.Account
		if err := tx.Where("customer_id = ?", customerID).First(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("account %s: %w", customerID, ErrNotFound)
			}
			return fmt.Errorf("loading account %s: %w", customerID, err)
		}

		var candidates []models.Modification
		err := tx.Where("account_id = ? AND status = ?", account.ID, models.StatusApproved).
			Order("id ASC").Limit(limit).Find(&candidates).Error
		if err != nil {
			return fmt.Errorf("loading approved modifications: %w", err)
		}

		now := s.Now()
		for _, mod := range candidates {
			err := s.apply(tx, &mod, models.StatusProcessing, scriptActor, "Claimed by script", map[string]interface{}{
				"processing_started_at": now,
				"attempts":              gorm.Expr("attempts + 1"),
			})
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}
			if err != nil {
				return err
			}
			claimed = append(claimed, dtos.ScriptModification{
				ID:         mod.ID,
				CustomerID: account.CustomerID,
				Action:     mod.Action,
				EntityType: mod.EntityType,
				EntityID:   mod.EntityExternalID,
				Params:     mod.Params,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(claimed) > 0 {
		s.Log.Info("modifications claimed for apply",
			zap.String("customer_id", customerID), zap.Int("count", len(claimed)))
	}
	return claimed, nil
}

// ReportResults records what the script did with each claimed modification.
func (s *ModificationService) ReportResults(results []dtos.ScriptResult) []dtos.ScriptResultOutcome {
	outcomes := make([]dtos.ScriptResultOutcome, 0, len(results))
	for _, r := range results {
		var (
			mod *models.Modification
			err error
		)
		if r.Success {
			appliedAt := s.Now()
			if r.AppliedAt != nil {
				appliedAt = *r.AppliedAt
			}
			mod, err = s.transition(r.ID, models.StatusApplied, scriptActor, "Applied by script", map[string]interface{}{
				"applied_at":    appliedAt,
				"error_message": "",
			})
		} else {
			msg := strings.TrimSpace(r.Error)
			if msg == "" {
				msg = "script reported failure"
			}
			mod, err = s.transition(r.ID, models.StatusFailed, scriptActor, "Failed: "+msg, map[string]interface{}{
				"error_message": msg,
			})
		}

		outcome := dtos.ScriptResultOutcome{ID: r.ID}
		if err != nil {
			outcome.Error = err.Error()
			s.Log.Warn("script result rejected", zap.Uint("modification_id", r.ID), zap.Error(err))
		} else {
			outcome.Status = mod.Status
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// ReapStale fails modifications that have been processing longer than timeout.
func (s *ModificationService) ReapStale(timeout time.Duration) (int, error) {
	cutoff := s.Now().Add(-timeout)

	var stale []models.Modification
	err := s.DB.Where("status = ? AND processing_started_at < ?", models.StatusProcessing, cutoff).
		Find(&stale).Error
	if err != nil {
		return 0, fmt.Errorf("finding stale modifications: %w", err)
	}

	reaped := 0
	for _, mod := range stale {
		msg := fmt.Sprintf("timed out waiting for script result after %s", timeout)
		_, err := s.transition(mod.ID, models.StatusFailed, "reaper", msg, map[string]interface{}{
			"error_message": msg,
		})
		if errors.Is(err, ErrInvalidTransition) {
			// Result arrived in the meantime.
			continue
		}
		if err != nil {
			return reaped, err
		}
		reaped++
	}
	if reaped > 0 {
		s.Log.Warn("reaped stale modifications", zap.Int("count", reaped))
	}
	return reaped, nil
}

func (s *ModificationService) transition(id uint, to, actor, details string, updates map[string]interface{}) (*models.Modification, error) {
	var mod models.Modification
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&mod, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("modification %d: %w", id, ErrNotFound)
			}
			return fmt.Errorf("loading modification %d: %w", id, err)
		}
		if err := s.apply(tx, &mod, to, actor, details, updates); err != nil {
			return err
		}
		return tx.First(&mod, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &mod, nil
}

// apply moves mod to status `to` with a conditional update on the current status, so a
// concurrent writer that got there first makes this call fail instead of overwriting it.
func (s *ModificationService) apply(tx *gorm.DB, mod *models.Modification, to, actor, details string, updates map[string]interface{}) error {
	from := mod.Status
	if !models.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	values := map[string]interface{}{"status": to}
	for k, v := range updates {
		values[k] = v
	}

	res := tx.Model(&models.Modification{}).Where("id = ? AND status = ?", mod.ID, from).Updates(values)
	if res.Error != nil {
		return fmt.Errorf("updating modification %d: %w", mod.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: modification %d is no longer %s", ErrInvalidTransition, mod.ID, from)
	}

	event := models.ModificationEvent{
		ModificationID: mod.ID,
		FromStatus:     from,
		ToStatus:       to,
		Actor:          actor,
		Details:        details,
	}
	if err := tx.Create(&event).Error; err != nil {
		return fmt.Errorf("recording event: %w", err)
	}
	mod.Status = to
	return nil
}
