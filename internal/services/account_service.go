package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/justsurfingit/adaudit/internal/dtos"
	"github.com/justsurfingit/adaudit/internal/models"
	"github.com/justsurfingit/adaudit/internal/rules"
	"gorm.io/gorm"
)

type AccountService struct {
	DB *gorm.DB
}

func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{DB: db}
}

// List returns accounts, optionally matched by customer id or name.
func (s *AccountService) List(filter dtos.AccountFilter) ([]models.Account, int64, Page, error) {
	page := Page{Limit: filter.Limit, Offset: filter.Offset}.Normalize()

	q := s.DB.Model(&models.Account{})
	if query := strings.ToLower(strings.TrimSpace(filter.Query)); query != "" {
		// "1234567890" and "123-456-7890" find the same account
		if id, err := NormalizeCustomerID(query); err == nil {
			q = q.Where("customer_id = ?", id)
		} else {
			like := "%" + query + "%"
			digits := "%" + strings.ReplaceAll(query, "-", "") + "%"
			q = q.Where("LOWER(name) LIKE ? OR customer_id LIKE ? OR REPLACE(customer_id, '-', '') LIKE ?", like, like, digits)
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, page, fmt.Errorf("counting accounts: %w", err)
	}
	var accounts []models.Account
	if err := q.Order("name ASC, id ASC").Limit(page.Limit).Offset(page.Offset).Find(&accounts).Error; err != nil {
		return nil, 0, page, fmt.Errorf("listing accounts: %w", err)
	}
	return accounts, total, page, nil
}

// Get returns the account with snapshot and workflow counts.
func (s *AccountService) Get(id uint) (*dtos.AccountDetail, error) {
	account, err := s.Find(id)
	if err != nil {
		return nil, err
	}
	detail := &dtos.AccountDetail{Account: *account}

	counts := []struct {
		model any
		dest  *int64
		where string
		args  []any
	}{
		{&models.Campaign{}, &detail.Campaigns, "account_id = ?", []any{id}},
		{&models.AdGroup{}, &detail.AdGroups, "account_id = ?", []any{id}},
		{&models.Keyword{}, &detail.Keywords, "account_id = ?", []any{id}},
		{&models.SearchTerm{}, &detail.SearchTerms, "account_id = ?", []any{id}},
		{&models.Recommendation{}, &detail.OpenRecommendations, "account_id = ? AND status = ?", []any{id, models.RecommendationOpen}},
		{&models.Modification{}, &detail.PendingModifications, "account_id = ? AND status = ?", []any{id, models.StatusPending}},
	}
	for _, c := range counts {
		if err := s.DB.Model(c.model).Where(c.where, c.args...).Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("counting account %d: %w", id, err)
		}
	}

	err = s.DB.Model(&models.Campaign{}).Where("account_id = ?", id).
		Select("COALESCE(SUM(cost_micros), 0)").Scan(&detail.CostMicros).Error
	if err != nil {
		return nil, fmt.Errorf("summing cost of account %d: %w", id, err)
	}
	detail.Cost = rules.Money(detail.CostMicros, account.CurrencyCode)
	return detail, nil
}

func (s *AccountService) Campaigns(accountID uint, filter dtos.EntityFilter) ([]models.Campaign, int64, Page, error) {
	return listEntities[models.Campaign](s, accountID, filter, "external_id")
}

func (s *AccountService) Keywords(accountID uint, filter dtos.EntityFilter) ([]models.Keyword, int64, Page, error) {
	return listEntities[models.Keyword](s, accountID, filter, "campaign_external_id")
}

func (s *AccountService) SearchTerms(accountID uint, filter dtos.EntityFilter) ([]models.SearchTerm, int64, Page, error) {
	filter.Status = "" // search terms carry no status
	return listEntities[models.SearchTerm](s, accountID, filter, "campaign_external_id")
}

// listEntities pages through one snapshot table, most expensive rows first.
func listEntities[T any](s *AccountService, accountID uint, filter dtos.EntityFilter, campaignColumn string) ([]T, int64, Page, error) {
	page := Page{Limit: filter.Limit, Offset: filter.Offset}.Normalize()
	if _, err := s.Find(accountID); err != nil {
		return nil, 0, page, err
	}

	q := s.DB.Model(new(T)).Where("account_id = ?", accountID)
	if filter.CampaignID != "" {
		q = q.Where(campaignColumn+" = ?", filter.CampaignID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", strings.ToLower(filter.Status))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, page, fmt.Errorf("counting rows: %w", err)
	}
	var rows []T
	if err := q.Order("cost_micros DESC, id ASC").Limit(page.Limit).Offset(page.Offset).Find(&rows).Error; err != nil {
		return nil, 0, page, fmt.Errorf("listing rows: %w", err)
	}
	return rows, total, page, nil
}

// Find loads one account.
func (s *AccountService) Find(id uint) (*models.Account, error) {
	var account models.Account
	if err := s.DB.First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("account %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("loading account %d: %w", id, err)
	}
	return &account, nil
}
