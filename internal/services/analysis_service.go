package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/justsurfingit/adaudit/internal/dtos"
	"github.com/justsurfingit/adaudit/internal/models"
	"github.com/justsurfingit/adaudit/internal/rules"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AIAnalyzer is implemented by LLMService.
type AIAnalyzer interface {
	AnalyzeAccount(ctx context.Context, summary *dtos.AccountSummary) ([]dtos.AIRecommendation, error)
}

type AnalysisService struct {
	DB    *gorm.DB
	Log   *zap.Logger
	Rules *rules.Engine

	// AI is nil when no LLM is configured.
	AI            AIAnalyzer
	MaxInputBytes int
}

func NewAnalysisService(db *gorm.DB, log *zap.Logger, engine *rules.Engine, ai AIAnalyzer, maxInputBytes int) *AnalysisService {
	return &AnalysisService{DB: db, Log: log, Rules: engine, AI: ai, MaxInputBytes: maxInputBytes}
}

// Analyze regenerates recommendations for an account. Open recommendations from the sources
// that ran are replaced; dismissed and converted ones are kept for history.
func (s *AnalysisService) Analyze(ctx context.Context, accountID uint, includeAI bool) (*dtos.AnalysisResponse, error) {
	if includeAI && s.AI == nil {
		return nil, fmt.Errorf("%w: AI analysis is not configured", ErrValidation)
	}

	account, snap, err := s.loadSnapshot(accountID)
	if err != nil {
		return nil, err
	}
	analysisID := uuid.NewString()

	var ruleRecs, aiRecs []models.Recommendation
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for _, f := range s.Rules.Evaluate(snap) {
			ruleRecs = append(ruleRecs, fromFinding(account.ID, analysisID, f))
		}
		return nil
	})
	if includeAI {
		g.Go(func() error {
			summary := BuildSummary(account, snap, s.MaxInputBytes)
			suggestions, err := s.AI.AnalyzeAccount(gctx, summary)
			if err != nil {
				return fmt.Errorf("ai analysis: %w", err)
			}
			aiRecs = fromAI(account.ID, analysisID, suggestions, snap)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sources := []string{models.SourceRule}
	if includeAI {
		sources = append(sources, models.SourceAI)
	}
	all := append(ruleRecs, aiRecs...)

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		// one analysis per account at a time; a second one waits here and then replaces this set
		var locked models.Account
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&locked, account.ID).Error; err != nil {
			return fmt.Errorf("locking account %d: %w", account.ID, err)
		}
		err := tx.Where("account_id = ? AND status = ? AND source IN ?", account.ID, models.RecommendationOpen, sources).
			Delete(&models.Recommendation{}).Error
		if err != nil {
			return fmt.Errorf("clearing open recommendations: %w", err)
		}
		if len(all) == 0 {
			return nil
		}
		return tx.CreateInBatches(all, insertBatchSize).Error
	})
	if err != nil {
		return nil, fmt.Errorf("storing recommendations: %w", err)
	}

	s.Log.Info("analysis finished",
		zap.Uint("account_id", account.ID),
		zap.String("analysis_id", analysisID),
		zap.Int("rule_findings", len(ruleRecs)),
		zap.Int("ai_findings", len(aiRecs)))

	return &dtos.AnalysisResponse{
		AnalysisID:      analysisID,
		RuleFindings:    len(ruleRecs),
		AIFindings:      len(aiRecs),
		Recommendations: len(all),
	}, nil
}

// AnalyzeAfterIngest is wired as IngestService.OnComplete. It runs rules only and logs failures.
func (s *AnalysisService) AnalyzeAfterIngest(ctx context.Context, accountID uint) {
	if _, err := s.Analyze(ctx, accountID, false); err != nil {
		s.Log.Error("post-ingest analysis failed", zap.Uint("account_id", accountID), zap.Error(err))
	}
}

func (s *AnalysisService) loadSnapshot(accountID uint) (*models.Account, rules.Snapshot, error) {
	var account models.Account
	if err := s.DB.First(&account, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, rules.Snapshot{}, fmt.Errorf("account %d: %w", accountID, ErrNotFound)
		}
		return nil, rules.Snapshot{}, fmt.Errorf("loading account %d: %w", accountID, err)
	}

	snap := rules.Snapshot{CurrencyCode: account.CurrencyCode}
	if err := s.DB.Where("account_id = ?", accountID).Order("id").Find(&snap.Campaigns).Error; err != nil {
		return nil, snap, fmt.Errorf("loading campaigns: %w", err)
	}
	if err := s.DB.Where("account_id = ?", accountID).Order("id").Find(&snap.AdGroups).Error; err != nil {
		return nil, snap, fmt.Errorf("loading ad groups: %w", err)
	}
	if err := s.DB.Where("account_id = ?", accountID).Order("id").Find(&snap.Keywords).Error; err != nil {
		return nil, snap, fmt.Errorf("loading keywords: %w", err)
	}
	if err := s.DB.Where("account_id = ?", accountID).Order("id").Find(&snap.SearchTerms).Error; err != nil {
		return nil, snap, fmt.Errorf("loading search terms: %w", err)
	}
	return &account, snap, nil
}

func fromFinding(accountID uint, analysisID string, f rules.Finding) models.Recommendation {
	return models.Recommendation{
		AccountID:        accountID,
		AnalysisID:       analysisID,
		Source:           models.SourceRule,
		RuleID:           f.RuleID,
		Severity:         f.Severity,
		EntityType:       f.EntityType,
		EntityExternalID: f.EntityID,
		Title:            f.Title,
		Description:      f.Description,
		Action:           f.Action,
		Params:           f.Params,
		Status:           models.RecommendationOpen,
	}
}

// fromAI maps LLM output onto recommendations. Suggestions whose action is unknown, has bad
// params, or targets an entity missing from the snapshot are kept without an action.
func fromAI(accountID uint, analysisID string, suggestions []dtos.AIRecommendation, snap rules.Snapshot) []models.Recommendation {
	keywords := map[string]bool{}
	for _, k := range snap.Keywords {
		keywords[k.ExternalID] = true
	}
	campaigns := map[string]bool{}
	for _, c := range snap.Campaigns {
		campaigns[c.ExternalID] = true
	}

	recs := make([]models.Recommendation, 0, len(suggestions))
	for _, sug := range suggestions {
		if strings.TrimSpace(sug.Title) == "" {
			continue
		}
		rec := models.Recommendation{
			AccountID:        accountID,
			AnalysisID:       analysisID,
			Source:           models.SourceAI,
			Severity:         normalizeSeverity(sug.Severity),
			EntityType:       strings.ToLower(strings.TrimSpace(sug.EntityType)),
			EntityExternalID: strings.TrimSpace(sug.EntityID),
			Title:            sug.Title,
			Description:      sug.Description,
			Status:           models.RecommendationOpen,
		}

		action := strings.TrimSpace(sug.Action)
		params := models.JSONMap(sug.Params)
		if action != "" && models.ValidateAction(action, params) == nil {
			entity := models.EntityForAction(action)
			known := (entity == models.EntityKeyword && keywords[rec.EntityExternalID]) ||
				(entity == models.EntityCampaign && campaigns[rec.EntityExternalID])
			if known {
				rec.Action = action
				rec.Params = params
				rec.EntityType = entity
			}
		}
		if rec.EntityType != models.EntityKeyword && rec.EntityType != models.EntityCampaign {
			rec.EntityType = "account"
		}
		recs = append(recs, rec)
	}
	return recs
}

func normalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case models.SeverityLow:
		return models.SeverityLow
	case models.SeverityHigh:
		return models.SeverityHigh
	default:
		return models.SeverityMedium
	}
}

const (
	summaryCampaigns   = 20
	summaryKeywords    = 60
	summarySearchTerms = 60
)

// BuildSummary picks the costliest entities and shrinks the lists until the JSON fits maxBytes.
func BuildSummary(account *models.Account, snap rules.Snapshot, maxBytes int) *dtos.AccountSummary {
	campaigns := append([]models.Campaign(nil), snap.Campaigns...)
	sort.SliceStable(campaigns, func(i, j int) bool { return campaigns[i].CostMicros > campaigns[j].CostMicros })
	keywords := append([]models.Keyword(nil), snap.Keywords...)
	sort.SliceStable(keywords, func(i, j int) bool { return keywords[i].CostMicros > keywords[j].CostMicros })
	terms := append([]models.SearchTerm(nil), snap.SearchTerms...)
	sort.SliceStable(terms, func(i, j int) bool { return terms[i].CostMicros > terms[j].CostMicros })

	nc, nk, nt := summaryCampaigns, summaryKeywords, summarySearchTerms
	for {
		summary := &dtos.AccountSummary{
			CustomerID:   account.CustomerID,
			Name:         account.Name,
			CurrencyCode: account.CurrencyCode,
			Campaigns:    []map[string]any{},
			Keywords:     []map[string]any{},
			SearchTerms:  []map[string]any{},
		}
		for _, c := range campaigns[:min(nc, len(campaigns))] {
			summary.Campaigns = append(summary.Campaigns, map[string]any{
				"id": c.ExternalID, "name": c.Name, "status": c.Status, "budget_micros": c.BudgetMicros,
				"budget_lost_impression_share": c.BudgetLostImpressionShare, "cost_micros": c.CostMicros,
				"clicks": c.Clicks, "conversions": c.Conversions,
			})
		}
		for _, k := range keywords[:min(nk, len(keywords))] {
			summary.Keywords = append(summary.Keywords, map[string]any{
				"id": k.ExternalID, "campaign_id": k.CampaignExternalID, "text": k.Text, "match_type": k.MatchType,
				"status": k.Status, "quality_score": k.QualityScore, "cpc_bid_micros": k.CPCBidMicros,
				"cost_micros": k.CostMicros, "clicks": k.Clicks, "conversions": k.Conversions,
			})
		}
		for _, st := range terms[:min(nt, len(terms))] {
			summary.SearchTerms = append(summary.SearchTerms, map[string]any{
				"term": st.Term, "campaign_id": st.CampaignExternalID,
				"cost_micros": st.CostMicros, "clicks": st.Clicks, "conversions": st.Conversions,
			})
		}

		data, _ := json.Marshal(summary)
		if maxBytes <= 0 || len(data) <= maxBytes || (nc <= 1 && nk <= 1 && nt <= 1) {
			return summary
		}
		nc, nk, nt = max(nc/2, 1), max(nk/2, 1), max(nt/2, 1)
	}
}
