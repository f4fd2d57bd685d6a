package services

import (
	"context"
	"errors"
	"testing"

	"github.com/justsurfingit/adaudit/internal/config"
	"github.com/justsurfingit/adaudit/internal/dtos"
	"github.com/justsurfingit/adaudit/internal/models"
	"github.com/justsurfingit/adaudit/internal/rules"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type stubAnalyzer struct {
	recs []dtos.AIRecommendation
	err  error
	seen *dtos.AccountSummary
}

func (s *stubAnalyzer) AnalyzeAccount(_ context.Context, summary *dtos.AccountSummary) ([]dtos.AIRecommendation, error) {
	s.seen = summary
	return s.recs, s.err
}

var testRules = config.RulesConfig{
	WastedSpendMicros: 50_000_000, MinQualityScore: 3, MinImpressions: 100, MinClicks: 10,
	CPAMultiplier: 2, BidStep: 0.2, BudgetLostShare: 0.2, BudgetStep: 0.2,
}

func seedSnapshot(t *testing.T, db *gorm.DB) models.Account {
	t.Helper()
	account := createAccount(t, db, "123-456-7890")
	require.NoError(t, db.Create(&models.Campaign{
		AccountID: account.ID, ExternalID: "c1", Name: "Search", Status: "enabled", BudgetMicros: 20_000_000,
		Metrics: models.Metrics{CostMicros: 100_000_000, Conversions: 10},
	}).Error)
	require.NoError(t, db.Create(&models.Keyword{
		AccountID: account.ID, CampaignExternalID: "c1", ExternalID: "k1", Text: "cheap shoes", Status: "enabled",
		Metrics: models.Metrics{Clicks: 40, CostMicros: 60_000_000},
	}).Error)
	require.NoError(t, db.Create(&models.Keyword{
		AccountID: account.ID, CampaignExternalID: "c1", ExternalID: "k2", Text: "shoes", Status: "enabled",
		Metrics: models.Metrics{Clicks: 5, CostMicros: 1_000_000, Conversions: 3},
	}).Error)
	return account
}

func newAnalysisService(db *gorm.DB, ai AIAnalyzer) *AnalysisService {
	return NewAnalysisService(db, zap.NewNop(), rules.NewEngine(testRules), ai, 20000)
}

func TestAnalyzeStoresRuleRecommendations(t *testing.T) {
	db := newTestDB(t)
	account := seedSnapshot(t, db)
	svc := newAnalysisService(db, nil)

	res, err := svc.Analyze(context.Background(), account.ID, false)
	require.NoError(t, err)
	require.Equal(t, 1, res.RuleFindings)
	require.Zero(t, res.AIFindings)

	var recs []models.Recommendation
	require.NoError(t, db.Where("account_id = ?", account.ID).Find(&recs).Error)
	require.Len(t, recs, 1)
	require.Equal(t, rules.RuleKeywordWastedSpend, recs[0].RuleID)
	require.Equal(t, "k1", recs[0].EntityExternalID)
	require.Equal(t, res.AnalysisID, recs[0].AnalysisID)

	// Re-running replaces open recommendations instead of piling them up.
	_, err = svc.Analyze(context.Background(), account.ID, false)
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Model(&models.Recommendation{}).Where("account_id = ?", account.ID).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestAnalyzeSkipsKeywordsInPausedAdGroups(t *testing.T) {
	db := newTestDB(t)
	account := createAccount(t, db, "123-456-7890")
	require.NoError(t, db.Create(&models.Campaign{
		AccountID: account.ID, ExternalID: "c1", Name: "Search", Status: "enabled",
		Metrics: models.Metrics{CostMicros: 500_000_000, Conversions: 50},
	}).Error)
	require.NoError(t, db.Create(&models.AdGroup{
		AccountID: account.ID, CampaignExternalID: "c1", ExternalID: "ag1", Name: "Boots", Status: "paused",
	}).Error)
	require.NoError(t, db.Create(&models.Keyword{
		AccountID: account.ID, CampaignExternalID: "c1", AdGroupExternalID: "ag1", ExternalID: "k1",
		Text: "boots", Status: "enabled", Metrics: models.Metrics{Clicks: 40, CostMicros: 90_000_000},
	}).Error)

	res, err := newAnalysisService(db, nil).Analyze(context.Background(), account.ID, false)
	require.NoError(t, err)
	require.Zero(t, res.RuleFindings)
}

func TestAnalyzeKeepsDismissedRecommendations(t *testing.T) {
	db := newTestDB(t)
	account := seedSnapshot(t, db)
	svc := newAnalysisService(db, nil)
	recSvc := NewRecommendationService(db, newModificationService(db))

	_, err := svc.Analyze(context.Background(), account.ID, false)
	require.NoError(t, err)
	recs, _, err := recSvc.List(dtos.RecommendationFilter{AccountID: account.ID})
	require.NoError(t, err)
	_, err = recSvc.Dismiss(recs[0].ID)
	require.NoError(t, err)

	_, err = svc.Analyze(context.Background(), account.ID, false)
	require.NoError(t, err)
	_, total, err := recSvc.List(dtos.RecommendationFilter{AccountID: account.ID})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
}

func TestConcurrentAnalysesLeaveOneOpenSet(t *testing.T) {
	db := newTestDB(t)
	account := seedSnapshot(t, db)
	svc := newAnalysisService(db, nil)

	var g errgroup.Group
	for range 4 {
		g.Go(func() error {
			_, err := svc.Analyze(context.Background(), account.ID, false)
			return err
		})
	}
	require.NoError(t, g.Wait())

	var ids []string
	require.NoError(t, db.Model(&models.Recommendation{}).
		Where("account_id = ? AND status = ?", account.ID, models.RecommendationOpen).
		Distinct().Pluck("analysis_id", &ids).Error)
	require.Len(t, ids, 1)
}

func TestAnalyzeWithAIMapsSuggestions(t *testing.T) {
	db := newTestDB(t)
	account := seedSnapshot(t, db)
	ai := &stubAnalyzer{recs: []dtos.AIRecommendation{
		{Title: "Lower bid", Severity: "HIGH", EntityType: "keyword", EntityID: "k2",
			Action: "update_keyword_bid", Params: map[string]any{"cpc_bid_micros": float64(500000)}},
		{Title: "Pause ghost", EntityType: "keyword", EntityID: "nope", Action: "pause_keyword"},
		{Title: "Review landing pages", Severity: "whatever"},
		{Title: ""},
	}}
	svc := newAnalysisService(db, ai)

	res, err := svc.Analyze(context.Background(), account.ID, true)
	require.NoError(t, err)
	require.Equal(t, 3, res.AIFindings)
	require.Equal(t, "123-456-7890", ai.seen.CustomerID)
	require.Len(t, ai.seen.Keywords, 2)
	require.Equal(t, "k1", ai.seen.Keywords[0]["id"])

	var recs []models.Recommendation
	require.NoError(t, db.Where("account_id = ? AND source = ?", account.ID, models.SourceAI).Order("id").Find(&recs).Error)
	require.Len(t, recs, 3)

	require.Equal(t, models.ActionUpdateKeywordBid, recs[0].Action)
	require.Equal(t, models.SeverityHigh, recs[0].Severity)
	v, ok := recs[0].Params.Int64("cpc_bid_micros")
	require.True(t, ok)
	require.Equal(t, int64(500000), v)

	require.Empty(t, recs[1].Action, "unknown entity keeps no action")
	require.Equal(t, "account", recs[2].EntityType)
	require.Equal(t, models.SeverityMedium, recs[2].Severity)
}

func TestAnalyzeAIErrors(t *testing.T) {
	db := newTestDB(t)
	account := seedSnapshot(t, db)

	_, err := newAnalysisService(db, nil).Analyze(context.Background(), account.ID, true)
	require.ErrorIs(t, err, ErrValidation)

	_, err = newAnalysisService(db, &stubAnalyzer{err: errors.New("boom")}).Analyze(context.Background(), account.ID, true)
	require.ErrorContains(t, err, "boom")

	_, err = newAnalysisService(db, nil).Analyze(context.Background(), 999, false)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBuildSummaryShrinksToFit(t *testing.T) {
	account := &models.Account{CustomerID: "123-456-7890"}
	var snap rules.Snapshot
	for i := 0; i < 200; i++ {
		snap.Keywords = append(snap.Keywords, models.Keyword{
			ExternalID: "k", Text: "some reasonably long keyword text", Metrics: models.Metrics{CostMicros: int64(i)},
		})
	}

	full := BuildSummary(account, snap, 0)
	require.Len(t, full.Keywords, summaryKeywords)
	require.Equal(t, int64(199), full.Keywords[0]["cost_micros"])

	small := BuildSummary(account, snap, 2000)
	require.Less(t, len(small.Keywords), summaryKeywords)
	require.NotEmpty(t, small.Keywords)
}

func TestConvertRecommendationCreatesPendingModification(t *testing.T) {
	db := newTestDB(t)
	account := seedSnapshot(t, db)
	_, err := newAnalysisService(db, nil).Analyze(context.Background(), account.ID, false)
	require.NoError(t, err)

	recSvc := NewRecommendationService(db, newModificationService(db))
	recs, _, err := recSvc.List(dtos.RecommendationFilter{AccountID: account.ID, Status: models.RecommendationOpen})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	mod, err := recSvc.Convert(recs[0].ID, "ana")
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, mod.Status)
	require.Equal(t, models.ActionPauseKeyword, mod.Action)
	require.Equal(t, recs[0].ID, *mod.RecommendationID)

	_, err = recSvc.Convert(recs[0].ID, "ana")
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = recSvc.Dismiss(recs[0].ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	info := models.Recommendation{AccountID: account.ID, Source: models.SourceAI, Title: "Check tracking", Status: models.RecommendationOpen}
	require.NoError(t, db.Create(&info).Error)
	_, err = recSvc.Convert(info.ID, "ana")
	require.ErrorIs(t, err, ErrValidation)
}

func TestConvertLosesToConcurrentStatusChange(t *testing.T) {
	db := newTestDB(t)
	account := seedSnapshot(t, db)
	_, err := newAnalysisService(db, nil).Analyze(context.Background(), account.ID, false)
	require.NoError(t, err)

	recSvc := NewRecommendationService(db, newModificationService(db))
	recs, _, err := recSvc.List(dtos.RecommendationFilter{AccountID: account.ID, Status: models.RecommendationOpen})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	// another reviewer converts the row right after this call has read it as open
	armed := true
	err = db.Callback().Query().After("gorm:query").Register("test:concurrent_convert", func(tx *gorm.DB) {
		if !armed || tx.Statement.Table != "recommendations" {
			return
		}
		armed = false
		tx.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE recommendations SET status = ? WHERE id = ?", models.RecommendationConverted, recs[0].ID)
	})
	require.NoError(t, err)

	_, err = recSvc.Convert(recs[0].ID, "bob")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.False(t, armed)

	var count int64
	require.NoError(t, db.Model(&models.Modification{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestDismissLosesToConcurrentStatusChange(t *testing.T) {
	db := newTestDB(t)
	account := createAccount(t, db, "123-456-7890")
	rec := models.Recommendation{AccountID: account.ID, Source: models.SourceRule, Title: "Pause", Status: models.RecommendationOpen}
	require.NoError(t, db.Create(&rec).Error)

	require.NoError(t, db.Model(&rec).Update("status", models.RecommendationConverted).Error)
	err := db.Transaction(func(tx *gorm.DB) error {
		return closeRecommendation(tx, rec.ID, models.RecommendationDismissed)
	})
	require.ErrorIs(t, err, ErrInvalidTransition)

	var got models.Recommendation
	require.NoError(t, db.First(&got, rec.ID).Error)
	require.Equal(t, models.RecommendationConverted, got.Status)
}
