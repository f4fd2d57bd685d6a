// Package rules evaluates an account snapshot against fixed audit heuristics. It does no I/O;
// callers persist the findings as recommendations.
package rules

import (
	"fmt"
	"strings"

	"github.com/justsurfingit/adaudit/internal/config"
	"github.com/justsurfingit/adaudit/internal/models"
	"github.com/shopspring/decimal"
)

const (
	RuleKeywordWastedSpend    = "keyword_wasted_spend"
	RuleLowQualityScore       = "low_quality_score"
	RuleSearchTermNegative    = "search_term_negative"
	RuleHighCPAKeyword        = "high_cpa_keyword"
	RuleBudgetLimited         = "budget_limited"
	RuleCampaignNoConversions = "campaign_no_conversions"

	statusEnabled = "enabled"

	// Bids and budgets are sent to Google Ads in whole cents.
	microsPerCent = 10000
)

var (
	million = decimal.NewFromInt(1_000_000)
	one     = decimal.NewFromInt(1)
)

type Snapshot struct {
	CurrencyCode string
	Campaigns    []models.Campaign
	AdGroups     []models.AdGroup
	Keywords     []models.Keyword
	SearchTerms  []models.SearchTerm
}

// Finding is one rule hit. Action is empty for informational findings.
type Finding struct {
	RuleID      string
	Severity    string
	EntityType  string
	EntityID    string
	Title       string
	Description string
	Action      string
	Params      models.JSONMap
}

type Engine struct {
	cfg config.RulesConfig
}

func NewEngine(cfg config.RulesConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate runs every rule over the snapshot. Paused or removed entities are skipped, and a
// keyword gets at most one finding.
func (e *Engine) Evaluate(snap Snapshot) []Finding {
	accountCPA := accountCPA(snap.Campaigns)
	campaignStatus := make(map[string]string, len(snap.Campaigns))
	for _, c := range snap.Campaigns {
		campaignStatus[c.ExternalID] = c.Status
	}
	adGroupStatus := make(map[string]string, len(snap.AdGroups))
	for _, ag := range snap.AdGroups {
		adGroupStatus[ag.ExternalID] = ag.Status
	}
	// an unknown parent counts as serving; the snapshot may be partial
	serving := func(campaignID, adGroupID string) bool {
		if status, known := campaignStatus[campaignID]; known && status != statusEnabled {
			return false
		}
		if status, known := adGroupStatus[adGroupID]; known && status != statusEnabled {
			return false
		}
		return true
	}

	var findings []Finding
	for _, c := range snap.Campaigns {
		if c.Status != statusEnabled {
			continue
		}
		if f, ok := e.campaignNoConversions(snap.CurrencyCode, c); ok {
			findings = append(findings, f)
			continue
		}
		if f, ok := e.budgetLimited(snap.CurrencyCode, c, accountCPA); ok {
			findings = append(findings, f)
		}
	}

	keywordTexts := make(map[string]bool, len(snap.Keywords))
	for _, k := range snap.Keywords {
		keywordTexts[strings.ToLower(strings.TrimSpace(k.Text))] = true

		if k.Status != statusEnabled || !serving(k.CampaignExternalID, k.AdGroupExternalID) {
			continue
		}

		if f, ok := e.keywordWastedSpend(snap.CurrencyCode, k); ok {
			findings = append(findings, f)
			continue
		}
		if f, ok := e.lowQualityScore(k); ok {
			findings = append(findings, f)
			continue
		}
		if f, ok := e.highCPAKeyword(snap.CurrencyCode, k, accountCPA); ok {
			findings = append(findings, f)
		}
	}

	for _, st := range snap.SearchTerms {
		if keywordTexts[strings.ToLower(strings.TrimSpace(st.Term))] {
			continue
		}
		if !serving(st.CampaignExternalID, st.AdGroupExternalID) {
			continue
		}
		if f, ok := e.searchTermNegative(snap.CurrencyCode, st); ok {
			findings = append(findings, f)
		}
	}
	return findings
}

func (e *Engine) keywordWastedSpend(currency string, k models.Keyword) (Finding, bool) {
	if k.Conversions > 0 || k.CostMicros < e.cfg.WastedSpendMicros {
		return Finding{}, false
	}
	return Finding{
		RuleID:     RuleKeywordWastedSpend,
		Severity:   models.SeverityHigh,
		EntityType: models.EntityKeyword,
		EntityID:   k.ExternalID,
		Title:      fmt.Sprintf("Pause keyword %q: spend without conversions", k.Text),
		Description: fmt.Sprintf("Keyword %q spent %s over %d clicks with no conversions.",
			k.Text, Money(k.CostMicros, currency), k.Clicks),
		Action: models.ActionPauseKeyword,
		Params: models.JSONMap{},
	}, true
}

func (e *Engine) lowQualityScore(k models.Keyword) (Finding, bool) {
	if k.QualityScore < 1 || k.QualityScore > e.cfg.MinQualityScore || k.Impressions < e.cfg.MinImpressions {
		return Finding{}, false
	}
	return Finding{
		RuleID:     RuleLowQualityScore,
		Severity:   models.SeverityMedium,
		EntityType: models.EntityKeyword,
		EntityID:   k.ExternalID,
		Title:      fmt.Sprintf("Pause low quality keyword %q", k.Text),
		Description: fmt.Sprintf("Keyword %q has quality score %d/10 across %d impressions.",
			k.Text, k.QualityScore, k.Impressions),
		Action: models.ActionPauseKeyword,
		Params: models.JSONMap{},
	}, true
}

func (e *Engine) highCPAKeyword(currency string, k models.Keyword, account decimal.Decimal) (Finding, bool) {
	if k.Conversions <= 0 || k.CPCBidMicros <= 0 || account.IsZero() {
		return Finding{}, false
	}
	cpa := CPA(k.CostMicros, k.Conversions)
	limit := account.Mul(decimal.NewFromFloat(e.cfg.CPAMultiplier))
	if cpa.LessThanOrEqual(limit) {
		return Finding{}, false
	}

	newBid := scaleMicros(k.CPCBidMicros, one.Sub(decimal.NewFromFloat(e.cfg.BidStep)))
	if newBid <= 0 || newBid == k.CPCBidMicros {
		return Finding{}, false
	}
	return Finding{
		RuleID:     RuleHighCPAKeyword,
		Severity:   models.SeverityMedium,
		EntityType: models.EntityKeyword,
		EntityID:   k.ExternalID,
		Title:      fmt.Sprintf("Lower bid on keyword %q", k.Text),
		Description: fmt.Sprintf("Keyword %q converts at %s per conversion against an account average of %s. Lower the max CPC from %s to %s.",
			k.Text, formatMoney(cpa, currency), formatMoney(account, currency),
			Money(k.CPCBidMicros, currency), Money(newBid, currency)),
		Action: models.ActionUpdateKeywordBid,
		Params: models.JSONMap{"cpc_bid_micros": newBid},
	}, true
}

func (e *Engine) searchTermNegative(currency string, st models.SearchTerm) (Finding, bool) {
	if st.Conversions > 0 || st.CostMicros < e.cfg.WastedSpendMicros || st.Clicks < e.cfg.MinClicks {
		return Finding{}, false
	}
	if st.CampaignExternalID == "" {
		return Finding{}, false
	}
	return Finding{
		RuleID:     RuleSearchTermNegative,
		Severity:   models.SeverityMedium,
		EntityType: models.EntityCampaign,
		EntityID:   st.CampaignExternalID,
		Title:      fmt.Sprintf("Add %q as a negative keyword", st.Term),
		Description: fmt.Sprintf("Search term %q spent %s over %d clicks with no conversions.",
			st.Term, Money(st.CostMicros, currency), st.Clicks),
		Action: models.ActionAddNegativeKeyword,
		Params: models.JSONMap{"text": st.Term, "match_type": "exact"},
	}, true
}

func (e *Engine) budgetLimited(currency string, c models.Campaign, account decimal.Decimal) (Finding, bool) {
	if c.BudgetMicros <= 0 || c.Conversions <= 0 || c.BudgetLostImpressionShare < e.cfg.BudgetLostShare {
		return Finding{}, false
	}
	if !account.IsZero() && CPA(c.CostMicros, c.Conversions).GreaterThan(account) {
		return Finding{}, false
	}

	newBudget := scaleMicros(c.BudgetMicros, one.Add(decimal.NewFromFloat(e.cfg.BudgetStep)))
	if newBudget <= c.BudgetMicros {
		return Finding{}, false
	}
	return Finding{
		RuleID:     RuleBudgetLimited,
		Severity:   models.SeverityLow,
		EntityType: models.EntityCampaign,
		EntityID:   c.ExternalID,
		Title:      fmt.Sprintf("Raise budget of campaign %q", c.Name),
		Description: fmt.Sprintf("Campaign %q converts at or below the account CPA but lost %.0f%% of impressions to budget. Raise the daily budget from %s to %s.",
			c.Name, c.BudgetLostImpressionShare*100, Money(c.BudgetMicros, currency), Money(newBudget, currency)),
		Action: models.ActionUpdateCampaignBudget,
		Params: models.JSONMap{"budget_micros": newBudget},
	}, true
}

func (e *Engine) campaignNoConversions(currency string, c models.Campaign) (Finding, bool) {
	if c.Conversions > 0 || c.CostMicros < 5*e.cfg.WastedSpendMicros {
		return Finding{}, false
	}
	return Finding{
		RuleID:     RuleCampaignNoConversions,
		Severity:   models.SeverityHigh,
		EntityType: models.EntityCampaign,
		EntityID:   c.ExternalID,
		Title:      fmt.Sprintf("Campaign %q has no conversions", c.Name),
		Description: fmt.Sprintf("Campaign %q spent %s without a single conversion. Check conversion tracking and targeting.",
			c.Name, Money(c.CostMicros, currency)),
	}, true
}

// CPA returns cost per conversion in currency units.
func CPA(costMicros int64, conversions float64) decimal.Decimal {
	if conversions <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(costMicros).Div(million).Div(decimal.NewFromFloat(conversions))
}

func accountCPA(campaigns []models.Campaign) decimal.Decimal {
	var cost int64
	var conversions float64
	for _, c := range campaigns {
		cost += c.CostMicros
		conversions += c.Conversions
	}
	return CPA(cost, conversions)
}

// scaleMicros multiplies an amount and rounds to whole cents.
func scaleMicros(micros int64, factor decimal.Decimal) int64 {
	cents := decimal.NewFromInt(micros).Mul(factor).Div(decimal.NewFromInt(microsPerCent)).Round(0)
	return cents.IntPart() * microsPerCent
}

// Money formats micros as "12.34 EUR".
func Money(micros int64, currency string) string {
	return formatMoney(decimal.New(micros, -6), currency)
}

func formatMoney(amount decimal.Decimal, currency string) string {
	s := amount.StringFixed(2)
	if currency != "" {
		s += " " + currency
	}
	return s
}
