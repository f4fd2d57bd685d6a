package dtos

type AnalyzeRequest struct {
	IncludeAI bool `json:"include_ai"`
}

// AIRecommendation is the shape the LLM is asked to answer with.
type AIRecommendation struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Severity    string         `json:"severity"`
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	Action      string         `json:"action"`
	Params      map[string]any `json:"params"`
}

type AnalysisResponse struct {
	AnalysisID      string `json:"analysis_id"`
	RuleFindings    int    `json:"rule_findings"`
	AIFindings      int    `json:"ai_findings"`
	Recommendations int    `json:"recommendations"`
}

type RecommendationFilter struct {
	AccountID uint   `form:"account_id"`
	Status    string `form:"status"`
	Source    string `form:"source"`
	Severity  string `form:"severity"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}

// AccountSummary is the condensed account view handed to the LLM.
type AccountSummary struct {
	CustomerID   string           `json:"customer_id"`
	Name         string           `json:"name"`
	CurrencyCode string           `json:"currency_code"`
	Campaigns    []map[string]any `json:"campaigns"`
	Keywords     []map[string]any `json:"keywords"`
	SearchTerms  []map[string]any `json:"search_terms"`
}
