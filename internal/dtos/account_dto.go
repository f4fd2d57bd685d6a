package dtos

import "github.com/justsurfingit/adaudit/internal/models"

type AccountFilter struct {
	Query  string `form:"q"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// EntityFilter narrows the campaign, keyword and search term listings of one account.
type EntityFilter struct {
	CampaignID string `form:"campaign_id"`
	Status     string `form:"status"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}

type AccountDetail struct {
	models.Account
	Campaigns            int64  `json:"campaigns"`
	AdGroups             int64  `json:"ad_groups"`
	Keywords             int64  `json:"keywords"`
	SearchTerms          int64  `json:"search_terms"`
	CostMicros           int64  `json:"cost_micros"`
	Cost                 string `json:"cost"`
	OpenRecommendations  int64  `json:"open_recommendations"`
	PendingModifications int64  `json:"pending_modifications"`
}

// ListResponse is the envelope every paginated endpoint answers with.
type ListResponse struct {
	Items  any   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}
