package dtos

import (
	"encoding/json"

	"github.com/justsurfingit/adaudit/internal/models"
)

type RunStartRequest struct {
	CustomerID   string `json:"customer_id" binding:"required"`
	AccountName  string `json:"account_name"`
	CurrencyCode string `json:"currency_code" binding:"omitempty,len=3"`
	TimeZone     string `json:"time_zone"`
}

// ChunkRequest carries one page of a dataset. Rows must be a JSON array.
type ChunkRequest struct {
	Dataset     string          `json:"dataset" binding:"required,oneof=campaigns ad_groups keywords search_terms"`
	ChunkIndex  *int            `json:"chunk_index" binding:"required,min=0"`
	TotalChunks int             `json:"total_chunks" binding:"required,min=1"`
	Rows        json.RawMessage `json:"rows" binding:"required"`
}

type DatasetProgress struct {
	Dataset  string `json:"dataset"`
	Received int    `json:"received"`
	Total    int    `json:"total"`
	RowCount int    `json:"rows"`
}

type RunStatusResponse struct {
	models.IngestRun
	CustomerID string            `json:"customer_id"`
	Datasets   []DatasetProgress `json:"datasets"`
}

// Rows sent by the Google Ads script, one struct per dataset.

type CampaignRow struct {
	ID                        string  `json:"id"`
	Name                      string  `json:"name"`
	Status                    string  `json:"status"`
	ChannelType               string  `json:"channel_type"`
	BudgetMicros              int64   `json:"budget_micros"`
	SearchImpressionShare     float64 `json:"search_impression_share"`
	BudgetLostImpressionShare float64 `json:"budget_lost_impression_share"`
	models.Metrics
}

type AdGroupRow struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	models.Metrics
}

type KeywordRow struct {
	ID           string `json:"id"`
	CampaignID   string `json:"campaign_id"`
	AdGroupID    string `json:"ad_group_id"`
	Text         string `json:"text"`
	MatchType    string `json:"match_type"`
	Status       string `json:"status"`
	QualityScore int    `json:"quality_score"`
	CPCBidMicros int64  `json:"cpc_bid_micros"`
	models.Metrics
}

type SearchTermRow struct {
	Term       string `json:"term"`
	CampaignID string `json:"campaign_id"`
	AdGroupID  string `json:"ad_group_id"`
	models.Metrics
}
