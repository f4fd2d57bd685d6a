package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	Name         string `json:"name"`
	PasswordHash string `json:"-"`
	Role         string `gorm:"default:'viewer'" json:"role"`
}

type Session struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	TokenHash string    `gorm:"uniqueIndex;not null" json:"-"`
	UserID    uint      `gorm:"index" json:"user_id"`
	User      User      `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Account is one Google Ads customer. CustomerID keeps the dashed form ("123-456-7890").
type Account struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	CustomerID     string     `gorm:"uniqueIndex;not null" json:"customer_id"`
	Name           string     `json:"name"`
	CurrencyCode   string     `json:"currency_code"`
	TimeZone       string     `json:"time_zone"`
	LastIngestedAt *time.Time `json:"last_ingested_at"`
}

// Metrics is embedded into every snapshot row. Cost is in micros of the account currency.
type Metrics struct {
	Impressions     int64   `json:"impressions"`
	Clicks          int64   `json:"clicks"`
	CostMicros      int64   `json:"cost_micros"`
	Conversions     float64 `json:"conversions"`
	ConversionValue float64 `json:"conversion_value"`
}

type Campaign struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	AccountID uint      `gorm:"index;not null" json:"account_id"`

	ExternalID                string  `gorm:"index" json:"external_id"`
	Name                      string  `json:"name"`
	Status                    string  `json:"status"`
	ChannelType               string  `json:"channel_type"`
	BudgetMicros              int64   `json:"budget_micros"`
	SearchImpressionShare     float64 `json:"search_impression_share"`
	BudgetLostImpressionShare float64 `json:"budget_lost_impression_share"`
	Metrics                   `gorm:"embedded"`
}

type AdGroup struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	AccountID uint      `gorm:"index;not null" json:"account_id"`

	CampaignExternalID string `json:"campaign_external_id"`
	ExternalID         string `gorm:"index" json:"external_id"`
	Name               string `json:"name"`
	Status             string `json:"status"`
	Metrics            `gorm:"embedded"`
}

type Keyword struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	AccountID uint      `gorm:"index;not null" json:"account_id"`

	CampaignExternalID string `json:"campaign_external_id"`
	AdGroupExternalID  string `json:"ad_group_external_id"`
	ExternalID         string `gorm:"index" json:"external_id"`
	Text               string `json:"text"`
	MatchType          string `json:"match_type"`
	Status             string `json:"status"`
	QualityScore       int    `json:"quality_score"`
	CPCBidMicros       int64  `json:"cpc_bid_micros"`
	Metrics            `gorm:"embedded"`
}

type SearchTerm struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	AccountID uint      `gorm:"index;not null" json:"account_id"`

	CampaignExternalID string `json:"campaign_external_id"`
	AdGroupExternalID  string `json:"ad_group_external_id"`
	Term               string `json:"term"`
	Metrics            `gorm:"embedded"`
}

const (
	RunReceiving = "receiving"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// IngestRun groups the chunks one script execution uploads.
type IngestRun struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	AccountID   uint       `gorm:"index;not null" json:"account_id"`
	Account     Account    `json:"-"`
	Status      string     `gorm:"index;default:'receiving'" json:"status"`
	Error       string     `gorm:"type:text" json:"error,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type DatasetChunk struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	RunID       string    `gorm:"size:36;not null;uniqueIndex:idx_chunk_key" json:"run_id"`
	Dataset     string    `gorm:"not null;uniqueIndex:idx_chunk_key" json:"dataset"`
	ChunkIndex  int       `gorm:"not null;uniqueIndex:idx_chunk_key" json:"chunk_index"`
	TotalChunks int       `json:"total_chunks"`
	RowCount    int       `json:"row_count"`
	Rows        string    `gorm:"type:text" json:"-"`
}

const (
	SourceRule = "rule"
	SourceAI   = "ai"

	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"

	RecommendationOpen      = "open"
	RecommendationDismissed = "dismissed"
	RecommendationConverted = "converted"
)

type Recommendation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	AccountID        uint    `gorm:"index;not null" json:"account_id"`
	AnalysisID       string  `gorm:"size:36;index" json:"analysis_id"`
	Source           string  `json:"source"`
	RuleID           string  `json:"rule_id,omitempty"`
	Severity         string  `json:"severity"`
	EntityType       string  `json:"entity_type"`
	EntityExternalID string  `json:"entity_external_id"`
	Title            string  `json:"title"`
	Description      string  `gorm:"type:text" json:"description"`
	Action           string  `json:"action,omitempty"`
	Params           JSONMap `gorm:"type:text" json:"params,omitempty"`
	Status           string  `gorm:"index;default:'open'" json:"status"`
}

type Modification struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	AccountID        uint    `gorm:"index;not null" json:"account_id"`
	Account          Account `json:"-"`
	RecommendationID *uint   `json:"recommendation_id,omitempty"`
	EntityType       string  `json:"entity_type"`
	EntityExternalID string  `json:"entity_external_id"`
	Action           string  `json:"action"`
	Params           JSONMap `gorm:"type:text" json:"params"`
	Status           string  `gorm:"index;default:'pending'" json:"status"`

	RequestedBy         string     `json:"requested_by"`
	ReviewedBy          string     `json:"reviewed_by,omitempty"`
	ReviewNote          string     `gorm:"type:text" json:"review_note,omitempty"`
	ReviewedAt          *time.Time `json:"reviewed_at,omitempty"`
	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`
	AppliedAt           *time.Time `json:"applied_at,omitempty"`
	ErrorMessage        string     `gorm:"type:text" json:"error_message,omitempty"`
	Attempts            int        `json:"attempts"`

	Events []ModificationEvent `json:"events,omitempty"`
}

// ModificationEvent is the audit trail row written on every status change.
type ModificationEvent struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	ModificationID uint      `gorm:"index" json:"modification_id"`
	FromStatus     string    `json:"from_status"`
	ToStatus       string    `json:"to_status"`
	Actor          string    `json:"actor"`
	Details        string    `gorm:"type:text" json:"details"`
}

// All lists every table for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{}, &Session{}, &Account{},
		&Campaign{}, &AdGroup{}, &Keyword{}, &SearchTerm{},
		&IngestRun{}, &DatasetChunk{},
		&Recommendation{}, &Modification{}, &ModificationEvent{},
	}
}
