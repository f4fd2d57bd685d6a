package dtos

import "time"

type ModificationCreationRequest struct {
	AccountID        uint           `json:"account_id" binding:"required"`
	Action           string         `json:"action" binding:"required"`
	EntityExternalID string         `json:"entity_external_id" binding:"required"`
	Params           map[string]any `json:"params"`

	// Set when the modification comes from a recommendation.
	RecommendationID *uint `json:"recommendation_id"`
}

type ReviewRequest struct {
	Note string `json:"note"`
}

type BulkReviewRequest struct {
	IDs      []uint `json:"ids" binding:"required,min=1"`
	Decision string `json:"decision" binding:"required,oneof=approve reject"`
	Note     string `json:"note"`
}

type BulkReviewOutcome struct {
	ID     uint   `json:"id"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

type ModificationFilter struct {
	AccountID uint   `form:"account_id"`
	Status    string `form:"status"`
	Action    string `form:"action"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}

// ScriptModification is what the Google Ads script receives for each claimed change.
type ScriptModification struct {
	ID         uint           `json:"id"`
	CustomerID string         `json:"customer_id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Params     map[string]any `json:"params"`
}

type ScriptResult struct {
	ID        uint       `json:"id" binding:"required"`
	Success   bool       `json:"success"`
	Error     string     `json:"error"`
	AppliedAt *time.Time `json:"applied_at"`
}

type ScriptResultsRequest struct {
	Results []ScriptResult `json:"results" binding:"required,min=1,dive"`
}

type ScriptResultOutcome struct {
	ID     uint   `json:"id"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}
