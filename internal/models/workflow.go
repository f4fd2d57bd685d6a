package models

import (
	"fmt"
	"strings"
)

const (
	StatusPending    = "pending"
	StatusApproved   = "approved"
	StatusRejected   = "rejected"
	StatusProcessing = "processing"
	StatusApplied    = "applied"
	StatusFailed     = "failed"
)

// transitions is the modification state machine. Rejected and applied are terminal.
var transitions = map[string][]string{
	StatusPending:    {StatusApproved, StatusRejected},
	StatusApproved:   {StatusProcessing},
	StatusProcessing: {StatusApplied, StatusFailed},
	StatusFailed:     {StatusApproved},
}

func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminal(status string) bool {
	return len(transitions[status]) == 0
}

func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusApproved, StatusRejected, StatusProcessing, StatusApplied, StatusFailed:
		return true
	}
	return false
}

const (
	EntityKeyword  = "keyword"
	EntityCampaign = "campaign"

	ActionPauseKeyword         = "pause_keyword"
	ActionEnableKeyword        = "enable_keyword"
	ActionUpdateKeywordBid     = "update_keyword_bid"
	ActionAddNegativeKeyword   = "add_negative_keyword"
	ActionPauseCampaign        = "pause_campaign"
	ActionEnableCampaign       = "enable_campaign"
	ActionUpdateCampaignBudget = "update_campaign_budget"
)

var actionEntity = map[string]string{
	ActionPauseKeyword:         EntityKeyword,
	ActionEnableKeyword:        EntityKeyword,
	ActionUpdateKeywordBid:     EntityKeyword,
	ActionAddNegativeKeyword:   EntityCampaign,
	ActionPauseCampaign:        EntityCampaign,
	ActionEnableCampaign:       EntityCampaign,
	ActionUpdateCampaignBudget: EntityCampaign,
}

// EntityForAction returns the entity type an action targets, or "" for unknown actions.
func EntityForAction(action string) string {
	return actionEntity[action]
}

// ValidateAction checks the action name and the params it needs.
func ValidateAction(action string, params JSONMap) error {
	if _, ok := actionEntity[action]; !ok {
		return fmt.Errorf("unknown action %q", action)
	}

	switch action {
	case ActionUpdateKeywordBid:
		if v, ok := params.Int64("cpc_bid_micros"); !ok || v <= 0 {
			return fmt.Errorf("%s requires a positive cpc_bid_micros", action)
		}
	case ActionUpdateCampaignBudget:
		if v, ok := params.Int64("budget_micros"); !ok || v <= 0 {
			return fmt.Errorf("%s requires a positive budget_micros", action)
		}
	case ActionAddNegativeKeyword:
		if strings.TrimSpace(params.String("text")) == "" {
			return fmt.Errorf("%s requires text", action)
		}
		switch params.String("match_type") {
		case "exact", "phrase", "broad":
		default:
			return fmt.Errorf("%s requires match_type exact, phrase or broad", action)
		}
	}
	return nil
}
