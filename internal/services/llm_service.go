package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/justsurfingit/adaudit/internal/dtos"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

type LLMService struct {
	Client llms.Model
}

// NewLLMService creates a Gemini-backed service. An empty API key is an error; callers decide
// whether to run without AI analysis.
func NewLLMService(ctx context.Context, apiKey, model string) (*LLMService, error) {
	if apiKey == "" {
		return nil, errors.New("llm api key is empty")
	}

	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	return &LLMService{Client: llm}, nil
}

const accountAuditPrompt = `
You are a senior Google Ads auditor. Review the account data below and propose concrete improvements.

### INSTRUCTIONS:
1. **Focus** on wasted spend, poor converting keywords, irrelevant search terms and budget constraints.
2. **Only** reference entities that appear in the data, using their "id" (or the campaign id for negative keywords).
3. **Prefer** one of the supported actions. If no action fits, leave "action" empty and explain in the description.
4. **Format** the output as valid JSON only. Do not wrap the output in markdown code blocks.

### SUPPORTED ACTIONS (params in brackets):
- pause_keyword, enable_keyword
- update_keyword_bid [cpc_bid_micros: integer]
- add_negative_keyword [text: string, match_type: "exact" | "phrase" | "broad"] (entity is the campaign)
- pause_campaign, enable_campaign
- update_campaign_budget [budget_micros: integer]

### OUTPUT SCHEMA:
{
    "recommendations": [
        {
            "title": "Short imperative title",
            "description": "Why, with the numbers that support it",
            "severity": "low | medium | high",
            "entity_type": "keyword | campaign",
            "entity_id": "id from the data",
            "action": "one of the supported actions or empty",
            "params": {}
        }
    ]
}

### CONSTRAINT:
Money values are in micros of the account currency. Return at most 15 recommendations. Do not invent data.

### ACCOUNT DATA:
%s
`

// AnalyzeAccount asks the model for recommendations on the summarised account.
func (s *LLMService) AnalyzeAccount(ctx context.Context, summary *dtos.AccountSummary) ([]dtos.AIRecommendation, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("encoding account summary: %w", err)
	}

	prompt := fmt.Sprintf(accountAuditPrompt, data)
	resp, err := llms.GenerateFromSinglePrompt(ctx, s.Client, prompt, llms.WithJSONMode(), llms.WithTemperature(0.2))
	if err != nil {
		return nil, fmt.Errorf("llm call failed: %w", err)
	}
	return ParseAIRecommendations(resp)
}

// ParseAIRecommendations accepts the documented object, a bare array, or either wrapped in a
// markdown code fence.
func ParseAIRecommendations(raw string) ([]dtos.AIRecommendation, error) {
	cleaned := stripCodeFence(raw)
	if cleaned == "" {
		return nil, errors.New("llm returned an empty response")
	}

	if strings.HasPrefix(cleaned, "[") {
		var list []dtos.AIRecommendation
		if err := json.Unmarshal([]byte(cleaned), &list); err != nil {
			return nil, fmt.Errorf("decoding llm response: %w", err)
		}
		return list, nil
	}

	var wrapped struct {
		Recommendations []dtos.AIRecommendation `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(cleaned), &wrapped); err != nil {
		return nil, fmt.Errorf("decoding llm response: %w", err)
	}
	return wrapped.Recommendations, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag, e.g. ```json
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
