package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/adaudit/internal/dtos"
	"github.com/justsurfingit/adaudit/internal/services"
)

type AccountHandler struct {
	Accounts *services.AccountService
	Analysis *services.AnalysisService
	Export   *services.ExportService
}

func NewAccountHandler(accounts *services.AccountService, analysis *services.AnalysisService, export *services.ExportService) *AccountHandler {
	return &AccountHandler{Accounts: accounts, Analysis: analysis, Export: export}
}

func (h *AccountHandler) List(c *gin.Context) {
	var filter dtos.AccountFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err)
		return
	}
	accounts, total, page, err := h.Accounts.List(filter)
	if err != nil {
		respondError(c, "Failed to list accounts", err)
		return
	}
	c.JSON(http.StatusOK, listResponse(accounts, total, page))
}

func (h *AccountHandler) Get(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	detail, err := h.Accounts.Get(id)
	if err != nil {
		respondError(c, "Failed to load account", err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *AccountHandler) Campaigns(c *gin.Context) {
	id, filter, ok := entityQuery(c)
	if !ok {
		return
	}
	rows, total, page, err := h.Accounts.Campaigns(id, filter)
	if err != nil {
		respondError(c, "Failed to list campaigns", err)
		return
	}
	c.JSON(http.StatusOK, listResponse(rows, total, page))
}

func (h *AccountHandler) Keywords(c *gin.Context) {
	id, filter, ok := entityQuery(c)
	if !ok {
		return
	}
	rows, total, page, err := h.Accounts.Keywords(id, filter)
	if err != nil {
		respondError(c, "Failed to list keywords", err)
		return
	}
	c.JSON(http.StatusOK, listResponse(rows, total, page))
}

func (h *AccountHandler) SearchTerms(c *gin.Context) {
	id, filter, ok := entityQuery(c)
	if !ok {
		return
	}
	rows, total, page, err := h.Accounts.SearchTerms(id, filter)
	if err != nil {
		respondError(c, "Failed to list search terms", err)
		return
	}
	c.JSON(http.StatusOK, listResponse(rows, total, page))
}

// Analyze is the POST /accounts/:id/analyze endpoint. The body is optional.
func (h *AccountHandler) Analyze(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req dtos.AnalyzeRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	res, err := h.Analysis.Analyze(c.Request.Context(), id, req.IncludeAI)
	if err != nil {
		respondError(c, "Analysis failed", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// RecommendationsCSV is the GET /accounts/:id/recommendations.csv endpoint.
func (h *AccountHandler) RecommendationsCSV(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var filter dtos.RecommendationFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err)
		return
	}
	filter.AccountID = id
	if _, err := h.Accounts.Find(id); err != nil {
		respondError(c, "Failed to load account", err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="account-%d-recommendations.csv"`, id))
	if err := h.Export.Recommendations(c.Writer, filter); err != nil {
		// headers are already out; the log keeps the cause
		_ = c.Error(err)
	}
}

func entityQuery(c *gin.Context) (uint, dtos.EntityFilter, bool) {
	var filter dtos.EntityFilter
	id, ok := paramID(c)
	if !ok {
		return 0, filter, false
	}
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err)
		return 0, filter, false
	}
	return id, filter, true
}
