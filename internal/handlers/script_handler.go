package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/adaudit/internal/dtos"
	"github.com/justsurfingit/adaudit/internal/services"
)

// ScriptHandler is the export side of the workflow: the Google Ads script pulls approved
// modifications and reports back what it applied.
type ScriptHandler struct {
	Modifications *services.ModificationService
}

func NewScriptHandler(mods *services.ModificationService) *ScriptHandler {
	return &ScriptHandler{Modifications: mods}
}

// Pending is the GET /scripts/modifications endpoint. Returned rows are moved to processing.
func (h *ScriptHandler) Pending(c *gin.Context) {
	customerID, err := services.NormalizeCustomerID(c.Query("customer_id"))
	if err != nil {
		respondError(c, "Invalid customer_id", err)
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit: " + raw})
			return
		}
	}

	mods, err := h.Modifications.ClaimForApply(customerID, limit)
	if err != nil {
		respondError(c, "Failed to claim modifications", err)
		return
	}
	if mods == nil {
		mods = []dtos.ScriptModification{}
	}
	c.JSON(http.StatusOK, gin.H{"modifications": mods})
}

func (h *ScriptHandler) Results(c *gin.Context) {
	var req dtos.ScriptResultsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": h.Modifications.ReportResults(req.Results)})
}
