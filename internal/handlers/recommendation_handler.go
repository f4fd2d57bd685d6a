package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/adaudit/internal/dtos"
	"github.com/justsurfingit/adaudit/internal/services"
)

type RecommendationHandler struct {
	Recommendations *services.RecommendationService
}

func NewRecommendationHandler(recs *services.RecommendationService) *RecommendationHandler {
	return &RecommendationHandler{Recommendations: recs}
}

func (h *RecommendationHandler) List(c *gin.Context) {
	var filter dtos.RecommendationFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err)
		return
	}
	recs, total, err := h.Recommendations.List(filter)
	if err != nil {
		respondError(c, "Failed to list recommendations", err)
		return
	}
	c.JSON(http.StatusOK, listResponse(recs, total, services.Page{Limit: filter.Limit, Offset: filter.Offset}.Normalize()))
}

func (h *RecommendationHandler) Dismiss(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	rec, err := h.Recommendations.Dismiss(id)
	if err != nil {
		respondError(c, "Failed to dismiss recommendation", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Convert turns the recommendation into a pending modification.
func (h *RecommendationHandler) Convert(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	mod, err := h.Recommendations.Convert(id, actor(c))
	if err != nil {
		respondError(c, "Failed to convert recommendation", err)
		return
	}
	c.JSON(http.StatusCreated, mod)
}
