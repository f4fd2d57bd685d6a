package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/adaudit/internal/dtos"
	"github.com/justsurfingit/adaudit/internal/models"
	"github.com/justsurfingit/adaudit/internal/services"
)

type ModificationHandler struct {
	Modifications *services.ModificationService
	Export        *services.ExportService
}

func NewModificationHandler(mods *services.ModificationService, export *services.ExportService) *ModificationHandler {
	return &ModificationHandler{Modifications: mods, Export: export}
}

func (h *ModificationHandler) List(c *gin.Context) {
	var filter dtos.ModificationFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err)
		return
	}
	mods, total, err := h.Modifications.List(filter)
	if err != nil {
		respondError(c, "Failed to list modifications", err)
		return
	}
	c.JSON(http.StatusOK, listResponse(mods, total, services.Page{Limit: filter.Limit, Offset: filter.Offset}.Normalize()))
}

// Create is the POST /modifications endpoint
func (h *ModificationHandler) Create(c *gin.Context) {
	var req dtos.ModificationCreationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	mod, err := h.Modifications.Create(&req, actor(c))
	if err != nil {
		respondError(c, "Failed to create modification", err)
		return
	}
	c.JSON(http.StatusCreated, mod)
}

func (h *ModificationHandler) Get(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	mod, err := h.Modifications.Get(id)
	if err != nil {
		respondError(c, "Failed to load modification", err)
		return
	}
	c.JSON(http.StatusOK, mod)
}

func (h *ModificationHandler) Approve(c *gin.Context) {
	id, req, ok := reviewInput(c)
	if !ok {
		return
	}
	mod, err := h.Modifications.Approve(id, actor(c), req.Note)
	if err != nil {
		respondError(c, "Failed to approve modification", err)
		return
	}
	c.JSON(http.StatusOK, mod)
}

func (h *ModificationHandler) Reject(c *gin.Context) {
	id, req, ok := reviewInput(c)
	if !ok {
		return
	}
	mod, err := h.Modifications.Reject(id, actor(c), req.Note)
	if err != nil {
		respondError(c, "Failed to reject modification", err)
		return
	}
	c.JSON(http.StatusOK, mod)
}

func (h *ModificationHandler) Retry(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	mod, err := h.Modifications.Retry(id, actor(c))
	if err != nil {
		respondError(c, "Failed to retry modification", err)
		return
	}
	c.JSON(http.StatusOK, mod)
}

// BulkReview approves or rejects many modifications; each id gets its own outcome.
func (h *ModificationHandler) BulkReview(c *gin.Context) {
	var req dtos.BulkReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": h.Modifications.BulkReview(&req, actor(c))})
}

// ExportCSV is the GET /modifications.csv endpoint.
func (h *ModificationHandler) ExportCSV(c *gin.Context) {
	var filter dtos.ModificationFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err)
		return
	}
	if filter.Status != "" && !models.ValidStatus(filter.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status: " + filter.Status})
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="modifications.csv"`)
	if err := h.Export.Modifications(c.Writer, filter); err != nil {
		_ = c.Error(err)
	}
}

func reviewInput(c *gin.Context) (uint, dtos.ReviewRequest, bool) {
	var req dtos.ReviewRequest
	id, ok := paramID(c)
	if !ok {
		return 0, req, false
	}
	if !bindOptionalJSON(c, &req) {
		return 0, req, false
	}
	return id, req, true
}
