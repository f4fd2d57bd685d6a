package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/adaudit/internal/dtos"
	"github.com/justsurfingit/adaudit/internal/services"
)

// IngestHandler serves the upload routes the Google Ads script calls.
type IngestHandler struct {
	Ingest *services.IngestService
}

func NewIngestHandler(ingest *services.IngestService) *IngestHandler {
	return &IngestHandler{Ingest: ingest}
}

func (h *IngestHandler) StartRun(c *gin.Context) {
	var req dtos.RunStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	run, err := h.Ingest.StartRun(&req)
	if err != nil {
		respondError(c, "Failed to start run", err)
		return
	}
	c.JSON(http.StatusCreated, run)
}

func (h *IngestHandler) AppendChunk(c *gin.Context) {
	var req dtos.ChunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	chunk, err := h.Ingest.AppendChunk(c.Param("id"), &req)
	if err != nil {
		respondError(c, "Failed to store chunk", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":       chunk.RunID,
		"dataset":      chunk.Dataset,
		"chunk_index":  chunk.ChunkIndex,
		"total_chunks": chunk.TotalChunks,
		"rows":         chunk.RowCount,
	})
}

func (h *IngestHandler) Complete(c *gin.Context) {
	run, err := h.Ingest.CompleteRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to complete run", err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *IngestHandler) GetRun(c *gin.Context) {
	status, err := h.Ingest.GetRun(c.Param("id"))
	if err != nil {
		respondError(c, "Failed to load run", err)
		return
	}
	c.JSON(http.StatusOK, status)
}
