package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mirae/stylegen/internal/repository"
	"gorm.io/gorm"
)

// HistoryHandler serves persisted batch runs.
type HistoryHandler struct {
	repo *repository.BatchRepository
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(repo *repository.BatchRepository) *HistoryHandler {
	return &HistoryHandler{repo: repo}
}

// ListBatches returns batch records newest first.
func (h *HistoryHandler) ListBatches(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, total, err := h.repo.ListBatches(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list batches"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"batches": records,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// GetBatch returns one batch with its per-job outcomes.
func (h *HistoryHandler) GetBatch(c *gin.Context) {
	id := c.Param("id")

	record, jobs, err := h.repo.GetBatch(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load batch"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"batch": record,
		"jobs":  jobs,
	})
}
