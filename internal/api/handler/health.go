package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mirae/stylegen/internal/session"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	abort *session.AbortRegistry
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(abort *session.AbortRegistry) *HealthHandler {
	return &HealthHandler{abort: abort}
}

// Health returns the health status of the service
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"service":       "stylegen",
		"pendingAborts": h.abort.Len(),
	})
}
