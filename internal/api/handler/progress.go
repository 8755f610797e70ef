package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mirae/stylegen/internal/domain"
	"github.com/mirae/stylegen/internal/logger"
	"github.com/mirae/stylegen/internal/session"
)

const (
	pingInterval = 30 * time.Second

	// closeGrace lets the final event reach a slow client before the
	// stream is torn down.
	closeGrace = 100 * time.Millisecond
)

// ProgressHandler streams batch progress over Server-Sent Events.
type ProgressHandler struct {
	broadcaster *session.Broadcaster
}

// NewProgressHandler creates a new progress handler.
func NewProgressHandler(broadcaster *session.Broadcaster) *ProgressHandler {
	return &ProgressHandler{broadcaster: broadcaster}
}

// Stream attaches to the session's progress channel and forwards
// events as SSE data frames until a terminal event arrives or the
// client disconnects. Reconnecting replaces the previous observer; the
// batch itself is unaffected either way.
func (h *ProgressHandler) Stream(c *gin.Context) {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId query parameter is required"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ch := h.broadcaster.Attach(sessionID)
	defer h.broadcaster.Detach(sessionID, ch)

	ctx := logger.SetSessionID(c.Request.Context(), sessionID)
	logger.CtxInfo(ctx, "Progress stream opened")

	writeEvent(c, flusher, domain.ProgressEvent{
		Type:      domain.EventConnected,
		SessionID: sessionID,
		Timestamp: time.Now().UnixMilli(),
		Status:    "connected",
	})

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			logger.CtxInfo(ctx, "Progress stream client disconnected")
			return

		case <-ticker.C:
			writeEvent(c, flusher, domain.ProgressEvent{
				Type:      domain.EventPing,
				SessionID: sessionID,
				Timestamp: time.Now().UnixMilli(),
			})

		case event, open := <-ch:
			if !open {
				// Replaced by a newer observer or evicted as stale.
				logger.CtxDebug(ctx, "Progress channel closed, ending stream")
				return
			}
			writeEvent(c, flusher, event)
			if event.Type.Terminal() {
				logger.CtxInfo(ctx, "Progress stream finished: %s", event.Type)
				time.Sleep(closeGrace)
				return
			}
		}
	}
}

// writeEvent serializes one event as an SSE data frame and flushes it.
func writeEvent(c *gin.Context, flusher http.Flusher, event domain.ProgressEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.CtxError(c.Request.Context(), "Failed to marshal progress event: %v", err)
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
	flusher.Flush()
}
