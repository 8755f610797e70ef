package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mirae/stylegen/internal/domain"
	"github.com/mirae/stylegen/internal/logger"
	"github.com/mirae/stylegen/internal/service"
	"github.com/mirae/stylegen/internal/session"
)

// BatchHandler handles batch submission and abort endpoints.
type BatchHandler struct {
	orchestrator *service.Orchestrator
	abort        *session.AbortRegistry
}

// NewBatchHandler creates a new batch handler.
func NewBatchHandler(orchestrator *service.Orchestrator, abort *session.AbortRegistry) *BatchHandler {
	return &BatchHandler{orchestrator: orchestrator, abort: abort}
}

// batchItemRequest is one uploaded job in the batch payload.
type batchItemRequest struct {
	ID                 string `json:"id" binding:"required"`
	Image              string `json:"image" binding:"required"`
	ClothingPart       string `json:"clothingPart"`
	CustomClothingPart string `json:"customClothingPart"`
	PromptType         string `json:"promptType"`
	GenderType         string `json:"genderType"`
	Guidance           string `json:"guidance"`
	FileName           string `json:"fileName"`
}

// batchRequest is the POST /batch payload. Field names match the
// browser client.
type batchRequest struct {
	SessionID        string             `json:"sessionId" binding:"required"`
	Items            []batchItemRequest `json:"items" binding:"required"`
	SendToMidjourney bool               `json:"sendToMidjourney"`
	FastMode         bool               `json:"fastMode"`
	DiscordToken     string             `json:"discordToken"`
	DiscordServerID  string             `json:"discordServerId"`
	DiscordChannelID string             `json:"discordChannelId"`
}

// SubmitBatch runs a batch synchronously and returns the full result
// list. Progress is streamed separately over SSE; this response is the
// durable record for clients that lost the stream.
func (h *BatchHandler) SubmitBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	jobs := make([]domain.Job, len(req.Items))
	for i, item := range req.Items {
		jobs[i] = domain.Job{
			ID:                 item.ID,
			ImageBase64:        item.Image,
			ClothingPart:       domain.ClothingPart(item.ClothingPart),
			CustomClothingPart: item.CustomClothingPart,
			PromptType:         domain.PromptType(item.PromptType),
			GenderType:         domain.GenderType(item.GenderType),
			Guidance:           item.Guidance,
			FileName:           item.FileName,
		}
		if jobs[i].PromptType == "" {
			jobs[i].PromptType = domain.PromptTypeOutfit
		}
	}

	batch := &service.BatchRequest{
		SessionID:   req.SessionID,
		Jobs:        jobs,
		EnableRelay: req.SendToMidjourney,
		FastMode:    req.FastMode,
	}
	if req.SendToMidjourney {
		batch.Credentials = &domain.DiscordCredentials{
			Token:     req.DiscordToken,
			ServerID:  req.DiscordServerID,
			ChannelID: req.DiscordChannelID,
		}
	}

	if err := h.orchestrator.Validate(batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary := h.orchestrator.Run(c.Request.Context(), batch)
	c.JSON(http.StatusOK, summary)
}

// abortRequest is the POST /abort payload.
type abortRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

// Abort flags the session for cooperative cancellation. Always
// succeeds: an unknown session just records a flag that the next batch
// on that session would clear.
func (h *BatchHandler) Abort(c *gin.Context) {
	var req abortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
		return
	}

	h.abort.RequestAbort(req.SessionID)
	logger.CtxInfo(c.Request.Context(), "Abort requested for session %s", req.SessionID)

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"sessionId": req.SessionID,
		"message":   "abort requested, processing stops after the current item",
	})
}
