package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mirae/stylegen/internal/domain"
	"github.com/mirae/stylegen/internal/service"
)

// PromptHandler exposes the two single-step routes: generate prompts
// for one image without relaying, and relay an existing prompt list
// without generating.
type PromptHandler struct {
	gen   *service.PromptGenService
	relay *service.RelayService
}

// NewPromptHandler creates a new prompt handler.
func NewPromptHandler(gen *service.PromptGenService, relay *service.RelayService) *PromptHandler {
	return &PromptHandler{gen: gen, relay: relay}
}

// generateRequest is the POST /prompts/generate payload.
type generateRequest struct {
	Image              string `json:"image" binding:"required"`
	ClothingPart       string `json:"clothingPart"`
	CustomClothingPart string `json:"customClothingPart"`
	PromptType         string `json:"promptType"`
	GenderType         string `json:"genderType"`
	Guidance           string `json:"guidance"`
	FileName           string `json:"fileName"`
}

// Generate runs prompt generation for a single image.
func (h *PromptHandler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	job := domain.Job{
		ClothingPart:       domain.ClothingPart(req.ClothingPart),
		CustomClothingPart: req.CustomClothingPart,
	}

	promptType := domain.PromptType(req.PromptType)
	if promptType == "" {
		promptType = domain.PromptTypeOutfit
	}

	result, err := h.gen.Generate(c.Request.Context(), &service.GenerateInput{
		ImageBase64: req.Image,
		Part:        job.EffectivePart(),
		PromptType:  promptType,
		Gender:      domain.GenderType(req.GenderType),
		Guidance:    req.Guidance,
		FileName:    req.FileName,
	})
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, domain.ErrPolicyRefusal) || errors.Is(err, domain.ErrNoPromptsExtracted) {
			status = http.StatusUnprocessableEntity
		}
		resp := gin.H{
			"success":   false,
			"error":     err.Error(),
			"errorType": domain.KindForError(err),
		}
		if result != nil {
			resp["rawText"] = result.RawText
		}
		c.JSON(status, resp)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"prompts":     result.Prompts,
		"outfitNames": result.Names,
		"rawText":     result.RawText,
	})
}

// relayRequest is the POST /prompts/relay payload.
type relayRequest struct {
	Prompts          []string `json:"prompts" binding:"required"`
	Image            string   `json:"image"`
	SessionID        string   `json:"sessionId"`
	FastMode         bool     `json:"fastMode"`
	DiscordToken     string   `json:"discordToken"`
	DiscordServerID  string   `json:"discordServerId"`
	DiscordChannelID string   `json:"discordChannelId"`
}

// Relay submits an existing prompt list to Midjourney without running
// generation first.
func (h *PromptHandler) Relay(c *gin.Context) {
	var req relayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if len(req.Prompts) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one prompt is required"})
		return
	}

	promptList := req.Prompts
	if req.FastMode {
		hinted := make([]string, len(promptList))
		for i, p := range promptList {
			hinted[i] = p + " --fast"
		}
		promptList = hinted
	}

	creds := &domain.DiscordCredentials{
		Token:     req.DiscordToken,
		ServerID:  req.DiscordServerID,
		ChannelID: req.DiscordChannelID,
	}

	outcome, err := h.relay.RelayBatch(c.Request.Context(), promptList, req.Image, creds, nil, req.SessionID)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, domain.ErrMissingCredentials) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"success":   false,
			"error":     err.Error(),
			"errorType": domain.KindForError(err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"results":     outcome.Results,
		"cdnImageUrl": outcome.CDNImageURL,
		"aborted":     outcome.Aborted,
	})
}
