package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/mirae/stylegen/internal/domain"
	"github.com/mirae/stylegen/internal/logger"
	"github.com/mirae/stylegen/internal/session"
)

// Midjourney application command identity on Discord. The /imagine
// command id and version are stable across regular Midjourney updates.
const (
	midjourneyAppID       = "936929561302675456"
	imagineCommandID      = "938956540159881230"
	imagineCommandVersion = "1237876415471554623"
	midjourneyBotID       = "936929561302675456"
)

// RelayService drives the Discord channel that runs the Midjourney bot:
// it uploads a reference image for a durable CDN URL and submits
// /imagine commands one prompt at a time.
//
// Credentials are caller-supplied per batch; there is no environment
// fallback for the user token. Connecting without one is a
// configuration failure, terminal for the whole relay call.
type RelayService struct {
	apiBase        string
	serverID       string
	channelID      string
	connectTimeout time.Duration
	promptTimeout  time.Duration
	promptDelay    time.Duration
	pollInterval   time.Duration
	abort          *session.AbortRegistry
}

// RelayConfig holds configuration for the relay service.
type RelayConfig struct {
	APIBase        string
	ServerID       string // default guild; overridable per call
	ChannelID      string // default channel; overridable per call
	ConnectTimeout time.Duration
	PromptTimeout  time.Duration
	PromptDelay    time.Duration
	PollInterval   time.Duration
}

// NewRelayService creates a new relay service.
func NewRelayService(cfg *RelayConfig, abort *session.AbortRegistry) *RelayService {
	s := &RelayService{
		apiBase:        strings.TrimSuffix(cfg.APIBase, "/"),
		serverID:       cfg.ServerID,
		channelID:      cfg.ChannelID,
		connectTimeout: cfg.ConnectTimeout,
		promptTimeout:  cfg.PromptTimeout,
		promptDelay:    cfg.PromptDelay,
		pollInterval:   cfg.PollInterval,
		abort:          abort,
	}
	if s.apiBase == "" {
		s.apiBase = "https://discord.com/api/v10"
	}
	if s.connectTimeout <= 0 {
		s.connectTimeout = 30 * time.Second
	}
	if s.promptTimeout <= 0 {
		s.promptTimeout = 4 * time.Minute
	}
	if s.promptDelay <= 0 {
		s.promptDelay = time.Second
	}
	if s.pollInterval <= 0 {
		s.pollInterval = 5 * time.Second
	}
	return s
}

// RelayProgressFunc receives fine-grained relay progress: the 1-based
// index of the prompt in flight, the total prompt count, a human
// status line, and structured detail for error outcomes.
type RelayProgressFunc func(promptIndex, total int, status string, detail *domain.ErrorDetail)

// RelayOutcome is the result of one RelayBatch call. Results holds
// exactly one entry per prompt attempted; prompts skipped by an abort
// have no entry.
type RelayOutcome struct {
	Results     []domain.RelayResult
	CDNImageURL string
	Aborted     bool
}

// relayConn is an authenticated session against the Discord REST API.
type relayConn struct {
	client    *resty.Client
	serverID  string
	channelID string
}

// RelayBatch submits the prompts sequentially: connect, upload the
// reference image once (if supplied), then per prompt re-check the
// abort registry, submit, await the bot's response under the prompt
// timeout, record the outcome and pause before the next one. Individual
// prompt failures and timeouts do not stop the remaining prompts; only
// an abort or exhausting the list ends the loop.
func (s *RelayService) RelayBatch(
	ctx context.Context,
	promptList []string,
	imageBase64 string,
	creds *domain.DiscordCredentials,
	onProgress RelayProgressFunc,
	sessionID string,
) (*RelayOutcome, error) {
	if onProgress == nil {
		onProgress = func(int, int, string, *domain.ErrorDetail) {}
	}

	conn, err := s.connect(ctx, creds)
	if err != nil {
		return nil, err
	}

	outcome := &RelayOutcome{}
	total := len(promptList)

	// Upload the reference once per batch, not per prompt. Failure is
	// non-fatal: the prompts are still worth relaying without it.
	if imageBase64 != "" {
		onProgress(0, total, "Uploading reference image to Discord...", nil)
		cdnURL, uploadErr := s.uploadReference(ctx, conn, imageBase64)
		if uploadErr != nil {
			logger.CtxWarn(ctx, "Reference upload failed, proceeding without image: %v", uploadErr)
		} else {
			outcome.CDNImageURL = cdnURL
		}
	}

	for i, prompt := range promptList {
		if sessionID != "" && s.abort != nil && s.abort.ShouldAbort(sessionID) {
			logger.CtxInfo(ctx, "Relay aborted at prompt %d/%d", i+1, total)
			onProgress(i+1, total, fmt.Sprintf("Processing aborted by user at prompt %d/%d", i+1, total), nil)
			outcome.Aborted = true
			return outcome, nil
		}

		finalPrompt := prompt
		if outcome.CDNImageURL != "" {
			finalPrompt = outcome.CDNImageURL + " " + prompt
		}

		onProgress(i+1, total, fmt.Sprintf("Processing prompt %d/%d...", i+1, total), nil)

		messageID, submitErr := s.submitPrompt(ctx, conn, finalPrompt, i+1, total, onProgress)
		if submitErr != nil {
			result := domain.RelayResult{Prompt: prompt, Error: submitErr.Error()}
			if errors.Is(submitErr, domain.ErrRelayTimeout) {
				result.ErrorKind = domain.ErrKindRelayTimeout
				onProgress(i+1, total,
					fmt.Sprintf("Prompt %d/%d timed out after %s", i+1, total, s.promptTimeout),
					&domain.ErrorDetail{
						PromptIndex:          i + 1,
						TotalPrompts:         total,
						FailedPrompt:         prompt,
						Error:                "Midjourney response timeout - possible Discord anti-bot check",
						ErrorType:            string(domain.EventMidjourneyTimeout),
						TimeoutDuration:      s.promptTimeout.String(),
						RecoveryInstructions: domain.RelayTimeoutGuidance,
					})
			} else {
				result.ErrorKind = domain.ErrKindRelayFailed
				onProgress(i+1, total,
					fmt.Sprintf("Prompt %d/%d failed with error: %v", i+1, total, submitErr),
					&domain.ErrorDetail{
						PromptIndex:  i + 1,
						TotalPrompts: total,
						FailedPrompt: prompt,
						Error:        submitErr.Error(),
						ErrorType:    string(domain.EventMidjourneyFailed),
					})
			}
			outcome.Results = append(outcome.Results, result)
			continue
		}

		outcome.Results = append(outcome.Results, domain.RelayResult{
			Prompt:    prompt,
			MessageID: messageID,
		})
		onProgress(i+1, total, fmt.Sprintf("Prompt %d/%d sent successfully", i+1, total), nil)

		// Rate-limit pause between successful submissions; none after
		// the final prompt.
		if i < total-1 {
			onProgress(i+1, total, fmt.Sprintf("Waiting before next prompt... (%d/%d)", i+2, total), nil)
			select {
			case <-time.After(s.promptDelay):
			case <-ctx.Done():
				return outcome, ctx.Err()
			}
		}
	}

	return outcome, nil
}

// connect validates the caller-supplied token against the Discord API
// and returns an authenticated session. Bounded by the connect timeout.
func (s *RelayService) connect(ctx context.Context, creds *domain.DiscordCredentials) (*relayConn, error) {
	if creds == nil || creds.Token == "" {
		return nil, fmt.Errorf("relay connect: %w", domain.ErrMissingCredentials)
	}

	serverID := creds.ServerID
	if serverID == "" {
		serverID = s.serverID
	}
	channelID := creds.ChannelID
	if channelID == "" {
		channelID = s.channelID
	}
	if channelID == "" {
		return nil, fmt.Errorf("relay connect: no Discord channel configured: %w", domain.ErrMissingCredentials)
	}

	client := resty.New().
		SetBaseURL(s.apiBase).
		SetHeader("Authorization", creds.Token)

	connectCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	resp, err := client.R().SetContext(connectCtx).Get("/users/@me")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Discord: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("Discord rejected the token: HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	logger.CtxInfo(ctx, "Connected to Discord, channel=%s", channelID)
	return &relayConn{client: client, serverID: serverID, channelID: channelID}, nil
}

type discordAttachment struct {
	URL string `json:"url"`
}

type discordMessage struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Author  struct {
		ID  string `json:"id"`
		Bot bool   `json:"bot"`
	} `json:"author"`
	Attachments []discordAttachment `json:"attachments"`
}

// uploadReference posts the image as a channel message attachment and
// returns the CDN URL Discord assigns to it.
func (s *RelayService) uploadReference(ctx context.Context, conn *relayConn, imageBase64 string) (string, error) {
	imageData, err := base64.StdEncoding.DecodeString(dataURLPrefix.ReplaceAllString(imageBase64, ""))
	if err != nil {
		return "", fmt.Errorf("failed to decode reference image: %w", err)
	}

	payload, _ := json.Marshal(map[string]string{
		"content": "Reference image for Midjourney",
	})

	var msg discordMessage
	resp, err := conn.client.R().
		SetContext(ctx).
		SetFileReader("files[0]", "reference.jpg", strings.NewReader(string(imageData))).
		SetMultipartFormData(map[string]string{"payload_json": string(payload)}).
		SetResult(&msg).
		Post("/channels/" + conn.channelID + "/messages")

	if err != nil {
		return "", fmt.Errorf("failed to upload reference image: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", fmt.Errorf("Discord upload error: HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	if len(msg.Attachments) == 0 {
		return "", fmt.Errorf("no attachments in Discord upload response")
	}

	logger.CtxInfo(ctx, "Reference image uploaded: %s", msg.Attachments[0].URL)
	return msg.Attachments[0].URL, nil
}

// imagineInteraction is the application-command payload for /imagine.
type imagineInteraction struct {
	Type          int                    `json:"type"`
	ApplicationID string                 `json:"application_id"`
	GuildID       string                 `json:"guild_id,omitempty"`
	ChannelID     string                 `json:"channel_id"`
	SessionID     string                 `json:"session_id"`
	Data          imagineInteractionData `json:"data"`
}

type imagineInteractionData struct {
	Version string                  `json:"version"`
	ID      string                  `json:"id"`
	Name    string                  `json:"name"`
	Type    int                     `json:"type"`
	Options []imagineCommandOptions `json:"options"`
}

type imagineCommandOptions struct {
	Type  int    `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// submitPrompt fires the /imagine interaction and waits for the bot's
// acknowledgement message, racing the per-prompt timeout. A deadline
// is reported as ErrRelayTimeout, distinct from submission errors,
// because it usually means an anti-automation challenge that needs
// manual intervention in Discord.
func (s *RelayService) submitPrompt(
	ctx context.Context,
	conn *relayConn,
	prompt string,
	index, total int,
	onProgress RelayProgressFunc,
) (string, error) {
	promptCtx, cancel := context.WithTimeout(ctx, s.promptTimeout)
	defer cancel()

	interaction := imagineInteraction{
		Type:          2, // APPLICATION_COMMAND
		ApplicationID: midjourneyAppID,
		GuildID:       conn.serverID,
		ChannelID:     conn.channelID,
		SessionID:     strings.ReplaceAll(uuid.New().String(), "-", ""),
		Data: imagineInteractionData{
			Version: imagineCommandVersion,
			ID:      imagineCommandID,
			Name:    "imagine",
			Type:    1,
			Options: []imagineCommandOptions{
				{Type: 3, Name: "prompt", Value: prompt},
			},
		},
	}

	resp, err := conn.client.R().
		SetContext(promptCtx).
		SetHeader("Content-Type", "application/json").
		SetBody(interaction).
		Post("/interactions")

	if err != nil {
		if promptCtx.Err() == context.DeadlineExceeded {
			return "", domain.ErrRelayTimeout
		}
		return "", fmt.Errorf("failed to submit prompt: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", fmt.Errorf("Discord interaction error: HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	onProgress(index, total,
		fmt.Sprintf("Waiting for Midjourney response (up to %s)... (%d/%d)", s.promptTimeout, index, total), nil)

	return s.awaitBotMessage(promptCtx, conn, prompt)
}

// awaitBotMessage polls the channel until the Midjourney bot posts a
// message echoing the submitted prompt, or the deadline passes.
func (s *RelayService) awaitBotMessage(ctx context.Context, conn *relayConn, prompt string) (string, error) {
	needle := promptNeedle(prompt)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", domain.ErrRelayTimeout
		case <-ticker.C:
		}

		var messages []discordMessage
		resp, err := conn.client.R().
			SetContext(ctx).
			SetQueryParam("limit", "20").
			SetResult(&messages).
			Get("/channels/" + conn.channelID + "/messages")

		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return "", domain.ErrRelayTimeout
			}
			// Transient poll failure; keep waiting until the deadline.
			logger.CtxDebug(ctx, "Message poll failed: %v", err)
			continue
		}
		if resp.StatusCode() != 200 {
			continue
		}

		for _, msg := range messages {
			if msg.Author.ID == midjourneyBotID && msg.Author.Bot && strings.Contains(msg.Content, needle) {
				return msg.ID, nil
			}
		}
	}
}

// promptNeedle clips the prompt to a stable prefix used to correlate
// the bot's echo message. Midjourney echoes the full prompt back, but
// long prompts may be reformatted past this length.
func promptNeedle(prompt string) string {
	runes := []rune(prompt)
	if len(runes) > 48 {
		return string(runes[:48])
	}
	return prompt
}
