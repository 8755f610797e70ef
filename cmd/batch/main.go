package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/mirae/stylegen/internal/config"
	"github.com/mirae/stylegen/internal/domain"
	"github.com/mirae/stylegen/internal/logger"
	"github.com/mirae/stylegen/internal/service"
	"github.com/mirae/stylegen/internal/session"
)

// Local batch runner: generates prompts for every image in a directory
// without going through the HTTP server. Relay is opt-in.
func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "stylegen-batch",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	dir := flag.String("dir", ".", "Directory of reference images to process")
	part := flag.String("part", "top", "Clothing part (top, bottom, dress, outerwear, shoes, accessories, hair, features, other)")
	customPart := flag.String("custom-part", "", "Custom part label when -part=other")
	promptType := flag.String("type", "outfit", "Prompt type (outfit or texture)")
	gender := flag.String("gender", "female", "Model gender hint for outfit prompts")
	guidance := flag.String("guidance", "", "Extra guidance passed to the model")
	relay := flag.Bool("relay", false, "Relay generated prompts to Midjourney")
	fast := flag.Bool("fast", false, "Append the --fast hint before relaying")
	token := flag.String("token", "", "Discord user token (required with -relay)")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	jobs, err := loadJobs(*dir, *part, *customPart, *promptType, *gender, *guidance)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load images")
	}
	if len(jobs) == 0 {
		appLogger.Fatal("No images found in directory")
	}

	appLogger.WithFields(logger.Fields{
		"items": len(jobs),
		"part":  *part,
		"type":  *promptType,
		"relay": *relay,
	}).Info("Starting batch")

	abortRegistry := session.NewAbortRegistry()
	broadcaster := session.NewBroadcaster()

	promptGen := service.NewPromptGenService(&service.PromptGenConfig{
		Model:          cfg.VLM.Model,
		FallbackModel:  cfg.VLM.FallbackModel,
		APIKey:         cfg.VLM.APIKey,
		BaseURL:        cfg.VLM.BaseURL,
		RequestTimeout: cfg.VLM.RequestTimeout,
		MaxTokens:      cfg.VLM.MaxTokens,
	})

	relaySvc := service.NewRelayService(&service.RelayConfig{
		APIBase:        cfg.Discord.APIBase,
		ServerID:       cfg.Discord.ServerID,
		ChannelID:      cfg.Discord.ChannelID,
		ConnectTimeout: cfg.Discord.ConnectTimeout,
		PromptTimeout:  cfg.Discord.PromptTimeout,
		PromptDelay:    cfg.Discord.PromptDelay,
	}, abortRegistry)

	orchestrator := service.NewOrchestrator(promptGen, relaySvc, nil, nil,
		abortRegistry, broadcaster, &service.OrchestratorConfig{
			ItemDelay: cfg.Batch.ItemDelay,
			MaxItems:  cfg.Batch.MaxItems,
		})

	req := &service.BatchRequest{
		SessionID:   uuid.New().String(),
		Jobs:        jobs,
		EnableRelay: *relay,
		FastMode:    *fast,
	}
	if *relay {
		req.Credentials = &domain.DiscordCredentials{
			Token:     *token,
			ServerID:  cfg.Discord.ServerID,
			ChannelID: cfg.Discord.ChannelID,
		}
	}

	if err := orchestrator.Validate(req); err != nil {
		appLogger.WithError(err).Fatal("Invalid batch")
	}

	summary := orchestrator.Run(context.Background(), req)

	for _, result := range summary.Results {
		if !result.Success {
			fmt.Printf("FAILED  %s: %s (%s)\n", result.ID, result.Error, result.ErrorKind)
			continue
		}
		fmt.Printf("OK      %s\n", result.ID)
		for i, prompt := range result.MidjourneyPrompts {
			fmt.Printf("  PROMPT%d: %s\n", i+1, prompt)
		}
		for i, name := range result.OutfitNames {
			fmt.Printf("  NAME%d: %s\n", i+1, name)
		}
	}
	fmt.Printf("\n%d succeeded, %d failed\n", summary.SuccessCount, summary.ErrorCount)

	if summary.ErrorCount > 0 {
		os.Exit(1)
	}
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// loadJobs builds one job per image file in the directory.
func loadJobs(dir, part, customPart, promptType, gender, guidance string) ([]domain.Job, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var jobs []domain.Job
	for _, entry := range entries {
		if entry.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		jobs = append(jobs, domain.Job{
			ID:                 uuid.New().String(),
			ImageBase64:        base64.StdEncoding.EncodeToString(data),
			ClothingPart:       domain.ClothingPart(part),
			CustomClothingPart: customPart,
			PromptType:         domain.PromptType(promptType),
			GenderType:         domain.GenderType(gender),
			Guidance:           guidance,
			FileName:           entry.Name(),
		})
	}
	return jobs, nil
}
