package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mirae/stylegen/internal/api/handler"
	"github.com/mirae/stylegen/internal/api/middleware"
	"github.com/mirae/stylegen/internal/logger"
	"github.com/mirae/stylegen/internal/repository"
	"github.com/mirae/stylegen/internal/service"
	"github.com/mirae/stylegen/internal/session"
)

// RouterDeps carries the wired services the router needs.
type RouterDeps struct {
	Orchestrator *service.Orchestrator
	PromptGen    *service.PromptGenService
	Relay        *service.RelayService
	Abort        *session.AbortRegistry
	Broadcaster  *session.Broadcaster
	BatchRepo    *repository.BatchRepository
	Log          *logger.Logger
	Mode         string
	CORS         middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps *RouterDeps) *gin.Engine {
	// Set Gin mode
	switch deps.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Log))
	r.Use(middleware.CORS(deps.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler(deps.Abort)
	batchHandler := handler.NewBatchHandler(deps.Orchestrator, deps.Abort)
	progressHandler := handler.NewProgressHandler(deps.Broadcaster)
	promptHandler := handler.NewPromptHandler(deps.PromptGen, deps.Relay)
	historyHandler := handler.NewHistoryHandler(deps.BatchRepo)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Batch processing
		v1.POST("/batch", batchHandler.SubmitBatch)
		v1.POST("/abort", batchHandler.Abort)
		v1.GET("/progress", progressHandler.Stream)

		// Single-step routes
		v1.POST("/prompts/generate", promptHandler.Generate)
		v1.POST("/prompts/relay", promptHandler.Relay)

		// History
		v1.GET("/batches", historyHandler.ListBatches)
		v1.GET("/batches/:id", historyHandler.GetBatch)
	}

	return r
}
