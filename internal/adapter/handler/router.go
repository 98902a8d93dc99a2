package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/chat2graph/chat2graph/pkg/config"
)

// Router holds all handlers
type Router struct {
	cfg               *config.Config
	jobHandler        *Job
	analysisHandler   *Analysis
	graphHandler      *Graph
	transcriptHandler *Transcript
	healthHandler     *Health
}

// NewRouter creates a new router with all handlers
func NewRouter(cfg *config.Config, jobHandler *Job, analysisHandler *Analysis, graphHandler *Graph, transcriptHandler *Transcript, healthHandler *Health) *Router {
	return &Router{
		cfg:               cfg,
		jobHandler:        jobHandler,
		analysisHandler:   analysisHandler,
		graphHandler:      graphHandler,
		transcriptHandler: transcriptHandler,
		healthHandler:     healthHandler,
	}
}

// Setup configures all application routes
func (rt *Router) Setup(e *echo.Echo) {
	e.GET("/health", rt.healthHandler.Check)

	api := e.Group("/api")

	// Transcript ingestion
	api.POST("/upload-transcript", rt.jobHandler.UploadTranscript)
	api.POST("/add-conversation", rt.jobHandler.AddConversation)
	api.GET("/status/:id", rt.jobHandler.Status)
	api.GET("/disorders", rt.jobHandler.Disorders)
	api.POST("/reclassify", rt.jobHandler.Reclassify)

	// Analytics artifact
	api.GET("/analysis", rt.analysisHandler.Latest)
	api.POST("/analysis/recompute", rt.analysisHandler.Recompute)
	api.POST("/upload-json", rt.analysisHandler.UploadJSON)
	api.GET("/stats", rt.analysisHandler.Stats)

	// Graph views
	api.GET("/graph/filter", rt.graphHandler.Filter)
	api.POST("/query", rt.graphHandler.Query)
	api.DELETE("/graph", rt.graphHandler.DeleteAll)

	// Stored transcripts
	api.GET("/transcripts", rt.transcriptHandler.List)
	api.GET("/transcripts/content", rt.transcriptHandler.Content)
	api.DELETE("/transcripts", rt.transcriptHandler.Delete)
	api.GET("/storage/info", rt.transcriptHandler.BucketInfo)

	// Dashboard
	e.Static("/dashboard", "dashboard")
	e.File("/", "dashboard/index.html")
}
