package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/learnloop/analytics-engine/internal/handlers"
	"github.com/learnloop/analytics-engine/internal/middleware"
)

type RouterConfig struct {
	AuthMiddleware   *middleware.AuthMiddleware
	SnapshotHandler  *handlers.SnapshotHandler
	ReviewHandler    *handlers.ReviewHandler
	AlertHandler     *handlers.AlertHandler
	ForecastHandler  *handlers.ForecastHandler
	SignatureHandler *handlers.SignatureHandler
	SessionHandler   *handlers.SessionHandler
	SSEHandler       *handlers.SSEHandler
	TracingEnabled   bool
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	if cfg.TracingEnabled {
		router.Use(otelgin.Middleware("analytics-engine"))
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())

	// SSE
	protected.GET("/sse/stream", cfg.SSEHandler.Stream)

	api := protected.Group("/api")
	// Snapshots
	api.POST("/snapshots", cfg.SnapshotHandler.Record)
	api.GET("/snapshots", cfg.SnapshotHandler.GetHistory)
	// Reviews
	api.POST("/reviews", cfg.ReviewHandler.CreateItems)
	api.GET("/reviews/due", cfg.ReviewHandler.GetDue)
	api.POST("/reviews/:item_id/grade", cfg.ReviewHandler.Grade)
	api.POST("/reviews/retire", cfg.ReviewHandler.Retire)
	// Alerts
	api.GET("/alerts", cfg.AlertHandler.List)
	api.POST("/alerts/:id/ack", cfg.AlertHandler.Acknowledge)
	// Forecast
	api.GET("/forecast", cfg.ForecastHandler.Get)
	api.GET("/forecast/history", cfg.ForecastHandler.History)
	// Signature
	api.GET("/signature", cfg.SignatureHandler.Get)
	api.POST("/signature/analyze", cfg.SignatureHandler.Analyze)
	// Sessions
	api.POST("/sessions", cfg.SessionHandler.Start)
	api.POST("/sessions/:id/events", cfg.SessionHandler.RecordEvent)
	api.GET("/sessions/:id/metrics", cfg.SessionHandler.GetMetrics)
	api.POST("/sessions/:id/end", cfg.SessionHandler.End)

	return router
}
