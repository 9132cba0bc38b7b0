package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/learnloop/analytics-engine/internal/config"
	"github.com/learnloop/analytics-engine/internal/db"
	"github.com/learnloop/analytics-engine/internal/handlers"
	"github.com/learnloop/analytics-engine/internal/logger"
	"github.com/learnloop/analytics-engine/internal/middleware"
	"github.com/learnloop/analytics-engine/internal/observability"
	"github.com/learnloop/analytics-engine/internal/realtime"
	"github.com/learnloop/analytics-engine/internal/realtime/bus"
	"github.com/learnloop/analytics-engine/internal/repos"
	"github.com/learnloop/analytics-engine/internal/scheduler"
	"github.com/learnloop/analytics-engine/internal/server"
	"github.com/learnloop/analytics-engine/internal/services"
	"github.com/learnloop/analytics-engine/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	otelShutdown := observability.InitOTel(rootCtx, log, observability.OtelConfig{
		ServiceName: "analytics-engine",
		Environment: os.Getenv("APP_ENV"),
		Version:     os.Getenv("APP_VERSION"),
	})

	// Config
	log.Info("Loading configuration from main...")
	cfg, err := config.Load(log)
	if err != nil {
		log.Error("Could not load config", "error", err)
		os.Exit(1)
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	snapshotRepo := repos.NewSnapshotRepo(thePG, log)
	reviewItemRepo := repos.NewReviewItemRepo(thePG, log)
	alertRepo := repos.NewAlertRepo(thePG, log)
	forecastRepo := repos.NewForecastRepo(thePG, log)
	signatureRepo := repos.NewSignatureRepo(thePG, log)

	// Realtime
	log.Info("Setting up SSE hub now...")
	sseHub := realtime.NewSSEHub(log)

	var emitter services.SSEEmitter = &services.HubEmitter{Hub: sseHub}
	eventBus, err := bus.NewRedisBus(log)
	if err != nil {
		log.Warn("Redis bus unavailable, running single-replica", "error", err)
		eventBus = nil
	} else {
		if err := eventBus.StartForwarder(rootCtx, sseHub.Broadcast); err != nil {
			log.Error("Could not start bus forwarder", "error", err)
			os.Exit(1)
		}
		emitter = &services.BusEmitter{Bus: eventBus}
		defer eventBus.Close()
	}
	sequencer := services.NewEventSequencer(eventBus)

	// Services
	log.Info("Setting up Services from main...")
	alertNotifier := services.NewAlertNotifier(emitter, sequencer)
	metricsNotifier := services.NewMetricsNotifier(emitter, sequencer)
	forecastNotifier := services.NewForecastNotifier(emitter, sequencer)
	signatureNotifier := services.NewSignatureNotifier(emitter, sequencer)

	snapshotService := services.NewSnapshotService(thePG, log, snapshotRepo)
	reviewService := services.NewReviewService(thePG, log, scheduler.Config{MaxIntervalDays: cfg.Scheduler.MaxIntervalDays}, reviewItemRepo, snapshotService)
	alertService := services.NewAlertService(thePG, log, alertRepo, alertNotifier)
	forecastService := services.NewForecastService(thePG, log, cfg.Forecast, cfg.Monitor.WindowDays, snapshotRepo, forecastRepo, forecastNotifier)
	signatureService := services.NewSignatureService(thePG, log, cfg.Signature, snapshotRepo, signatureRepo, signatureNotifier)
	sessionService := services.NewSessionService(log, cfg.Session, snapshotService, metricsNotifier)
	snapshotService.SetSink(sessionService)

	monitorService := services.NewMonitorService(thePG, log, cfg, snapshotRepo, alertService, forecastService, signatureService)
	monitorService.Start(rootCtx)

	// Handlers
	log.Info("Setting up Handlers from main...")
	snapshotHandler := handlers.NewSnapshotHandler(log, snapshotService)
	reviewHandler := handlers.NewReviewHandler(log, reviewService)
	alertHandler := handlers.NewAlertHandler(log, alertService)
	forecastHandler := handlers.NewForecastHandler(log, forecastService)
	signatureHandler := handlers.NewSignatureHandler(log, signatureService)
	sessionHandler := handlers.NewSessionHandler(log, sessionService)
	sseHandler := handlers.NewSSEHandler(log, sseHub)
	authMiddleware := middleware.NewAuthMiddleware(log)

	router := server.NewRouter(server.RouterConfig{
		AuthMiddleware:   authMiddleware,
		SnapshotHandler:  snapshotHandler,
		ReviewHandler:    reviewHandler,
		AlertHandler:     alertHandler,
		ForecastHandler:  forecastHandler,
		SignatureHandler: signatureHandler,
		SessionHandler:   sessionHandler,
		SSEHandler:       sseHandler,
		TracingEnabled:   observability.Enabled(),
	})

	port := utils.GetEnv("PORT", "8080", log)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Info("Starting server", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server stopped", "error", err)
			cancel()
		}
	}()

	// Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-rootCtx.Done():
	}
	log.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server shutdown incomplete", "error", err)
	}
	sessionService.Shutdown()
	if otelShutdown != nil {
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Warn("Tracing shutdown incomplete", "error", err)
		}
	}
}
