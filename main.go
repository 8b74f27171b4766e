package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"wa-gateway/internal/auth"
	"wa-gateway/internal/blob"
	"wa-gateway/internal/config"
	"wa-gateway/internal/db"
	"wa-gateway/internal/handlers"
	"wa-gateway/internal/ingest"
	"wa-gateway/internal/logger"
	"wa-gateway/internal/media"
	"wa-gateway/internal/observability"
	"wa-gateway/internal/rabbitmq"
	"wa-gateway/internal/repositories"
	"wa-gateway/internal/telemetry"
	"wa-gateway/internal/tenant"
	"wa-gateway/internal/whatsapp"
	"wa-gateway/internal/ws"
)

const serviceName = "wa-gateway"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logRef, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	log := *logRef

	database, err := db.Connect(cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("database connect failed")
	}
	defer database.Close()

	messageRepo := repositories.NewMessageRepo(database)
	chatRepo := repositories.NewChatRepo(database)
	configRepo := repositories.NewConfigRepo(database)

	directory := tenant.NewDirectory(cfg.Tenants, configRepo, log)

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
	defer publisher.Close()
	audit := telemetry.NewAuditEmitter(publisher, "gateway.audit", serviceName, cfg.App.Env, log)

	verifier := auth.NewJWTVerifier(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience)
	hub := ws.NewHub(verifier, chatRepo, messageRepo, cfg.Hub, log)
	go hub.Run()
	defer hub.Close()

	graphClient := whatsapp.NewClient(cfg.Graph.BaseURL, cfg.Graph.Timeout)
	blobStore := blob.NewCloudinaryStore(cfg.Blob.CloudName, cfg.Blob.APIKey, cfg.Blob.APISecret)
	enricher := media.NewEnricher(graphClient, blobStore, messageRepo, directory, hub, cfg.Blob.Folder, 4, log)

	pipeline := ingest.NewPipeline(messageRepo, chatRepo, hub, enricher, log)

	webhookHandler := handlers.NewWebhookHandler(pipeline, directory, audit, log)
	healthHandler := handlers.NewHealthHandler(serviceName, cfg.App.Env, directory, hub)
	wsHandler := ws.NewHandler(hub, directory, log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/webhook", webhookHandler.Verify)
	router.POST("/webhook", webhookHandler.Ingest)
	router.GET("/ws", wsHandler.Serve)
	router.GET("/health", healthHandler.Status)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.Port),
		Handler: router,
	}

	go func() {
		log.Info().Int("port", cfg.App.Port).Str("env", cfg.App.Env).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete")
	}
}
