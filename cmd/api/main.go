// Package main is the entry point for the api service — the HTTP surface of
// the platform: source CRUD, event retrieval and search, and direct ingest.
//
// Dependencies:
//   - Postgres: sources, processed_items
//   - Qdrant: news_events collection (read side)
//   - NATS: publishes new.source, removed.source, raw.events
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/gsantopaolo/sentinel-AI/internal/api"
	"github.com/gsantopaolo/sentinel-AI/internal/broker"
	"github.com/gsantopaolo/sentinel-AI/internal/config"
	"github.com/gsantopaolo/sentinel-AI/internal/event"
	"github.com/gsantopaolo/sentinel-AI/internal/registry"
	"github.com/gsantopaolo/sentinel-AI/internal/store"
	"github.com/gsantopaolo/sentinel-AI/internal/telemetry"
)

const serviceName = "api"

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load(serviceName)
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	if cfg.Telemetry.OTLPEndpoint != "" {
		tp, err := telemetry.InitTracer(context.Background(), serviceName, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			logger.Error("OTel tracer init failed", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
			logger.Info("OTel tracer initialized", zap.String("endpoint", cfg.Telemetry.OTLPEndpoint))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Postgres ───────────────────────────────────────────────────────────
	registryStore, err := registry.NewStore(ctx, cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("Postgres connection failed", zap.Error(err))
	}
	defer registryStore.Close()

	if err := registryStore.EnsureSchema(ctx); err != nil {
		logger.Fatal("schema setup failed", zap.Error(err))
	}

	// ── NATS JetStream ─────────────────────────────────────────────────────
	client, err := broker.NewClient(broker.Config{
		URL:            cfg.NATS.URL,
		ConnectTimeout: cfg.NATS.ConnectTimeout(),
		ReconnectWait:  cfg.NATS.ReconnectWait(),
		MaxReconnects:  cfg.NATS.MaxReconnectAttempts,
	}, logger)
	if err != nil {
		logger.Fatal("NATS connection failed", zap.Error(err))
	}
	defer client.Close()

	newSourcePub, err := broker.NewPublisher(client, event.NewSourceStream, event.NewSourceSubject, logger)
	if err != nil {
		logger.Fatal("publisher setup failed", zap.Error(err))
	}
	removedSourcePub, err := broker.NewPublisher(client, event.RemovedSourceStream, event.RemovedSourceSubject, logger)
	if err != nil {
		logger.Fatal("publisher setup failed", zap.Error(err))
	}
	ingestPub, err := broker.NewPublisher(client, event.RawEventsStream, event.RawEventsSubject, logger)
	if err != nil {
		logger.Fatal("publisher setup failed", zap.Error(err))
	}

	// ── Qdrant ─────────────────────────────────────────────────────────────
	embedder, err := store.NewEmbedder(cfg.Qdrant.EmbeddingModelName, cfg.LLM.OpenAIAPIKey, cfg.Qdrant.EmbeddingServiceURL)
	if err != nil {
		logger.Fatal("embedder setup failed", zap.Error(err))
	}
	eventStore, err := store.NewStore(store.Config{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		Collection: cfg.Qdrant.CollectionName,
	}, embedder, logger)
	if err != nil {
		logger.Fatal("Qdrant connection failed", zap.Error(err))
	}
	defer eventStore.Close()

	if err := eventStore.InitializeCollection(ctx); err != nil {
		logger.Fatal("collection setup failed", zap.Error(err))
	}

	// ── HTTP Server ────────────────────────────────────────────────────────
	sourceSvc := registry.NewService(registryStore, newSourcePub, removedSourcePub, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(otelecho.Middleware(serviceName))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("HTTP request",
				zap.String("URI", v.URI),
				zap.Int("status", v.Status),
			)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api.NewSourcesHandler(sourceSvc, logger).Register(e)
	api.NewNewsHandler(eventStore, ingestPub, logger).Register(e)

	go func() {
		logger.Info("api listening", zap.String("addr", cfg.API.ListenAddr))
		if err := e.Start(cfg.API.ListenAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failure", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Echo shutdown error", zap.Error(err))
	}
	logger.Info("api shut down cleanly")
}
