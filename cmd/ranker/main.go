// Package main is the entry point for the ranker — it scores every filtered
// event on importance and recency, patches the scores onto the stored record
// and forwards the ranked event downstream.
//
// Dependencies:
//   - Qdrant: news_events collection (payload patches)
//   - NATS: consumes filtered.events, publishes ranked.events
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/gsantopaolo/sentinel-AI/internal/broker"
	"github.com/gsantopaolo/sentinel-AI/internal/config"
	"github.com/gsantopaolo/sentinel-AI/internal/event"
	"github.com/gsantopaolo/sentinel-AI/internal/ranker"
	"github.com/gsantopaolo/sentinel-AI/internal/readiness"
	"github.com/gsantopaolo/sentinel-AI/internal/store"
	"github.com/gsantopaolo/sentinel-AI/internal/telemetry"
)

const serviceName = "ranker"

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load(serviceName)
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}
	rankerCfg, err := config.LoadRankerConfig(cfg.Ranker.ConfigPath)
	if err != nil {
		logger.Fatal("ranker config load failed", zap.Error(err))
	}

	if cfg.Telemetry.OTLPEndpoint != "" {
		tp, err := telemetry.InitTracer(context.Background(), serviceName, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			logger.Error("OTel tracer init failed", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	rankedPub, err := broker.NewPublisher(client, event.RankedEventsStream, event.RankedEventsSubject, logger)
	if err != nil {
		logger.Fatal("publisher setup failed", zap.Error(err))
	}

	r := ranker.New(ranker.NewScorer(rankerCfg), eventStore, rankedPub, logger)

	beacon := readiness.NewBeacon(cfg.ReadinessTimeout())

	filteredSub, err := broker.NewSubscriber(client, broker.SubscriberConfig{
		Stream:     event.FilteredEventsStream,
		Subject:    event.FilteredEventsSubject,
		AckWait:    60 * time.Second,
		MaxDeliver: 3,
		Heartbeat:  beacon.UpdateLastSeen,
	}, logger)
	if err != nil {
		logger.Fatal("subscriber setup failed", zap.Error(err))
	}
	go filteredSub.Run(ctx, r.HandleFilteredEvent)

	e := echo.New()
	e.HideBanner = true
	beacon.Mount(e)
	go func() {
		if err := e.Start(cfg.API.ListenAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failure", zap.Error(err))
		}
	}()

	logger.Info("ranker running")
	<-ctx.Done()
	logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Echo shutdown error", zap.Error(err))
	}
	logger.Info("ranker shut down cleanly")
}
