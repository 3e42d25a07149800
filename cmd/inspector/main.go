// Package main is the entry point for the inspector — the anomaly stage. It
// runs every configured detector over each ranked event and flags the stored
// record when one trips.
//
// Dependencies:
//   - Qdrant: news_events collection (reads and is_anomaly patches)
//   - OpenAI or Anthropic: only when an llm_anomaly_detector is configured
//   - NATS: consumes ranked.events
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
	"github.com/gsantopaolo/sentinel-AI/internal/inspector"
	"github.com/gsantopaolo/sentinel-AI/internal/llm"
	"github.com/gsantopaolo/sentinel-AI/internal/readiness"
	"github.com/gsantopaolo/sentinel-AI/internal/store"
	"github.com/gsantopaolo/sentinel-AI/internal/telemetry"
)

const serviceName = "inspector"

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load(serviceName)
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}
	inspectorCfg, err := config.LoadInspectorConfig(cfg.Inspector.ConfigPath)
	if err != nil {
		logger.Fatal("inspector config load failed", zap.Error(err))
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

	// The model is only built when a detector needs one, so inspectors
	// running pure structural checks need no API key.
	var model llm.Client
	for _, d := range inspectorCfg.AnomalyDetectors {
		if d.Type == "llm_anomaly_detector" {
			model, err = llm.NewClient(llm.Config{
				Provider: cfg.LLM.Provider,
				Model:    cfg.LLM.ModelName,
				APIKey:   cfg.LLM.APIKey(),
			})
			if err != nil {
				logger.Fatal("LLM client setup failed", zap.Error(err))
			}
			break
		}
	}

	detectors, err := inspector.BuildDetectors(inspectorCfg.AnomalyDetectors, model)
	if err != nil {
		logger.Fatal("detector setup failed", zap.Error(err))
	}

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

	ins := inspector.New(detectors, eventStore, logger)

	beacon := readiness.NewBeacon(cfg.ReadinessTimeout())

	rankedSub, err := broker.NewSubscriber(client, broker.SubscriberConfig{
		Stream:     event.RankedEventsStream,
		Subject:    event.RankedEventsSubject,
		AckWait:    60 * time.Second,
		MaxDeliver: 3,
		Heartbeat:  beacon.UpdateLastSeen,
	}, logger)
	if err != nil {
		logger.Fatal("subscriber setup failed", zap.Error(err))
	}
	go rankedSub.Run(ctx, ins.HandleRankedEvent)

	e := echo.New()
	e.HideBanner = true
	beacon.Mount(e)
	go func() {
		if err := e.Start(cfg.API.ListenAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failure", zap.Error(err))
		}
	}()

	logger.Info("inspector running", zap.Int("detectors", len(detectors)))
	<-ctx.Done()
	logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Echo shutdown error", zap.Error(err))
	}
	logger.Info("inspector shut down cleanly")
}
